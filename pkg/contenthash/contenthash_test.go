package contenthash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// reference implements FNV-1a directly from the published constants.
func reference(data []byte) uint64 {
	h := OffsetBasis
	for _, b := range data {
		h ^= uint64(b)
		h *= Prime
	}
	return h
}

func TestSumMatchesReference(t *testing.T) {
	inputs := [][]byte{
		nil,
		[]byte("a"),
		[]byte("foobar"),
		{0x00, 0xff, 0x10, 0x20},
	}
	for _, in := range inputs {
		assert.Equal(t, reference(in), Sum(in))
	}
}

func TestKnownVectors(t *testing.T) {
	assert.Equal(t, OffsetBasis, Sum(nil))
	assert.Equal(t, uint64(0xaf63dc4c8601ec8c), Sum([]byte("a")))
	assert.Equal(t, uint64(0x85944171f73967e8), Sum([]byte("foobar")))
}

func TestHasherLittleEndianFields(t *testing.T) {
	got := New().Uint64(0x0102030405060708).Byte(9).Sum64()
	want := reference([]byte{0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01, 0x09})
	assert.Equal(t, want, got)
}

func TestHasherStringIsLengthPrefixed(t *testing.T) {
	a := New().String("ab").String("c").Sum64()
	b := New().String("a").String("bc").Sum64()
	assert.NotEqual(t, a, b)
}

func TestSymbolIsStable(t *testing.T) {
	assert.Equal(t, Symbol("AAPL"), Symbol("AAPL"))
	assert.NotEqual(t, Symbol("AAPL"), Symbol("MSFT"))
}
