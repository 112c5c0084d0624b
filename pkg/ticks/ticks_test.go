package ticks

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdd(t *testing.T) {
	tests := []struct {
		name string
		a, b int64
		want int64
	}{
		{"plain", 2, 3, 5},
		{"mixed signs", -7, 3, -4},
		{"positive overflow", math.MaxInt64, 1, math.MaxInt64},
		{"negative overflow", math.MinInt64, -1, math.MinInt64},
		{"no overflow at edge", math.MaxInt64, math.MinInt64, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Add(tt.a, tt.b))
		})
	}
}

func TestSub(t *testing.T) {
	assert.Equal(t, int64(-1), Sub(2, 3))
	assert.Equal(t, int64(math.MaxInt64), Sub(0, math.MinInt64))
	assert.Equal(t, int64(math.MaxInt64), Sub(-1, math.MinInt64))
	assert.Equal(t, int64(math.MinInt64), Sub(math.MinInt64, 1))
}

func TestMul(t *testing.T) {
	tests := []struct {
		name string
		a, b int64
		want int64
	}{
		{"zero", 0, math.MaxInt64, 0},
		{"plain", 100, 10, 1000},
		{"negative", -100, 10, -1000},
		{"both negative", -4, -5, 20},
		{"overflow positive", math.MaxInt64, 2, math.MaxInt64},
		{"overflow negative", math.MaxInt64, -2, math.MinInt64},
		{"min times one", math.MinInt64, 1, math.MinInt64},
		{"min times minus one", math.MinInt64, -1, math.MaxInt64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Mul(tt.a, tt.b))
		})
	}
}

func TestMulDiv(t *testing.T) {
	assert.Equal(t, int64(5), MulDiv(10, 1, 2))
	assert.Equal(t, int64(-5), MulDiv(-10, 1, 2))
	assert.Equal(t, int64(3), MulDiv(10, 1, 3))
	assert.Equal(t, int64(10), MulDiv(10, 7, 7))
	assert.Equal(t, int64(0), MulDiv(10, 0, 7))
	// intermediate exceeds 64 bits
	assert.Equal(t, int64(math.MaxInt64/2), MulDiv(math.MaxInt64, math.MaxInt64/2, math.MaxInt64))
}

func TestAbsNeg(t *testing.T) {
	assert.Equal(t, int64(5), Abs(-5))
	assert.Equal(t, int64(math.MaxInt64), Abs(math.MinInt64))
	assert.Equal(t, int64(math.MaxInt64), Neg(math.MinInt64))
}

func TestSelectMax(t *testing.T) {
	assert.Equal(t, int64(9), SelectMax(3, 9))
	assert.Equal(t, int64(9), SelectMax(9, 3))
	assert.Equal(t, int64(4), SelectMax(4, 4))
	assert.Equal(t, int64(math.MaxInt64), SelectMax(0, math.MaxInt64))
}
