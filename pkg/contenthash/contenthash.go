// Package contenthash provides the 64-bit FNV-1a content hash used for
// journal chaining and result fingerprinting. It is not a cryptographic hash.
package contenthash

import (
	"encoding/binary"
	"hash"
	"hash/fnv"
)

// Algorithm constants. Journals produced elsewhere only interoperate if these
// match bit for bit.
const (
	OffsetBasis uint64 = 0xcbf29ce484222325
	Prime       uint64 = 0x100000001b3
)

// Hasher accumulates little-endian encoded fields into an FNV-1a state.
type Hasher struct {
	h   hash.Hash64
	buf [8]byte
}

// New returns a Hasher seeded with the FNV offset basis.
func New() *Hasher {
	return &Hasher{h: fnv.New64a()}
}

func (h *Hasher) Uint64(v uint64) *Hasher {
	binary.LittleEndian.PutUint64(h.buf[:], v)
	h.h.Write(h.buf[:])
	return h
}

func (h *Hasher) Int64(v int64) *Hasher {
	return h.Uint64(uint64(v))
}

func (h *Hasher) Byte(b byte) *Hasher {
	h.buf[0] = b
	h.h.Write(h.buf[:1])
	return h
}

func (h *Hasher) Bool(v bool) *Hasher {
	if v {
		return h.Byte(1)
	}
	return h.Byte(0)
}

// String writes a length prefix followed by the raw bytes so adjacent
// strings cannot collide by shifting boundaries.
func (h *Hasher) String(s string) *Hasher {
	h.Uint64(uint64(len(s)))
	h.h.Write([]byte(s))
	return h
}

func (h *Hasher) Sum64() uint64 {
	return h.h.Sum64()
}

// Sum hashes raw bytes in one call.
func Sum(data []byte) uint64 {
	h := fnv.New64a()
	h.Write(data)
	return h.Sum64()
}

// Symbol derives a symbol hash from a ticker such as "AAPL".
func Symbol(ticker string) uint64 {
	return Sum([]byte(ticker))
}
