// Package ticks implements saturating int64 arithmetic for integer price and
// quantity ticks. No operation here overflows or panics.
package ticks

import (
	"math"
	"math/bits"
)

// Add returns a+b clamped to the int64 range.
func Add(a, b int64) int64 {
	s := a + b
	// overflow iff both operands share a sign that the result does not
	if (a >= 0) == (b >= 0) && (s >= 0) != (a >= 0) {
		if a >= 0 {
			return math.MaxInt64
		}
		return math.MinInt64
	}
	return s
}

// Sub returns a-b clamped to the int64 range.
func Sub(a, b int64) int64 {
	if b == math.MinInt64 {
		if a >= 0 {
			return math.MaxInt64
		}
		return a - b
	}
	return Add(a, -b)
}

// Neg returns -a, mapping MinInt64 to MaxInt64.
func Neg(a int64) int64 {
	if a == math.MinInt64 {
		return math.MaxInt64
	}
	return -a
}

// Abs returns |a|, mapping MinInt64 to MaxInt64.
func Abs(a int64) int64 {
	if a < 0 {
		return Neg(a)
	}
	return a
}

// Mul returns a*b clamped to the int64 range.
func Mul(a, b int64) int64 {
	if a == 0 || b == 0 {
		return 0
	}
	negative := (a < 0) != (b < 0)
	hi, lo := bits.Mul64(absU(a), absU(b))
	if hi != 0 {
		return clampU(negative)
	}
	if negative {
		if lo > uint64(math.MaxInt64)+1 {
			return math.MinInt64
		}
		return -int64(lo - 1) - 1
	}
	if lo > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(lo)
}

// MulDiv returns a*num/den truncated toward zero, computed with a 128-bit
// intermediate. It requires 0 <= num <= den and den > 0, which guarantees
// the result magnitude never exceeds |a|.
func MulDiv(a, num, den int64) int64 {
	if a == 0 || num <= 0 || den <= 0 {
		return 0
	}
	if num >= den {
		return a
	}
	hi, lo := bits.Mul64(absU(a), uint64(num))
	q, _ := bits.Div64(hi, lo, uint64(den))
	if a < 0 {
		return -int64(q)
	}
	return int64(q)
}

// SelectMax returns the larger of two non-negative values without a branch.
func SelectMax(a, b int64) int64 {
	d := a - b
	m := d >> 63 // all ones when a < b
	return a - (d & m)
}

func absU(a int64) uint64 {
	if a < 0 {
		return uint64(^a) + 1
	}
	return uint64(a)
}

func clampU(negative bool) int64 {
	if negative {
		return math.MinInt64
	}
	return math.MaxInt64
}
