// Package fixedpoint implements the Q17.14 signed fixed-point arithmetic
// the MLFQS controller needs (spec.md §4.2). It is a direct port of the
// kernel's threads/fixed_arith.{c,h}: a 32-bit signed integer, scaled by
// 1<<14, where multiplication widens to 64 bits before rescaling down and
// division widens the numerator before dividing, to avoid overflow and
// precision loss respectively.
package fixedpoint

// Unit is the fixed-point scale factor, 2^14 (Q17.14: 17 integer bits, 14
// fractional bits, one sign bit).
const Unit = 1 << 14

// Fixed is a Q17.14 signed fixed-point number.
type Fixed int32

// FromInt converts an integer to fixed point.
func FromInt(n int) Fixed {
	return Fixed(n * Unit)
}

// ToIntTrunc converts a fixed-point number to an integer, truncating toward
// zero.
func (x Fixed) ToIntTrunc() int {
	return int(x) / Unit
}

// ToIntRound converts a fixed-point number to an integer, rounding to the
// nearest integer (half away from zero).
func (x Fixed) ToIntRound() int {
	if x >= 0 {
		return int(x+Unit/2) / Unit
	}
	return int(x-Unit/2) / Unit
}

// Add returns x + y.
func (x Fixed) Add(y Fixed) Fixed {
	return x + y
}

// Sub returns x - y.
func (x Fixed) Sub(y Fixed) Fixed {
	return x - y
}

// Mul returns x * y. The product is computed in 64 bits before rescaling,
// since x*y before descaling can exceed 32 bits even when the result fits.
func (x Fixed) Mul(y Fixed) Fixed {
	return Fixed(int64(x) * int64(y) / Unit)
}

// MulInt returns x * n, for a plain integer n.
func (x Fixed) MulInt(n int) Fixed {
	return x * Fixed(n)
}

// Div returns x / y. The numerator is widened to 64 bits and pre-scaled by
// Unit before dividing, so the fractional part of the quotient survives
// integer division.
func (x Fixed) Div(y Fixed) Fixed {
	return Fixed(int64(x) * Unit / int64(y))
}

// DivInt returns x / n, for a plain integer n.
func (x Fixed) DivInt(n int) Fixed {
	return x / Fixed(n)
}
