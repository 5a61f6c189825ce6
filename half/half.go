// Package half implements IEEE 754 binary16 ("half precision") values in
// software, for platforms and wire formats that store packed 16-bit floats
// without native hardware support.
//
// A Half is an immutable 16-bit pattern: 1 sign bit, 5 exponent bits
// (bias 15), 10 mantissa bits. Every uint16 is a valid Half, including
// NaNs, infinities, signed zeros and subnormals, and every operation in
// this package is total, allocation-free and safe for concurrent use.
//
// Narrowing conversions (float32/float64 -> Half) truncate the mantissa
// instead of rounding to nearest-even. Existing packed data was produced
// with that policy, so it is kept bit-for-bit; callers that need correct
// rounding should use a rounding converter and accept the low-bit
// differences.
package half

import "math"

// Half is a binary16 floating-point value stored as its raw bit pattern.
type Half uint16

// Binary16 field layout.
const (
	signMask16 = 0x8000
	expMask16  = 0x7C00
	fracMask16 = 0x03FF

	expShift16 = 10
	expBias16  = 15
	expMax16   = 0x1F
)

// Binary32 and binary64 field layout, used by the conversion routines.
const (
	expBias32  = 127
	expShift32 = 23
	fracMask32 = 0x7FFFFF
	expMax32   = 0xFF

	expBias64  = 1023
	expShift64 = 52
	fracMask64 = 0xFFFFFFFFFFFFF
	expMax64   = 0x7FF
)

// Canonical bit patterns.
const (
	PositiveZero      Half = 0x0000
	NegativeZero      Half = 0x8000
	PositiveInfinity  Half = 0x7C00
	NegativeInfinity  Half = 0xFC00
	NaN               Half = 0x7E00 // canonical quiet NaN
	MaxValue          Half = 0x7BFF // 65504
	SmallestNormal    Half = 0x0400 // 2^-14
	SmallestSubnormal Half = 0x0001 // 2^-24
)

// FromBits returns the Half with the given raw bit pattern.
func FromBits(bits uint16) Half { return Half(bits) }

// Bits returns the raw bit pattern of h.
func (h Half) Bits() uint16 { return uint16(h) }

// FromFloat32 converts a float32 to the nearest-below Half.
// The mantissa is truncated, overflow saturates to signed infinity and
// NaN payloads are preserved (top 10 bits plus the quiet bit).
func FromFloat32(f float32) Half {
	return Half(Float32BitsToBits(math.Float32bits(f)))
}

// Float32 converts h to float32. The conversion is exact: every Half is
// representable as a float32.
func (h Half) Float32() float32 {
	return math.Float32frombits(BitsToFloat32Bits(uint16(h)))
}

// FromFloat64 converts a float64 to a Half, truncating the mantissa.
func FromFloat64(d float64) Half {
	return Half(Float64BitsToBits(math.Float64bits(d)))
}

// Float64 converts h to float64, exactly.
func (h Half) Float64() float64 {
	return math.Float64frombits(BitsToFloat64Bits(uint16(h)))
}

// BitsToFloat32Bits widens a binary16 bit pattern to the binary32 pattern
// denoting the same value. Subnormal halves are normalized into the much
// larger binary32 exponent range; infinities and NaNs carry their sign
// and mantissa payload across.
func BitsToFloat32Bits(h uint16) uint32 {
	sign := (uint32(h) & signMask16) << 16
	exp := int32(h>>expShift16) & expMax16
	frac := uint32(h) & fracMask16

	switch {
	case exp == 0:
		if frac == 0 {
			return sign // signed zero
		}
		// Subnormal: shift until the implicit leading bit appears.
		for frac&(fracMask16+1) == 0 {
			frac <<= 1
			exp--
		}
		exp++
		frac &= fracMask16
	case exp == expMax16:
		return sign | uint32(expMax32)<<expShift32 | frac<<13
	}

	exp = exp - expBias16 + expBias32
	return sign | uint32(exp)<<expShift32 | frac<<13
}

// Float32BitsToBits narrows a binary32 bit pattern to binary16.
// Overflow saturates to signed infinity, underflow degrades gradually
// through subnormals before flushing to signed zero, and the mantissa is
// truncated rather than rounded.
func Float32BitsToBits(f uint32) uint16 {
	sign := uint16(f>>16) & signMask16
	rawExp := (f >> expShift32) & expMax32
	exp := int32(rawExp) - expBias32 + expBias16
	frac := f & fracMask32

	if exp <= 0 {
		if exp < -10 {
			return sign // too small for the smallest subnormal
		}
		frac |= fracMask32 + 1 // make the leading bit explicit
		return sign | uint16(frac>>uint32(14-exp))
	}
	if exp >= expMax16 {
		if rawExp == expMax32 && frac != 0 {
			return sign | uint16(NaN) | uint16(frac>>13)
		}
		return sign | uint16(PositiveInfinity)
	}
	return sign | uint16(exp)<<expShift16 | uint16(frac>>13)
}

// BitsToFloat64Bits widens a binary16 bit pattern to binary64. The
// conversion is exact and uses no floating-point intermediate, so it is
// usable where the host has no native float access.
func BitsToFloat64Bits(h uint16) uint64 {
	sign := (uint64(h) & signMask16) << 48
	exp := int64(h>>expShift16) & expMax16
	frac := uint64(h) & fracMask16

	switch {
	case exp == 0:
		if frac == 0 {
			return sign
		}
		for frac&(fracMask16+1) == 0 {
			frac <<= 1
			exp--
		}
		exp++
		frac &= fracMask16
	case exp == expMax16:
		return sign | uint64(expMax64)<<expShift64 | frac<<42
	}

	exp = exp - expBias16 + expBias64
	return sign | uint64(exp)<<expShift64 | frac<<42
}

// Float64BitsToBits narrows a binary64 bit pattern to binary16 with the
// same saturation, gradual-underflow and truncation policy as
// Float32BitsToBits.
func Float64BitsToBits(d uint64) uint16 {
	sign := uint16(d>>48) & signMask16
	rawExp := (d >> expShift64) & expMax64
	exp := int64(rawExp) - expBias64 + expBias16
	frac := d & fracMask64

	if exp <= 0 {
		if exp < -10 {
			return sign
		}
		frac |= fracMask64 + 1
		return sign | uint16(frac>>uint64(43-exp))
	}
	if exp >= expMax16 {
		if rawExp == expMax64 && frac != 0 {
			return sign | uint16(NaN) | uint16(frac>>42)
		}
		return sign | uint16(PositiveInfinity)
	}
	return sign | uint16(exp)<<expShift16 | uint16(frac>>42)
}

// Divmod computes quotient and remainder of x/y in single precision and
// narrows both back to Half. The quotient is the rounded float32 result
// of the division, not a floored integer, and the remainder is
// x - quotient*y, so quotient*y + remainder reconstructs x up to
// single-precision rounding.
func Divmod(x, y Half) (quot, rem Half) {
	fx, fy := x.Float32(), y.Float32()
	q := fx / fy
	return FromFloat32(q), FromFloat32(fx - q*fy)
}
