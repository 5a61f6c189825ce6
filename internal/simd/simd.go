// Package simd provides batch kernels over packed half-precision
// columns: flat []uint16 slices of raw binary16 bit patterns, the
// layout used by the cast service and the flight bridge.
package simd

import (
	"gonum.org/v1/gonum/blas/blas64"

	"github.com/23skdu/longbow-bodkin/half"
)

// PromoteSlice widens every packed half in src into dst.
// len(dst) must equal len(src).
func PromoteSlice(dst []float32, src []uint16) {
	// Unrolled loop for better pipelining
	i := 0
	for ; i <= len(src)-4; i += 4 {
		dst[i] = half.FromBits(src[i]).Float32()
		dst[i+1] = half.FromBits(src[i+1]).Float32()
		dst[i+2] = half.FromBits(src[i+2]).Float32()
		dst[i+3] = half.FromBits(src[i+3]).Float32()
	}
	// Handle remainder
	for ; i < len(src); i++ {
		dst[i] = half.FromBits(src[i]).Float32()
	}
}

// Promote64Slice widens every packed half in src into a float64 working
// buffer. len(dst) must equal len(src).
func Promote64Slice(dst []float64, src []uint16) {
	i := 0
	for ; i <= len(src)-4; i += 4 {
		dst[i] = half.FromBits(src[i]).Float64()
		dst[i+1] = half.FromBits(src[i+1]).Float64()
		dst[i+2] = half.FromBits(src[i+2]).Float64()
		dst[i+3] = half.FromBits(src[i+3]).Float64()
	}
	for ; i < len(src); i++ {
		dst[i] = half.FromBits(src[i]).Float64()
	}
}

// DemoteSlice narrows every float32 in src into packed halves in dst,
// with the library's truncating policy. len(dst) must equal len(src).
func DemoteSlice(dst []uint16, src []float32) {
	i := 0
	for ; i <= len(src)-4; i += 4 {
		dst[i] = half.FromFloat32(src[i]).Bits()
		dst[i+1] = half.FromFloat32(src[i+1]).Bits()
		dst[i+2] = half.FromFloat32(src[i+2]).Bits()
		dst[i+3] = half.FromFloat32(src[i+3]).Bits()
	}
	for ; i < len(src); i++ {
		dst[i] = half.FromFloat32(src[i]).Bits()
	}
}

// DotHalf computes the dot product of two packed half columns by
// promoting into float64 and delegating to BLAS (the netlib
// implementation when cgo is enabled, pure Go gonum otherwise).
// Panics if the lengths differ, matching blas64 conventions.
func DotHalf(a, b []uint16) float64 {
	if len(a) != len(b) {
		panic("simd: column length mismatch")
	}
	if len(a) == 0 {
		return 0
	}

	fa := make([]float64, len(a))
	fb := make([]float64, len(b))
	Promote64Slice(fa, a)
	Promote64Slice(fb, b)

	return blas64.Dot(
		blas64.Vector{N: len(fa), Data: fa, Inc: 1},
		blas64.Vector{N: len(fb), Data: fb, Inc: 1},
	)
}

// MinMaxHalf scans a packed column and returns its smallest and largest
// values, skipping NaNs. If the column is empty or all NaN, both
// results are NaN.
func MinMaxHalf(col []uint16) (min, max half.Half) {
	min, max = half.NaN, half.NaN
	for _, bits := range col {
		h := half.FromBits(bits)
		if h.IsNaN() {
			continue
		}
		if min.IsNaN() {
			min, max = h, h
			continue
		}
		if h.LessNoNaN(min) {
			min = h
		}
		if h.GreaterNoNaN(max) {
			max = h
		}
	}
	return min, max
}
