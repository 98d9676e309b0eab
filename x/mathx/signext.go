package mathx

import "golang.org/x/exp/constraints"

// SignExtend interprets the low bits of raw as a two's-complement field.
// If the field's top bit is set the result is raw - 1<<bits, otherwise raw.
// Bits above the field are ignored. bits must be in 1..64.
func SignExtend[T constraints.Unsigned](raw T, bits uint) int64 {
	if bits == 0 || bits > 64 {
		return int64(raw)
	}
	v := uint64(raw)
	if bits < 64 {
		v &= 1<<bits - 1
	}
	shift := 64 - bits
	return int64(v<<shift) >> shift
}

// TwosComplement encodes v into a bits-wide two's-complement field.
// It is the inverse of SignExtend for v in [-(1<<(bits-1)), 1<<(bits-1)-1].
func TwosComplement(v int64, bits uint) uint64 {
	u := uint64(v)
	if bits < 64 {
		u &= 1<<bits - 1
	}
	return u
}
