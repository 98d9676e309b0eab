package mathx

import "golang.org/x/exp/constraints"

// Clamp limits v to [lo, hi]. If lo > hi, the bounds are swapped.
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if hi < lo {
		lo, hi = hi, lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Round rounds f to the given number of decimal places (half away from zero).
func Round[T constraints.Float](f T, places int) T {
	p := T(1)
	for i := 0; i < places; i++ {
		p *= 10
	}
	v := f * p
	if v < 0 {
		return -T(int64(-v+0.5)) / p
	}
	return T(int64(v+0.5)) / p
}
