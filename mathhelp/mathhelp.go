package mathhelp

import "golang.org/x/exp/constraints"

// Clamp restricts v to the closed range [lo, hi].
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// EuclidianMod returns d modulo m with the sign of m, so EuclidianMod(-1, 4) == 3.
func EuclidianMod[T constraints.Integer](d, m T) T {
	r := d % m
	if (r < 0 && m > 0) || (r > 0 && m < 0) {
		return r + m
	}
	return r
}
