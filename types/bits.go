package types

import (
	"golang.org/x/exp/constraints"
)

// IntLog2 returns the number of bits needed to write x >= 0; IntLog2(0) == 0.
func IntLog2[T constraints.Integer](x T) int {
	n := 0
	for x > 0 {
		n++
		x >>= 1
	}
	return n
}

// CeilLog2 returns the smallest k such that 2^k >= x.
func CeilLog2[T constraints.Integer](x T) int {
	if x <= 1 {
		return 0
	}
	return IntLog2(x - 1)
}

func Abs[T constraints.Signed](x T) T {
	if x < 0 {
		return -x
	}
	return x
}

// Pow2 returns 2^e for 0 <= e < bit size of T.
func Pow2[T constraints.Integer](e int) T {
	return T(1) << e
}

// Mask returns a value with the low w bits set.
func Mask[T constraints.Unsigned](w int) T {
	if w <= 0 {
		return 0
	}
	return ^T(0) >> (8*sizeOf[T]() - w)
}

func sizeOf[T constraints.Integer]() int {
	var x T = 1
	n := 0
	for x != 0 {
		x <<= 1
		n++
	}
	return n / 8
}
