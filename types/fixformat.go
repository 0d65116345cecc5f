package types

import (
	"fmt"
	"math/big"

	"github.com/beatoz/fxopgen/libs/mpnum"
	"github.com/beatoz/fxopgen/types/xerrors"
)

// FixFormat is a fixed-point format. A value v is represented by the
// integer mantissa v*2^-LSB, in two's complement when Signed.
type FixFormat struct {
	Signed bool `json:"signed"`
	MSB    int  `json:"msb"`
	LSB    int  `json:"lsb"`
}

func NewFixFormat(signed bool, msb, lsb int) (FixFormat, xerrors.XError) {
	if msb < lsb {
		return FixFormat{}, xerrors.ErrRange.Wrapf("msb(%d) < lsb(%d)", msb, lsb)
	}
	return FixFormat{Signed: signed, MSB: msb, LSB: lsb}, nil
}

func (f FixFormat) Width() int {
	return f.MSB - f.LSB + 1
}

// MantissaRange returns the smallest and the largest representable mantissas.
func (f FixFormat) MantissaRange() (*big.Int, *big.Int) {
	w := uint(f.Width())
	if f.Signed {
		hi := new(big.Int).Lsh(big.NewInt(1), w-1)
		lo := new(big.Int).Neg(hi)
		return lo, hi.Sub(hi, big.NewInt(1))
	}
	hi := new(big.Int).Lsh(big.NewInt(1), w)
	return new(big.Int), hi.Sub(hi, big.NewInt(1))
}

func (f FixFormat) Contains(mant *big.Int) bool {
	lo, hi := f.MantissaRange()
	return mant.Cmp(lo) >= 0 && mant.Cmp(hi) <= 0
}

// Wrap returns the Width-bit two's complement codeword of mant.
func (f FixFormat) Wrap(mant *big.Int) *big.Int {
	mod := new(big.Int).Lsh(big.NewInt(1), uint(f.Width()))
	return new(big.Int).Mod(mant, mod)
}

// Unwrap is the inverse of Wrap for codewords in [0, 2^Width).
func (f FixFormat) Unwrap(code *big.Int) *big.Int {
	w := uint(f.Width())
	if f.Signed && code.Bit(int(w-1)) == 1 {
		return new(big.Int).Sub(code, new(big.Int).Lsh(big.NewInt(1), w))
	}
	return new(big.Int).Set(code)
}

func (f FixFormat) Ulp() *big.Float {
	return mpnum.Pow2(f.LSB, 64)
}

func (f FixFormat) String() string {
	s := "u"
	if f.Signed {
		s = "s"
	}
	return fmt.Sprintf("%s(%d,%d)", s, f.MSB, f.LSB)
}

// MinimalFormat returns the narrowest format holding mant at lsb.
// Non-negative mantissas get an unsigned format.
func MinimalFormat(mant *big.Int, lsb int) FixFormat {
	switch mant.Sign() {
	case 0:
		return FixFormat{MSB: lsb, LSB: lsb}
	case 1:
		return FixFormat{MSB: lsb + mant.BitLen() - 1, LSB: lsb}
	}
	// -2^(w-1) <= mant
	m := new(big.Int).Neg(mant)
	m.Sub(m, big.NewInt(1))
	return FixFormat{Signed: true, MSB: lsb + m.BitLen(), LSB: lsb}
}
