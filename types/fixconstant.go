package types

import (
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/beatoz/fxopgen/libs/mpnum"
)

// FixConstant is a constant bound to a fixed-point format.
// It is created once by rounding and never mutated.
type FixConstant struct {
	Format   FixFormat
	Mantissa *big.Int
	Exact    bool
}

// NewFixConstant binds an exact mantissa at lsb.
func NewFixConstant(mant *big.Int, lsb int) *FixConstant {
	return &FixConstant{
		Format:   MinimalFormat(mant, lsb),
		Mantissa: new(big.Int).Set(mant),
		Exact:    true,
	}
}

// RoundFixConstant rounds v to the nearest multiple of 2^lsb, ties toward +inf.
func RoundFixConstant(v *big.Float, lsb int) *FixConstant {
	t := mpnum.Scale(v, -lsb)
	m := mpnum.RoundNearest(t)
	return &FixConstant{
		Format:   MinimalFormat(m, lsb),
		Mantissa: m,
		Exact:    t.IsInt(),
	}
}

func (c *FixConstant) IsZero() bool {
	return c.Mantissa.Sign() == 0
}

func (c *FixConstant) LSB() int {
	return c.Format.LSB
}

// Value returns the exact value Mantissa*2^LSB.
func (c *FixConstant) Value() *big.Float {
	prec := uint(max(c.Mantissa.BitLen(), 1) + 2)
	v := new(big.Float).SetPrec(prec).SetInt(c.Mantissa)
	return v.SetMantExp(v, c.Format.LSB)
}

func (c *FixConstant) Float64() float64 {
	f, _ := c.Value().Float64()
	return f
}

// Rescale expresses the constant at another lsb. Moving to a finer lsb is
// exact, moving to a coarser one rounds to nearest.
func (c *FixConstant) Rescale(lsb int) *FixConstant {
	if lsb <= c.Format.LSB {
		m := new(big.Int).Lsh(c.Mantissa, uint(c.Format.LSB-lsb))
		return &FixConstant{Format: MinimalFormat(m, lsb), Mantissa: m, Exact: c.Exact}
	}
	r := RoundFixConstant(c.Value(), lsb)
	r.Exact = r.Exact && c.Exact
	return r
}

// MantissaAt returns the mantissa at a finer lsb.
func (c *FixConstant) MantissaAt(lsb int) *big.Int {
	if lsb > c.Format.LSB {
		panic("MantissaAt: lsb is coarser than the constant")
	}
	return new(big.Int).Lsh(c.Mantissa, uint(c.Format.LSB-lsb))
}

// Decimal returns the exact decimal value: m*2^-k = m*5^k*10^-k.
func (c *FixConstant) Decimal() decimal.Decimal {
	lsb := c.Format.LSB
	if lsb >= 0 {
		return decimal.NewFromBigInt(new(big.Int).Lsh(c.Mantissa, uint(lsb)), 0)
	}
	p := new(big.Int).Exp(big.NewInt(5), big.NewInt(int64(-lsb)), nil)
	return decimal.NewFromBigInt(p.Mul(p, c.Mantissa), int32(lsb))
}

func (c *FixConstant) String() string {
	return c.Value().Text('g', 20)
}
