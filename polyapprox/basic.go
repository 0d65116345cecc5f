package polyapprox

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/beatoz/fxopgen/libs/mpnum"
	"github.com/beatoz/fxopgen/types"
)

// BasicPolyApprox is a polynomial p(y) = sum Coeffs[i]*y^i on y in [-1,1]
// with fixed-point coefficients and a certified bound of |g(y)-p(y)|.
type BasicPolyApprox struct {
	Degree           int
	Coeffs           []*types.FixConstant
	IsZero           []bool
	ApproxErrorBound *big.Float
}

func NewBasicPolyApprox(coeffs []*types.FixConstant, bound *big.Float) *BasicPolyApprox {
	p := &BasicPolyApprox{
		Degree:           len(coeffs) - 1,
		Coeffs:           coeffs,
		IsZero:           make([]bool, len(coeffs)),
		ApproxErrorBound: bound,
	}
	for i, c := range coeffs {
		p.IsZero[i] = c.IsZero()
	}
	return p
}

// LSBs returns the per-coefficient LSBs.
func (p *BasicPolyApprox) LSBs() []int {
	lsbs := make([]int, len(p.Coeffs))
	for i, c := range p.Coeffs {
		lsbs[i] = c.LSB()
	}
	return lsbs
}

func (p *BasicPolyApprox) EvalFloat(y float64) float64 {
	s := 0.0
	for i := p.Degree; i >= 0; i-- {
		s = s*y + p.Coeffs[i].Float64()
	}
	return s
}

// EvalInterval encloses p over y by interval Horner evaluation.
func (p *BasicPolyApprox) EvalInterval(y mpnum.Interval, prec uint) mpnum.Interval {
	return hornerInterval(coeffValues(p.Coeffs), y, prec)
}

func (p *BasicPolyApprox) String() string {
	parts := make([]string, 0, len(p.Coeffs))
	for i, c := range p.Coeffs {
		if p.IsZero[i] {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s*y^%d", c.String(), i))
	}
	if len(parts) == 0 {
		return "0"
	}
	return strings.Join(parts, " + ")
}

func coeffValues(cs []*types.FixConstant) []*big.Float {
	vs := make([]*big.Float, len(cs))
	for i, c := range cs {
		vs[i] = c.Value()
	}
	return vs
}

func hornerInterval(cs []*big.Float, y mpnum.Interval, prec uint) mpnum.Interval {
	s := mpnum.Point(cs[len(cs)-1])
	for i := len(cs) - 2; i >= 0; i-- {
		s = s.Mul(y, prec).Add(mpnum.Point(cs[i]), prec)
	}
	return s
}

// derivCoeffs returns the coefficients of p'.
func derivCoeffs(cs []*big.Float) []*big.Float {
	if len(cs) <= 1 {
		return []*big.Float{new(big.Float)}
	}
	ds := make([]*big.Float, len(cs)-1)
	for i := 1; i < len(cs); i++ {
		// exact: small integer times a dyadic
		ds[i-1] = new(big.Float).SetPrec(cs[i].Prec()+64).Mul(cs[i], big.NewFloat(float64(i)))
	}
	return ds
}

func hornerBig(cs []*big.Float, y *big.Float, prec uint) *big.Float {
	s := new(big.Float).SetPrec(prec).Set(cs[len(cs)-1])
	for i := len(cs) - 2; i >= 0; i-- {
		s.Mul(s, y)
		s.Add(s, cs[i])
	}
	return s
}
