package polyapprox

import (
	"math/big"

	"github.com/beatoz/fxopgen/libs/expr"
	"github.com/beatoz/fxopgen/libs/mpnum"
	"github.com/beatoz/fxopgen/types"
	"github.com/beatoz/fxopgen/types/xerrors"
)

var certifyPieces = []int{64, 256, 1024}

// taylorPiece holds the enclosures of g on one subinterval J of [-1,1]
// around its center m, with radius r.
type taylorPiece struct {
	m, r       *big.Float
	rr         mpnum.Interval // [-r, r]
	halfSq     mpnum.Interval // [0, r^2/2]
	g0, g1, g2 mpnum.Interval // g(m), g'(m), g''(J)
}

// certifier bounds |g-p| over [-1,1] with the second-order Taylor form
// e(J) in e(m) + e'(m)(J-m) + e''(J)(J-m)^2/2, with e = g-p.
// The g enclosures are computed once per subdivision and reused.
type certifier struct {
	g, dg, ddg *expr.Function
	prec       uint
	pieces     map[int][]taylorPiece
}

func newCertifier(g *expr.Function, prec uint) *certifier {
	dg := g.Derive()
	return &certifier{
		g:      g,
		dg:     dg,
		ddg:    dg.Derive(),
		prec:   prec,
		pieces: make(map[int][]taylorPiece),
	}
}

func (c *certifier) subdivision(k int) ([]taylorPiece, xerrors.XError) {
	if ps, ok := c.pieces[k]; ok {
		return ps, nil
	}
	ps := make([]taylorPiece, k)
	r := mpnum.Pow2(-types.CeilLog2(k), c.prec) // k is a power of two: r = 1/k
	for i := 0; i < k; i++ {
		// m = -1 + (2i+1)/k, exact
		m := new(big.Float).SetPrec(c.prec).SetInt64(int64(2*i + 1))
		m.Mul(m, r)
		m.Sub(m, mpnum.FromInt64(1, c.prec))
		lo := new(big.Float).SetPrec(c.prec).Sub(m, r)
		hi := new(big.Float).SetPrec(c.prec).Add(m, r)
		J := mpnum.NewInterval(lo, hi)

		g0, xerr := c.g.EvalInterval(mpnum.Point(m), c.prec)
		if xerr != nil {
			return nil, c.infeasible(xerr)
		}
		g1, xerr := c.dg.EvalInterval(mpnum.Point(m), c.prec)
		if xerr != nil {
			return nil, c.infeasible(xerr)
		}
		g2, xerr := c.ddg.EvalInterval(J, c.prec)
		if xerr != nil {
			return nil, c.infeasible(xerr)
		}
		rsq := new(big.Float).SetPrec(c.prec).Mul(r, r)
		ps[i] = taylorPiece{
			m:      m,
			r:      r,
			rr:     mpnum.NewInterval(new(big.Float).Neg(r), r),
			halfSq: mpnum.NewInterval(new(big.Float), mpnum.Scale(rsq, -1)),
			g0:     g0, g1: g1, g2: g2,
		}
	}
	c.pieces[k] = ps
	return ps, nil
}

func (c *certifier) infeasible(xerr xerrors.XError) xerrors.XError {
	return xerrors.ErrApproximationInfeasible.Wrapf("%s is not interval-evaluable on [-1,1]: %v", c.g.String(), xerr)
}

// bound returns a certified upper bound of |g-p| over [-1,1] using k pieces.
func (c *certifier) bound(coeffs []*types.FixConstant, k int) (*big.Float, xerrors.XError) {
	ps, xerr := c.subdivision(k)
	if xerr != nil {
		return nil, xerr
	}
	p0 := coeffValues(coeffs)
	p1 := derivCoeffs(p0)
	p2 := derivCoeffs(p1)

	worst := new(big.Float)
	for _, pc := range ps {
		m := mpnum.Point(pc.m)
		e0 := pc.g0.Sub(hornerInterval(p0, m, c.prec), c.prec)
		e1 := pc.g1.Sub(hornerInterval(p1, m, c.prec), c.prec)
		J := mpnum.NewInterval(
			new(big.Float).SetPrec(c.prec).Sub(pc.m, pc.r),
			new(big.Float).SetPrec(c.prec).Add(pc.m, pc.r))
		e2 := pc.g2.Sub(hornerInterval(p2, J, c.prec), c.prec)

		e := e0.Add(e1.Mul(pc.rr, c.prec), c.prec).Add(e2.Mul(pc.halfSq, c.prec), c.prec)
		if mag := e.Mag(); mag.Cmp(worst) > 0 {
			worst = mag
		}
	}
	return worst, nil
}

// certify refines the subdivision while the bound exceeds target.
func (c *certifier) certify(coeffs []*types.FixConstant, target *big.Float) (*big.Float, xerrors.XError) {
	var b *big.Float
	for _, k := range certifyPieces {
		var xerr xerrors.XError
		b, xerr = c.bound(coeffs, k)
		if xerr != nil {
			return nil, xerr
		}
		if b.Cmp(target) <= 0 {
			break
		}
	}
	return b, nil
}
