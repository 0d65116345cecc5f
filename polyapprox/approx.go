package polyapprox

import (
	"math/big"

	"github.com/beatoz/fxopgen/libs/expr"
	"github.com/beatoz/fxopgen/libs/mpnum"
	"github.com/beatoz/fxopgen/types"
	"github.com/beatoz/fxopgen/types/xerrors"
)

const (
	DefaultMaxDegree = 20

	lsbRetries      = 4
	maxCoarsenSteps = 64
)

type Options struct {
	// Degree fixes the degree; -1 searches from StartDegree up to MaxDegree.
	Degree      int
	StartDegree int
	MaxDegree   int
	// CoeffLSBs fixes every coefficient LSB, and the degree to len-1.
	CoeffLSBs []int
}

func DefaultOptions() Options {
	return Options{Degree: -1, MaxDegree: DefaultMaxDegree}
}

type remezResult struct {
	coeffs  []*big.Float
	gridErr *big.Float
}

// Approximator approximates one function g on [-1,1] within target.
// It is not safe for concurrent use.
type Approximator struct {
	g      *expr.Function
	target *big.Float
	prec   uint
	cert   *certifier
	remez  map[int]remezResult
}

func NewApproximator(g *expr.Function, target *big.Float) *Approximator {
	prec := uint(128)
	if target.Sign() > 0 {
		prec = uint(min(max(128, 64-2*mpnum.Exponent(target)), 512))
	}
	return &Approximator{
		g:      g,
		target: target,
		prec:   prec,
		cert:   newCertifier(g, prec),
		remez:  make(map[int]remezResult),
	}
}

// Approximate is a shortcut for NewApproximator(g, target).Approximate(opts).
func Approximate(g *expr.Function, target *big.Float, opts Options) (*BasicPolyApprox, xerrors.XError) {
	return NewApproximator(g, target).Approximate(opts)
}

func (a *Approximator) Target() *big.Float {
	return a.target
}

func (a *Approximator) minimax(degree int) (remezResult, xerrors.XError) {
	if r, ok := a.remez[degree]; ok {
		return r, nil
	}
	gr, xerr := newGrid(a.g, degree, a.prec)
	if xerr != nil {
		return remezResult{}, xerr
	}
	cs, e, xerr := remez(gr, degree, a.prec)
	if xerr != nil {
		return remezResult{}, xerr
	}
	r := remezResult{coeffs: cs, gridErr: e}
	a.remez[degree] = r
	return r, nil
}

// Approximate returns the lowest-degree polynomial whose certified error is
// within the target.
func (a *Approximator) Approximate(opts Options) (*BasicPolyApprox, xerrors.XError) {
	if a.target.Sign() <= 0 {
		return nil, xerrors.ErrInvalidParams.Wrapf("approximation target must be positive")
	}
	if opts.CoeffLSBs != nil {
		return a.RoundAt(opts.CoeffLSBs)
	}
	maxDegree := opts.MaxDegree
	if maxDegree <= 0 {
		maxDegree = DefaultMaxDegree
	}
	start, end := opts.StartDegree, maxDegree
	if opts.Degree >= 0 {
		start, end = opts.Degree, opts.Degree
	}
	for d := start; d <= end; d++ {
		p, xerr := a.tryDegree(d)
		if xerr != nil {
			return nil, xerr
		}
		if p != nil {
			return p, nil
		}
	}
	return nil, xerrors.ErrApproximationInfeasible.Wrapf("%s: no polynomial of degree %d..%d within %s",
		a.g.String(), start, end, a.target.Text('g', 6))
}

// tryDegree returns nil without error when degree d does not fit.
func (a *Approximator) tryDegree(d int) (*BasicPolyApprox, xerrors.XError) {
	mm, xerr := a.minimax(d)
	if xerr != nil {
		return nil, xerr
	}
	// coefficient rounding shares what the grid error leaves of the target
	room := new(big.Float).SetPrec(a.prec).Sub(a.target, mm.gridErr)
	if room.Sign() <= 0 {
		return nil, nil
	}
	room.Quo(room, mpnum.FromInt64(int64(d+1), a.prec))
	lsb := mpnum.Log2Floor(room)

	for retry := 0; retry <= lsbRetries; retry, lsb = retry+1, lsb-1 {
		coeffs := roundAll(mm.coeffs, lsb)
		b, xerr := a.cert.certify(coeffs, a.target)
		if xerr != nil {
			return nil, xerr
		}
		if b.Cmp(a.target) <= 0 {
			coeffs, b, xerr = a.coarsen(mm.coeffs, coeffs, b)
			if xerr != nil {
				return nil, xerr
			}
			return NewBasicPolyApprox(coeffs, b), nil
		}
	}
	return nil, nil
}

// coarsen raises coefficient LSBs from the highest degree down while the
// certified bound stays within the target.
func (a *Approximator) coarsen(exact []*big.Float, coeffs []*types.FixConstant, bound *big.Float) ([]*types.FixConstant, *big.Float, xerrors.XError) {
	for i := len(coeffs) - 1; i >= 1; i-- {
		for step := 0; step < maxCoarsenSteps && !coeffs[i].IsZero(); step++ {
			trial := append([]*types.FixConstant(nil), coeffs...)
			trial[i] = types.RoundFixConstant(exact[i], coeffs[i].LSB()+1)
			b, xerr := a.cert.certify(trial, a.target)
			if xerr != nil {
				return nil, nil, xerr
			}
			if b.Cmp(a.target) > 0 {
				break
			}
			coeffs, bound = trial, b
		}
	}
	return coeffs, bound, nil
}

// RoundAt rounds the minimax polynomial of degree len(lsbs)-1 at the given
// coefficient LSBs. It fails when the certified error exceeds the target.
func (a *Approximator) RoundAt(lsbs []int) (*BasicPolyApprox, xerrors.XError) {
	if len(lsbs) == 0 {
		return nil, xerrors.ErrInvalidParams.Wrapf("no coefficient lsbs")
	}
	mm, xerr := a.minimax(len(lsbs) - 1)
	if xerr != nil {
		return nil, xerr
	}
	coeffs := make([]*types.FixConstant, len(lsbs))
	for i, l := range lsbs {
		coeffs[i] = types.RoundFixConstant(mm.coeffs[i], l)
	}
	b, xerr := a.cert.certify(coeffs, a.target)
	if xerr != nil {
		return nil, xerr
	}
	if b.Cmp(a.target) > 0 {
		return nil, xerrors.ErrApproximationInfeasible.Wrapf("certified error %s exceeds %s at lsbs %v",
			b.Text('g', 6), a.target.Text('g', 6), lsbs)
	}
	return NewBasicPolyApprox(coeffs, b), nil
}

// GridError returns the minimax error estimate of the given degree.
func (a *Approximator) GridError(degree int) (*big.Float, xerrors.XError) {
	mm, xerr := a.minimax(degree)
	if xerr != nil {
		return nil, xerr
	}
	return mm.gridErr, nil
}

func roundAll(cs []*big.Float, lsb int) []*types.FixConstant {
	out := make([]*types.FixConstant, len(cs))
	for i, c := range cs {
		out[i] = types.RoundFixConstant(c, lsb)
	}
	return out
}
