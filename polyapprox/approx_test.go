package polyapprox

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/beatoz/fxopgen/libs/expr"
	"github.com/beatoz/fxopgen/libs/mpnum"
	"github.com/beatoz/fxopgen/types/xerrors"
)

func checkDenseGrid(t *testing.T, g *expr.Function, p *BasicPolyApprox, target *big.Float) {
	bound, _ := p.ApproxErrorBound.Float64()
	tau, _ := target.Float64()
	require.LessOrEqual(t, bound, tau)

	const n = 10000
	for k := 0; k <= n; k++ {
		y := -1 + 2*float64(k)/n
		e := math.Abs(g.EvalFloat(y) - p.EvalFloat(y))
		require.LessOrEqual(t, e, bound+1e-12, "y=%v", y)
	}
}

func Test_ApproximateExp(t *testing.T) {
	g := expr.MustParse("exp(x)")
	target := mpnum.Pow2(-20, 64)

	p, xerr := Approximate(g, target, DefaultOptions())
	require.NoError(t, xerr)
	// degree 6 minimax of exp on [-1,1] is about 2^-19
	require.GreaterOrEqual(t, p.Degree, 6)
	require.LessOrEqual(t, p.Degree, 8)
	require.Len(t, p.Coeffs, p.Degree+1)
	checkDenseGrid(t, g, p, target)
}

func Test_ApproximateSin(t *testing.T) {
	g := expr.MustParse("sin(pi/4*(x+1)/2)")
	target := mpnum.Pow2(-24, 64)

	p, xerr := Approximate(g, target, DefaultOptions())
	require.NoError(t, xerr)
	checkDenseGrid(t, g, p, target)

	// higher degrees are never finer than the constant term
	lsbs := p.LSBs()
	require.GreaterOrEqual(t, lsbs[p.Degree], lsbs[0])
}

func Test_LowestDegree(t *testing.T) {
	target := mpnum.Pow2(-10, 64)

	p, xerr := Approximate(expr.MustParse("3*x+1"), target, DefaultOptions())
	require.NoError(t, xerr)
	require.Equal(t, 1, p.Degree)
	require.Equal(t, 3.0, p.Coeffs[1].Float64())
	require.Equal(t, 1.0, p.Coeffs[0].Float64())
	require.Equal(t, "1*y^0 + 3*y^1", p.String())

	// a line is 1/8 away from x^2 at best
	p, xerr = Approximate(expr.MustParse("x^2"), target, DefaultOptions())
	require.NoError(t, xerr)
	require.Equal(t, 2, p.Degree)
	require.True(t, p.IsZero[1])
	require.Equal(t, 1.0, p.Coeffs[2].Float64())
}

func Test_RoundAtReproduces(t *testing.T) {
	g := expr.MustParse("log(1+(x+1)/4)")
	target := mpnum.Pow2(-18, 64)
	a := NewApproximator(g, target)

	p, xerr := a.Approximate(DefaultOptions())
	require.NoError(t, xerr)

	q, xerr := a.RoundAt(p.LSBs())
	require.NoError(t, xerr)
	require.Equal(t, p.Degree, q.Degree)
	for i := range p.Coeffs {
		require.Equal(t, 0, p.Coeffs[i].Mantissa.Cmp(q.Coeffs[i].Mantissa), "coefficient %d", i)
	}

	// the constant term cannot be that coarse
	lsbs := p.LSBs()
	lsbs[0] = 0
	_, xerr = a.RoundAt(lsbs)
	require.ErrorIs(t, xerr, xerrors.ErrApproximationInfeasible)

	// fixed lsbs through the options
	q, xerr = a.Approximate(Options{CoeffLSBs: p.LSBs()})
	require.NoError(t, xerr)
	require.Equal(t, p.Degree, q.Degree)
}

func Test_GridErrorCloseToTarget(t *testing.T) {
	// degree 2 minimax error of exp on [3/4,1] is about 0.8*2^-12
	g := expr.MustParse("exp(x/8+7/8)")
	target := mpnum.Pow2(-12, 64)
	a := NewApproximator(g, target)

	e, xerr := a.GridError(2)
	require.NoError(t, xerr)
	lim := new(big.Float).Mul(target, big.NewFloat(0.8))
	require.Equal(t, 1, e.Cmp(lim))
	require.Equal(t, -1, e.Cmp(target))

	p, xerr := a.Approximate(Options{Degree: 2})
	require.NoError(t, xerr)
	require.Equal(t, 2, p.Degree)
	checkDenseGrid(t, g, p, target)

	p, xerr = Approximate(g, target, DefaultOptions())
	require.NoError(t, xerr)
	require.Equal(t, 2, p.Degree)
}

func Test_Infeasible(t *testing.T) {
	// not interval-evaluable around 0
	_, xerr := Approximate(expr.MustParse("1/x"), mpnum.Pow2(-8, 64), Options{Degree: -1, MaxDegree: 4})
	require.ErrorIs(t, xerr, xerrors.ErrApproximationInfeasible)

	// degree too low for the target
	_, xerr = Approximate(expr.MustParse("exp(x)"), mpnum.Pow2(-30, 64), Options{Degree: 2})
	require.ErrorIs(t, xerr, xerrors.ErrApproximationInfeasible)

	_, xerr = Approximate(expr.MustParse("exp(x)"), new(big.Float), DefaultOptions())
	require.ErrorIs(t, xerr, xerrors.ErrInvalidParams)
}

func Test_CertificateIsSound(t *testing.T) {
	g := expr.MustParse("atan(x)")
	a := NewApproximator(g, mpnum.Pow2(-12, 64))
	p, xerr := a.Approximate(DefaultOptions())
	require.NoError(t, xerr)

	worst := 0.0
	for k := 0; k <= 10000; k++ {
		y := -1 + 2*float64(k)/10000
		worst = math.Max(worst, math.Abs(g.EvalFloat(y)-p.EvalFloat(y)))
	}
	for _, k := range certifyPieces {
		b, xerr := a.cert.bound(p.Coeffs, k)
		require.NoError(t, xerr)
		f, _ := b.Float64()
		require.GreaterOrEqual(t, f+1e-12, worst, "pieces %d", k)
	}
}
