package horner

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"

	"github.com/beatoz/fxopgen/fixfunc"
	"github.com/beatoz/fxopgen/libs/mpnum"
	"github.com/beatoz/fxopgen/polyapprox"
	"github.com/beatoz/fxopgen/types"
	"github.com/beatoz/fxopgen/types/xerrors"
)

func poly(bound *big.Float, lsb int, cs ...float64) *polyapprox.BasicPolyApprox {
	coeffs := make([]*types.FixConstant, len(cs))
	for i, c := range cs {
		coeffs[i] = types.RoundFixConstant(big.NewFloat(c), lsb)
	}
	return polyapprox.NewBasicPolyApprox(coeffs, bound)
}

func Test_ZeroCoefficientInOneInterval(t *testing.T) {
	bound := mpnum.Pow2(-16, 64)
	polys := []*polyapprox.BasicPolyApprox{
		poly(bound, -12, 0.5, 0.25, 0.125),
		poly(bound, -12, 0.5, -0.25, 0.125),
		poly(bound, -12, 0.375, 0.25, 0.125),
		poly(bound, -12, 0.5, 0.25, 0),
	}
	s, xerr := NewBuilder(Params{LSBIn: -8, LSBOut: -10}, log.NewNopLogger()).Build(polys)
	require.NoError(t, xerr)

	require.True(t, s.IntervalIsZero[3][2])
	require.False(t, s.IntervalIsZero[0][2])
	require.False(t, s.Stages[2].IsZero)
	// |a2| = 2^-3 in the other intervals, signed
	require.Equal(t, -2, s.Stages[2].SumMSB)
	require.Equal(t, 1, s.Stages[2].SumSign, "a2 is never negative")
	require.Equal(t, 0, s.Stages[1].SumSign, "a1+a2*y changes sign across intervals")
	require.Less(t, s.Stages[0].SumLSB, s.LSBOut)
	require.Equal(t, -12, s.Stages[2].SumLSB)
	require.Len(t, s.Steps(), 3)
	require.Equal(t, 2, s.Steps()[0].Degree)
	require.Contains(t, s.Report(), "Horner step 0")
}

func Test_AllZeroColumn(t *testing.T) {
	bound := mpnum.Pow2(-16, 64)
	polys := []*polyapprox.BasicPolyApprox{
		poly(bound, -12, 0.5, 0, 0.125),
		poly(bound, -12, 0.25, 0, -0.125),
	}
	s, xerr := NewBuilder(Params{LSBIn: -8, LSBOut: -10}, log.NewNopLogger()).Build(polys)
	require.NoError(t, xerr)
	require.True(t, s.Stages[1].IsZero)
	require.False(t, s.Stages[0].IsZero)
}

func Test_BudgetInfeasible(t *testing.T) {
	polys := []*polyapprox.BasicPolyApprox{poly(mpnum.Pow2(-11, 64), -12, 0.5, 0.25)}
	_, xerr := NewBuilder(Params{LSBIn: -8, LSBOut: -10}, log.NewNopLogger()).Build(polys)
	require.ErrorIs(t, xerr, xerrors.ErrErrorBudgetInfeasible)

	polys = []*polyapprox.BasicPolyApprox{poly(mpnum.Pow2(-16, 64), -12, 0.5, 0.25), poly(mpnum.Pow2(-16, 64), -12, 0.5)}
	_, xerr = NewBuilder(Params{LSBIn: -8, LSBOut: -10}, log.NewNopLogger()).Build(polys)
	require.ErrorIs(t, xerr, xerrors.ErrInvalidParams)
}

// singleDomain maps an unsigned codeword x of wIn bits to y = -1 + x*2^(1-wIn).
type singleDomain struct {
	wIn int
}

func (d singleDomain) Locate(x int64) (int, *big.Int) {
	return 0, big.NewInt(x - int64(1)<<(d.wIn-1))
}

func faithfulRun(t *testing.T, src string, lsb int, faithfulMAC bool) {
	f, xerr := fixfunc.New(src, false, lsb, lsb, log.NewNopLogger())
	require.NoError(t, xerr)

	// y in [-1,1) covers x in [0,1)
	g := f.Expr().Compose(big.NewRat(1, 2), big.NewRat(1, 2))
	p, xerr := polyapprox.Approximate(g, mpnum.Pow2(lsb-2, 64), polyapprox.DefaultOptions())
	require.NoError(t, xerr)

	lsbY := lsb + 1
	s, xerr := NewBuilder(Params{LSBIn: lsbY, LSBOut: f.LSBOut, HasFaithfulMultiplyAdd: faithfulMAC}, log.NewNopLogger()).
		Build([]*polyapprox.BasicPolyApprox{p})
	require.NoError(t, xerr)
	require.Less(t, s.TotalError.Cmp(mpnum.Pow2(lsb, 64)), 0)

	v, xerr := NewEmulator(s).ExhaustiveCheck(context.Background(), f, singleDomain{wIn: f.WIn})
	require.NoError(t, xerr)
	require.Equal(t, int64(1)<<f.WIn, v.Checked)
	require.Zero(t, v.Violations, "first violation at %d", v.FirstViolation)
	require.Zero(t, v.Overflows)
}

func Test_FaithfulEndToEnd(t *testing.T) {
	faithfulRun(t, "sin(pi/4*x)", -12, false)
	faithfulRun(t, "exp(x)-1", -10, true)
	faithfulRun(t, "log(1+x)", -11, false)
}

func Test_FaithfulEndToEndLong(t *testing.T) {
	if testing.Short() {
		t.Skip("exhaustive 16-bit check")
	}
	faithfulRun(t, "sin(pi/4*x)", -16, false)
}

func Test_EmulatorRounding(t *testing.T) {
	v := fixValue{mant: big.NewInt(-5), lsb: -2} // -1.25
	require.Equal(t, int64(-2), v.roundTo(0, false).mant.Int64())
	require.Equal(t, int64(-1), v.roundTo(0, true).mant.Int64())
	require.Equal(t, int64(-20), v.roundTo(-4, true).mant.Int64())

	w := fixValue{mant: big.NewInt(6), lsb: -2} // 1.5, ties up
	require.Equal(t, int64(2), w.roundTo(0, true).mant.Int64())
}
