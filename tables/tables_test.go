package tables

import (
	"context"
	"math"
	"math/rand"
	"testing"
	"testing/quick"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"

	"github.com/beatoz/fxopgen/fixfunc"
	"github.com/beatoz/fxopgen/types"
	"github.com/beatoz/fxopgen/types/xerrors"
)

func toValues(xs []uint64) []*uint256.Int {
	out := make([]*uint256.Int, len(xs))
	for i, x := range xs {
		out[i] = uint256.NewInt(x)
	}
	return out
}

func requireSameTable(t *testing.T, want, got []*uint256.Int) {
	require.Len(t, got, len(want))
	for i := range want {
		require.True(t, want[i].Eq(got[i]), "entry %d: want %s got %s", i, want[i].Dec(), got[i].Dec())
	}
}

func Test_LinearTable(t *testing.T) {
	values := toValues([]uint64{0, 1, 2, 3, 4, 5, 6, 7})
	dc := FindDifferentialCompression(values, 3, 3, RawBitCost{})
	require.True(t, dc.Compressed())
	require.Equal(t, 2, dc.SubsamplingIndexSize)
	require.Equal(t, 2, dc.SubsamplingWordSize)
	require.Equal(t, 1, dc.DiffWordSize)
	require.Equal(t, int64(24), dc.OriginalCost)
	require.Equal(t, int64(16), dc.Cost())
	requireSameTable(t, values, dc.GetInitialTable())
	require.Contains(t, dc.Report(), "66.67 %")
}

func Test_IncompressibleTable(t *testing.T) {
	values := toValues([]uint64{0, 15, 0, 15, 15, 0, 15, 0, 0, 15, 15, 0, 0, 15, 0, 15})
	dc := FindDifferentialCompression(values, 4, 4, RawBitCost{})
	require.False(t, dc.Compressed())
	require.Zero(t, dc.SubsamplingWordSize)
	require.Zero(t, dc.DiffWordSize)
	require.Equal(t, dc.OriginalCost, dc.Cost())
	requireSameTable(t, values, dc.GetInitialTable())
}

func Test_RandomWalkTable(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	const wIn, wOut = 10, 20
	xs := make([]uint64, 1<<wIn)
	v := int64(1) << (wOut - 1)
	for i := range xs {
		v += int64(rnd.Intn(9)) - 2
		xs[i] = uint64(v)
	}
	values := toValues(xs)
	for _, cost := range []CostModel{RawBitCost{}, LUTCost{LUTInputs: 6}} {
		dc := FindDifferentialCompression(values, wIn, wOut, cost)
		require.True(t, dc.Compressed())
		require.Less(t, dc.Cost(), dc.OriginalCost)
		requireSameTable(t, values, dc.GetInitialTable())
	}
	// one memory block either way
	dc := FindDifferentialCompression(values, wIn, wOut, TargetCost{Params: types.DefaultTargetParams()})
	require.LessOrEqual(t, dc.Cost(), dc.OriginalCost)
	requireSameTable(t, values, dc.GetInitialTable())
}

func Test_CompressionRoundTrip(t *testing.T) {
	roundTrip := func(raw []uint16, wIn8 uint8) bool {
		wIn := int(wIn8%6) + 1
		const wOut = 12
		xs := make([]uint64, 1<<wIn)
		for i := range xs {
			if len(raw) > 0 {
				xs[i] = uint64(raw[i%len(raw)]) & (1<<wOut - 1)
			}
		}
		values := toValues(xs)
		dc := FindDifferentialCompression(values, wIn, wOut, RawBitCost{})
		if dc.Cost() > dc.OriginalCost {
			return false
		}
		got := dc.GetInitialTable()
		for i := range values {
			if !values[i].Eq(got[i]) {
				return false
			}
		}
		return true
	}
	require.NoError(t, quick.Check(roundTrip, &quick.Config{MaxCount: 300}))
}

func Test_CostModels(t *testing.T) {
	require.Equal(t, int64(8<<10), RawBitCost{}.TableCost(10, 8))
	require.Equal(t, int64(8<<4), LUTCost{LUTInputs: 6}.TableCost(10, 8))
	require.Equal(t, int64(8), LUTCost{LUTInputs: 6}.TableCost(3, 8))

	tc := TargetCost{Params: types.DefaultTargetParams()}
	// 512 bits stay in logic
	require.Equal(t, int64(8<<6), tc.TableCost(6, 8))
	// 2^14*20 bits take nine 36Kb blocks
	require.Equal(t, int64(9*36*1024), tc.TableCost(14, 20))
}

func Test_NewTable(t *testing.T) {
	_, xerr := NewTable(toValues([]uint64{0, 1, 2}), 2, 2)
	require.ErrorIs(t, xerr, xerrors.ErrInvalidParams)

	_, xerr = NewTable(toValues([]uint64{0, 1, 2, 4}), 2, 2)
	require.ErrorIs(t, xerr, xerrors.ErrInvalidParams)

	tbl, xerr := NewTable(toValues([]uint64{0, 1, 2, 3}), 2, 2)
	require.NoError(t, xerr)
	require.Equal(t, int64(-1), tbl.Output(3, true))
	require.Equal(t, int64(3), tbl.Output(3, false))
}

func Test_TableFromFunction(t *testing.T) {
	f, xerr := fixfunc.New("sin(pi/4*x)", false, -10, -10, log.NewNopLogger())
	require.NoError(t, xerr)
	tbl, xerr := TableFromFunction(context.Background(), f)
	require.NoError(t, xerr)
	require.Equal(t, 1024, tbl.Len())
	require.Equal(t, f.WOut, tbl.WOut)

	for x := 0; x < tbl.Len(); x++ {
		want := math.Round(math.Sin(math.Pi/4*float64(x)/1024) * 1024)
		require.InDelta(t, want, float64(tbl.Output(x, f.SignedOut)), 1, "codeword %d", x)
	}

	v, xerr := f.Validate(context.Background(), func(x int64) (int64, xerrors.XError) {
		return tbl.Output(int(x), f.SignedOut), nil
	})
	require.NoError(t, xerr)
	require.True(t, v.OK())
	require.Equal(t, int64(1024), v.Checked)

	dc := tbl.Compress(RawBitCost{})
	require.True(t, dc.Compressed())
	requireSameTable(t, tbl.Values, dc.GetInitialTable())

	f.SetExhaustiveMaxWidth(8)
	_, xerr = TableFromFunction(context.Background(), f)
	require.ErrorIs(t, xerr, xerrors.ErrInvalidParams)
}
