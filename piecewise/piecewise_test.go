package piecewise

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"

	"github.com/beatoz/fxopgen/fixfunc"
	"github.com/beatoz/fxopgen/horner"
	"github.com/beatoz/fxopgen/polyapprox"
	"github.com/beatoz/fxopgen/tables"
	"github.com/beatoz/fxopgen/types"
	"github.com/beatoz/fxopgen/types/xerrors"
)

type mapCache struct {
	mtx  sync.Mutex
	m    map[string]*polyapprox.BasicPolyApprox
	hits int
	puts int
}

func newMapCache() *mapCache {
	return &mapCache{m: make(map[string]*polyapprox.BasicPolyApprox)}
}

func (c *mapCache) Get(k Key) (*polyapprox.BasicPolyApprox, bool) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	p, ok := c.m[k.String()]
	if ok {
		c.hits++
	}
	return p, ok
}

func (c *mapCache) Put(k Key, p *polyapprox.BasicPolyApprox) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.m[k.String()] = p
	c.puts++
	return nil
}

func newSplitter(t *testing.T, src string, signedIn bool, lsbIn, lsbOut int, cache Cache) (*fixfunc.Function, *Splitter) {
	f, xerr := fixfunc.New(src, signedIn, lsbIn, lsbOut, log.NewNopLogger())
	require.NoError(t, xerr)
	params := Params{Target: types.DefaultTargetParams()}
	return f, NewSplitter(f, params, cache, log.NewNopLogger())
}

func requireFaithful(t *testing.T, f *fixfunc.Function, s *Splitter, r *Result) *horner.Schedule {
	sch, xerr := s.Schedule(r)
	require.NoError(t, xerr)
	v, xerr := horner.NewEmulator(sch).ExhaustiveCheck(context.Background(), f, r)
	require.NoError(t, xerr)
	require.True(t, v.OK(), "%s: %s first=%d", f.Description(), v.String(), v.FirstViolation)
	require.Equal(t, int64(1)<<f.WIn, v.Checked)
	return sch
}

func requireCovering(t *testing.T, r *Result) {
	next := int64(0)
	for _, iv := range r.Intervals {
		require.Equal(t, next, iv.Start)
		next += int64(1) << iv.Log2Size
	}
	require.Equal(t, int64(1)<<r.WIn, next)
}

func Test_UniformBuild(t *testing.T) {
	f, s := newSplitter(t, "sin(pi/4*x)", false, -10, -10, nil)
	r, xerr := s.Build(context.Background(), 2, -1)
	require.NoError(t, xerr)
	require.Len(t, r.Intervals, 4)
	require.Len(t, r.Polys, 4)
	require.Equal(t, 1-(10-2), r.LSBY)
	requireCovering(t, r)
	for _, p := range r.Polys {
		require.Equal(t, r.Degree, p.Degree)
		require.Equal(t, r.ColumnLSBs, p.LSBs())
		require.LessOrEqual(t, p.ApproxErrorBound.Cmp(r.Target), 0)
	}

	sch := requireFaithful(t, f, s, r)
	require.Equal(t, r.Degree, sch.Degree)
	require.Contains(t, r.CoefficientReport(), "interval 3")

	_, xerr = s.Build(context.Background(), 10, -1)
	require.ErrorIs(t, xerr, xerrors.ErrInvalidParams)
}

func Test_SignedUniformBuild(t *testing.T) {
	f, s := newSplitter(t, "exp(x)-1", true, -9, -8, nil)
	r, xerr := s.Build(context.Background(), 3, 2)
	require.NoError(t, xerr)
	require.Equal(t, 2, r.Degree)
	require.Equal(t, -9+3, r.LSBY)
	requireFaithful(t, f, s, r)
}

func Test_Search(t *testing.T) {
	f, s := newSplitter(t, "exp(x)", false, -10, -10, nil)
	c, xerr := s.Search(context.Background(), 3)
	require.NoError(t, xerr)
	require.Positive(t, c.Cost)
	require.Equal(t, s.Cost(c.Table, c.Schedule), c.Cost)
	requireFaithful(t, f, s, c.Result)

	d, alpha := c.Result.Degree, c.Result.Alpha
	require.GreaterOrEqual(t, d, 1)
	require.LessOrEqual(t, d, 3)
	if alpha > 0 {
		r, xerr := s.Build(context.Background(), alpha-1, d)
		if xerr == nil {
			_, xerr = s.Candidate(r)
		}
		require.Error(t, xerr, "alpha %d is the smallest feasible split at degree %d", alpha, d)
	}

	// the linear candidate at its smallest alpha costs at least as much
	for a := 0; a <= s.MaxAlpha(); a++ {
		r, xerr := s.Build(context.Background(), a, 1)
		if xerr != nil {
			continue
		}
		lin, xerr := s.Candidate(r)
		if xerr != nil {
			continue
		}
		require.GreaterOrEqual(t, lin.Cost, c.Cost)
		break
	}
}

func Test_VaryingSplit(t *testing.T) {
	f, s := newSplitter(t, "atan(8*x)", false, -10, -10, nil)
	r, xerr := s.BuildVarying(context.Background(), 2)
	require.NoError(t, xerr)
	require.True(t, r.Varying)
	requireCovering(t, r)

	minSize, maxSize := r.Intervals[0].Log2Size, r.Intervals[0].Log2Size
	for _, iv := range r.Intervals {
		minSize, maxSize = min(minSize, iv.Log2Size), max(maxSize, iv.Log2Size)
	}
	require.Less(t, minSize, maxSize, "curvature is concentrated near 0")
	require.Equal(t, f.WIn-minSize, r.Alpha)
	require.Equal(t, 1-maxSize, r.LSBY)
	require.Less(t, len(r.Intervals), 1<<r.Alpha)
	// the steep part gets the smallest intervals
	require.Equal(t, minSize, r.Intervals[0].Log2Size)

	requireFaithful(t, f, s, r)

	_, xerr = s.BuildVarying(context.Background(), -1)
	require.ErrorIs(t, xerr, xerrors.ErrInvalidParams)
}

func Test_VaryingInfeasible(t *testing.T) {
	f, xerr := fixfunc.New("atan(8*x)", false, -10, -10, log.NewNopLogger())
	require.NoError(t, xerr)
	s := NewSplitter(f, Params{MaxAlpha: 1, Target: types.DefaultTargetParams()}, nil, log.NewNopLogger())
	_, xerr = s.BuildVarying(context.Background(), 1)
	require.ErrorIs(t, xerr, xerrors.ErrApproximationInfeasible)
}

func Test_CacheHits(t *testing.T) {
	cache := newMapCache()
	_, s := newSplitter(t, "log(1+x)", false, -10, -10, cache)
	first, xerr := s.Build(context.Background(), 2, -1)
	require.NoError(t, xerr)
	require.Zero(t, cache.hits)
	// one per interval, the ones raised to the shared degree and the
	// roundings at the shared lsbs
	puts := cache.puts
	require.GreaterOrEqual(t, puts, 8)

	second, xerr := s.Build(context.Background(), 2, -1)
	require.NoError(t, xerr)
	require.Equal(t, puts, cache.hits)
	require.Equal(t, puts, cache.puts)
	require.Equal(t, first.ColumnLSBs, second.ColumnLSBs)
	for k := range first.Polys {
		require.Equal(t, first.Polys[k].String(), second.Polys[k].String())
	}
}

func Test_CacheRespectsMaxDegree(t *testing.T) {
	f, xerr := fixfunc.New("exp(x)", false, -12, -12, log.NewNopLogger())
	require.NoError(t, xerr)
	splitter := func(maxDegree int, cache Cache) *Splitter {
		params := Params{MaxDegree: maxDegree, Target: types.DefaultTargetParams()}
		return NewSplitter(f, params, cache, log.NewNopLogger())
	}

	_, xerr = splitter(2, nil).Build(context.Background(), 0, -1)
	require.ErrorIs(t, xerr, xerrors.ErrApproximationInfeasible)

	cache := newMapCache()
	wide, xerr := splitter(20, cache).Build(context.Background(), 0, -1)
	require.NoError(t, xerr)
	require.Greater(t, wide.Degree, 2)

	// the entry found under a wider bound must not leak into a narrower one
	_, xerr = splitter(2, cache).Build(context.Background(), 0, -1)
	require.ErrorIs(t, xerr, xerrors.ErrApproximationInfeasible)

	hits := cache.hits
	same, xerr := splitter(wide.Degree, cache).Build(context.Background(), 0, -1)
	require.NoError(t, xerr)
	require.Greater(t, cache.hits, hits)
	require.Equal(t, wide.Degree, same.Degree)
	require.Equal(t, wide.Polys[0].String(), same.Polys[0].String())
}

func Test_LocateSigned(t *testing.T) {
	// wIn = 5, two intervals: [-1,0) and [0,1)
	r := &Result{
		WIn:       5,
		SignedIn:  true,
		Alpha:     1,
		LSBY:      -3,
		Intervals: []Interval{newInterval(5, 1, 0), newInterval(5, 1, 1)},
	}
	k, y := r.Locate(0)
	require.Equal(t, 1, k)
	require.Equal(t, int64(-8), y.Int64(), "x=0 is the left end of [0,1)")

	k, y = r.Locate(31) // x = -1/16
	require.Equal(t, 0, k)
	require.Equal(t, int64(7), y.Int64())

	k, y = r.Locate(16) // x = -1
	require.Equal(t, 0, k)
	require.Equal(t, int64(-8), y.Int64())

	// varying: [0,8) [8,12) [12,16) [16,32) in offset order
	left, right := newInterval(5, 1, 0), newInterval(5, 1, 1)
	ll, lr := left.children(5)
	lrl, lrr := lr.children(5)
	v := &Result{
		WIn:       5,
		SignedIn:  true,
		Alpha:     3,
		Varying:   true,
		LSBY:      1 - 4,
		Intervals: []Interval{ll, lrl, lrr, right},
	}
	k, y = v.Locate(16 + 9) // u = 9
	require.Equal(t, 1, k)
	// 9 - 8 - 2 = -1 at lsb -1, i.e. -4 at lsb -3
	require.Equal(t, new(big.Int).Lsh(big.NewInt(-1), 2).Int64(), y.Int64())
	k, y = v.Locate(0) // u = 16
	require.Equal(t, 3, k)
	require.Equal(t, int64(-8), y.Int64())
}

func Test_CoefficientTable(t *testing.T) {
	_, s := newSplitter(t, "sin(pi/4*x)", false, -12, -12, nil)
	r, xerr := s.Build(context.Background(), 3, 2)
	require.NoError(t, xerr)
	ct, xerr := NewCoefficientTable(r)
	require.NoError(t, xerr)
	require.Equal(t, 3, ct.WIn)
	require.Equal(t, 8, ct.Rows)

	width := 0
	for _, col := range ct.Columns {
		width += col.Width
		for k, p := range r.Polys {
			require.Equal(t, 0, p.Coeffs[col.Degree].MantissaAt(col.LSB).Cmp(ct.Coeff(k, col)), "row %d degree %d", k, col.Degree)
		}
	}
	require.Equal(t, width, ct.WOut)
	// sin is increasing and concave on [0,1)
	require.Equal(t, 1, ct.Columns[0].Sign)
	require.Equal(t, 1, ct.Columns[1].Sign)
	require.Equal(t, r.ColumnSigns()[1], ct.Columns[1].Sign)

	dc := ct.Compress(tables.RawBitCost{})
	got := dc.GetInitialTable()
	for k := range got {
		require.True(t, got[k].Eq(ct.Get(k)))
	}
}

func Test_CoefficientTablePadding(t *testing.T) {
	_, s := newSplitter(t, "atan(8*x)", false, -10, -10, nil)
	r, xerr := s.BuildVarying(context.Background(), 2)
	require.NoError(t, xerr)
	ct, xerr := NewCoefficientTable(r)
	require.NoError(t, xerr)
	require.Equal(t, len(r.Polys), ct.Rows)
	require.Equal(t, 1<<types.CeilLog2(len(r.Polys)), ct.Len())
	for k := ct.Rows; k < ct.Len(); k++ {
		require.True(t, ct.Get(k).IsZero())
	}
}
