package polycache

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"

	"github.com/beatoz/fxopgen/fixfunc"
	"github.com/beatoz/fxopgen/piecewise"
	"github.com/beatoz/fxopgen/polyapprox"
	"github.com/beatoz/fxopgen/types"
	"github.com/beatoz/fxopgen/types/xerrors"
)

func testPoly(a0 int64) *polyapprox.BasicPolyApprox {
	third := new(big.Float).SetPrec(100).Quo(big.NewFloat(1), big.NewFloat(3))
	bound := new(big.Float).SetPrec(100).SetMantExp(third, -20)
	return polyapprox.NewBasicPolyApprox([]*types.FixConstant{
		types.NewFixConstant(big.NewInt(a0), -14),
		types.NewFixConstant(big.NewInt(-3), -9),
		types.NewFixConstant(big.NewInt(0), -6),
		types.RoundFixConstant(third, -7),
	}, bound)
}

func testKey(i int64) piecewise.Key {
	return piecewise.Key{Function: "sin(x) on [0,1)", LSBIn: -12, LSBOut: -12, Degree: 3, Alpha: 2, Interval: i}
}

func requireSamePoly(t *testing.T, want, got *polyapprox.BasicPolyApprox) {
	require.Equal(t, want.Degree, got.Degree)
	require.Equal(t, want.IsZero, got.IsZero)
	for i := range want.Coeffs {
		require.Equal(t, 0, want.Coeffs[i].Mantissa.Cmp(got.Coeffs[i].Mantissa))
		require.Equal(t, want.Coeffs[i].Format, got.Coeffs[i].Format)
		require.Equal(t, want.Coeffs[i].Exact, got.Coeffs[i].Exact)
	}
	require.Equal(t, 0, want.ApproxErrorBound.Cmp(got.ApproxErrorBound))
	require.Equal(t, want.ApproxErrorBound.Text('p', 0), got.ApproxErrorBound.Text('p', 0))
}

func Test_CacheKey(t *testing.T) {
	k := testKey(1)
	require.Len(t, CacheKey(k), 17)
	require.Equal(t, CacheKey(k), CacheKey(testKey(1)))
	require.NotEqual(t, CacheKey(k), CacheKey(testKey(2)))
	require.Equal(t, KeyPrefixPoly[0], CacheKey(k)[0])
}

func Test_MemDBCache(t *testing.T) {
	c, xerr := OpenDBCache(BackendMemDB, "", log.NewNopLogger())
	require.NoError(t, xerr)
	defer c.Close()

	_, ok := c.Get(testKey(0))
	require.False(t, ok)

	p := testPoly(5)
	require.NoError(t, c.Put(testKey(0), p))
	got, ok := c.Get(testKey(0))
	require.True(t, ok)
	requireSamePoly(t, p, got)

	// present keys are never overwritten
	require.NoError(t, c.Put(testKey(0), testPoly(7)))
	got, ok = c.Get(testKey(0))
	require.True(t, ok)
	requireSamePoly(t, p, got)
	require.Equal(t, Stats{Hits: 2, Misses: 1, Puts: 1}, c.Stats())
}

func Test_KeyCompromised(t *testing.T) {
	c, xerr := OpenDBCache(BackendMemDB, "", log.NewNopLogger())
	require.NoError(t, xerr)
	defer c.Close()

	bz, xerr := encode(testKey(2), testPoly(1))
	require.NoError(t, xerr)
	require.NoError(t, c.db.Set(CacheKey(testKey(1)), bz))
	_, ok := c.Get(testKey(1))
	require.False(t, ok)

	_, xerr = decode(testKey(1), bz)
	require.ErrorIs(t, xerr, xerrors.ErrKeyCompromised)
	require.ErrorIs(t, xerr, xerrors.ErrCache)

	_, xerr = decode(testKey(1), []byte("{"))
	require.ErrorIs(t, xerr, xerrors.ErrCacheDecode)
}

func Test_GoLevelDBCachePersists(t *testing.T) {
	dir, err := os.MkdirTemp("", "polycache_test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	src := filepath.Join(dir, "cache")
	st, xerr := Open(BackendGoLevelDB, src, log.NewNopLogger())
	require.NoError(t, xerr)
	p := testPoly(9)
	require.NoError(t, st.Put(testKey(3), p))
	require.NoError(t, st.Close())

	dst := filepath.Join(dir, "exported")
	require.NoError(t, Export(src, dst))
	xerr = Export(filepath.Join(dir, "missing"), dst)
	require.ErrorIs(t, xerr, xerrors.ErrNotFoundResult)

	for _, d := range []string{src, dst} {
		st, xerr := Open(BackendGoLevelDB, d, log.NewNopLogger())
		require.NoError(t, xerr)
		got, ok := st.Get(testKey(3))
		require.True(t, ok, d)
		requireSamePoly(t, p, got)
		require.NoError(t, st.Close())
	}
}

func Test_TreeCacheFingerprint(t *testing.T) {
	a, xerr := NewMemTreeCache(log.NewNopLogger())
	require.NoError(t, xerr)
	defer a.Close()
	b, xerr := NewMemTreeCache(log.NewNopLogger())
	require.NoError(t, xerr)
	defer b.Close()

	for i := int64(0); i < 4; i++ {
		require.NoError(t, a.Put(testKey(i), testPoly(i)))
	}
	for i := int64(0); i < 4; i++ {
		require.NoError(t, b.Put(testKey(i), testPoly(i)))
	}
	ha, xerr := a.Fingerprint()
	require.NoError(t, xerr)
	hb, xerr := b.Fingerprint()
	require.NoError(t, xerr)
	require.NotEmpty(t, ha)
	require.Equal(t, ha, hb)
	require.Equal(t, int64(1), a.Version())

	got, ok := a.Get(testKey(2))
	require.True(t, ok)
	requireSamePoly(t, testPoly(2), got)

	require.NoError(t, a.Put(testKey(9), testPoly(9)))
	hc, _, xerr := a.Commit()
	require.NoError(t, xerr)
	require.NotEqual(t, ha, hc)
}

func Test_OpenUnknownBackend(t *testing.T) {
	_, xerr := Open("rocksdb", "", log.NewNopLogger())
	require.ErrorIs(t, xerr, xerrors.ErrInvalidParams)

	st, xerr := Open(BackendNone, "", log.NewNopLogger())
	require.NoError(t, xerr)
	require.NoError(t, st.Put(testKey(0), testPoly(0)))
	_, ok := st.Get(testKey(0))
	require.False(t, ok)
}

func Test_SplitterUsesCache(t *testing.T) {
	f, xerr := fixfunc.New("exp(x)", false, -10, -10, log.NewNopLogger())
	require.NoError(t, xerr)
	c, xerr := NewMemTreeCache(log.NewNopLogger())
	require.NoError(t, xerr)
	defer c.Close()

	s := piecewise.NewSplitter(f, piecewise.Params{Target: types.DefaultTargetParams()}, c, log.NewNopLogger())
	first, xerr := s.Build(context.Background(), 2, 2)
	require.NoError(t, xerr)
	// four approximations and at least four roundings at the shared lsbs
	puts := c.Stats().Puts
	require.GreaterOrEqual(t, puts, int64(8))
	require.Zero(t, c.Stats().Hits)

	second, xerr := s.Build(context.Background(), 2, 2)
	require.NoError(t, xerr)
	require.Equal(t, puts, c.Stats().Hits)
	require.Equal(t, puts, c.Stats().Puts)
	for k := range first.Polys {
		requireSamePoly(t, first.Polys[k], second.Polys[k])
	}
}
