package mpnum

import (
	"math"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/beatoz/fxopgen/types/xerrors"
)

const (
	piDigits  = "3.14159265358979323846264338327950288419716939937510582097494459"
	ln2Digits = "0.69314718055994530941723212145817656807550013436025525412068000"
	eDigits   = "2.71828182845904523536028747135266249775724709369995957496696762"
)

func parse(t *testing.T, s string, prec uint) *big.Float {
	f, _, err := big.ParseFloat(s, 10, prec, big.ToNearestEven)
	require.NoError(t, err)
	return f
}

// requireClose checks |a-b| <= 2^-bits * max(1,|b|).
func requireClose(t *testing.T, a, b *big.Float, bits int) {
	d := new(big.Float).SetPrec(512).Sub(a, b)
	d.Abs(d)
	ref := new(big.Float).Abs(b)
	if ref.Cmp(big.NewFloat(1)) < 0 {
		ref = big.NewFloat(1)
	}
	tol := new(big.Float).SetPrec(512).Mul(ref, Pow2(-bits, 64))
	require.True(t, d.Cmp(tol) <= 0, "got %s want %s", a.Text('g', 40), b.Text('g', 40))
}

func Test_Constants(t *testing.T) {
	requireClose(t, Pi(200), parse(t, piDigits, 256), 190)
	requireClose(t, Ln2(200), parse(t, ln2Digits, 256), 190)
	requireClose(t, Exp(FromInt64(1, 200), 200), parse(t, eDigits, 256), 190)
	requireClose(t, Ln10(100), FromFloat64(math.Ln10, 100), 50)
}

func Test_AgainstFloat64(t *testing.T) {
	xs := []float64{-3.7, -1, -0.4, -1e-5, 1e-7, 0.3, 0.75, 1, 2.5, 10, 33.3}
	for _, x := range xs {
		bx := FromFloat64(x, 128)
		requireClose(t, Exp(bx, 128), FromFloat64(math.Exp(x), 128), 48)
		requireClose(t, Expm1(bx, 128), FromFloat64(math.Expm1(x), 128), 48)
		requireClose(t, Sin(bx, 128), FromFloat64(math.Sin(x), 128), 48)
		requireClose(t, Cos(bx, 128), FromFloat64(math.Cos(x), 128), 48)
		requireClose(t, Atan(bx, 128), FromFloat64(math.Atan(x), 128), 48)
		requireClose(t, Sinh(bx, 128), FromFloat64(math.Sinh(x), 128), 48)
		requireClose(t, Cosh(bx, 128), FromFloat64(math.Cosh(x), 128), 48)
		requireClose(t, Tanh(bx, 128), FromFloat64(math.Tanh(x), 128), 48)
		if x > 0 {
			l, xerr := Log(bx, 128)
			require.NoError(t, xerr)
			requireClose(t, l, FromFloat64(math.Log(x), 128), 48)
			s, xerr := Sqrt(bx, 128)
			require.NoError(t, xerr)
			requireClose(t, s, FromFloat64(math.Sqrt(x), 128), 48)
		}
		if x > -1 {
			l, xerr := Log1p(bx, 128)
			require.NoError(t, xerr)
			requireClose(t, l, FromFloat64(math.Log1p(x), 128), 48)
		}
		if math.Abs(x) <= 1 {
			as, xerr := Asin(bx, 128)
			require.NoError(t, xerr)
			requireClose(t, as, FromFloat64(math.Asin(x), 128), 48)
			ac, xerr := Acos(bx, 128)
			require.NoError(t, xerr)
			requireClose(t, ac, FromFloat64(math.Acos(x), 128), 48)
		}
	}
}

func Test_ExpAgainstDecimal(t *testing.T) {
	for _, s := range []string{"0.125", "1.5", "-2.25", "7"} {
		d, err := decimal.NewFromString(s)
		require.NoError(t, err)
		want, err := d.ExpTaylor(40)
		require.NoError(t, err)

		got := Exp(parse(t, s, 200), 200)
		requireClose(t, got, parse(t, want.String(), 256), 120)
	}
}

func Test_Pow(t *testing.T) {
	v, xerr := Pow(FromInt64(2, 128), FromFloat64(0.5, 128), 128)
	require.NoError(t, xerr)
	requireClose(t, v, FromFloat64(math.Sqrt2, 128), 50)

	v, xerr = Pow(FromInt64(3, 128), FromInt64(-2, 128), 128)
	require.NoError(t, xerr)
	requireClose(t, v, FromFloat64(1.0/9, 128), 50)

	v, xerr = Pow(FromInt64(-2, 128), FromInt64(3, 128), 128)
	require.NoError(t, xerr)
	require.Equal(t, 0, v.Cmp(FromInt64(-8, 128)))

	_, xerr = Pow(FromInt64(-2, 128), FromFloat64(0.5, 128), 128)
	require.ErrorIs(t, xerr, xerrors.ErrDomain)
}

func Test_DomainErrors(t *testing.T) {
	_, xerr := Log(FromInt64(0, 64), 64)
	require.ErrorIs(t, xerr, xerrors.ErrDomain)
	_, xerr = Log1p(FromInt64(-1, 64), 64)
	require.ErrorIs(t, xerr, xerrors.ErrDomain)
	_, xerr = Sqrt(FromInt64(-1, 64), 64)
	require.ErrorIs(t, xerr, xerrors.ErrDomain)
	_, xerr = Asin(FromFloat64(1.5, 64), 64)
	require.ErrorIs(t, xerr, xerrors.ErrDomain)
	_, xerr = PowInt(FromInt64(0, 64), -1, 64)
	require.ErrorIs(t, xerr, xerrors.ErrDomain)
}

func Test_Rounding(t *testing.T) {
	require.Equal(t, int64(-2), Floor(FromFloat64(-1.5, 64)).Int64())
	require.Equal(t, int64(-1), Ceil(FromFloat64(-1.5, 64)).Int64())
	require.Equal(t, int64(2), Ceil(FromFloat64(1.25, 64)).Int64())
	require.Equal(t, int64(3), Floor(FromInt64(3, 64)).Int64())
	require.Equal(t, int64(-1), RoundNearest(FromFloat64(-1.5, 64)).Int64())
	require.Equal(t, int64(3), RoundNearest(FromFloat64(2.5, 64)).Int64())
	require.Equal(t, -3, Log2Floor(FromFloat64(0.2, 64)))
	require.Equal(t, 0, Log2Floor(FromInt64(1, 64)))
	require.Equal(t, 3, Log2Floor(FromInt64(-15, 64)))
}
