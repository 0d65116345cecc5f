package expr

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/beatoz/fxopgen/libs/mpnum"
	"github.com/beatoz/fxopgen/types/xerrors"
)

func Test_ParseAndEvalFloat(t *testing.T) {
	cases := []struct {
		src  string
		x    float64
		want float64
	}{
		{"sin(pi/4*x)", 0.5, math.Sin(math.Pi / 8)},
		{"2^x-1", 0.25, math.Pow(2, 0.25) - 1},
		{"-x^2", 3, -9},
		{"2^3^2", 0, 512},
		{"1b-3 + x", 1, 1.125},
		{"1.5e2*x", 2, 300},
		{"log2(1+x)", 0.75, math.Log2(1.75)},
		{"exp(x)/(1+x*x)", 0.3, math.Exp(0.3) / 1.09},
		{"sqrt(abs(x))", -4, 2},
		{"+x - -x", 1.5, 3},
		{"tanh(x) + cosh(x) - sinh(x)", 0.2, math.Tanh(0.2) + math.Exp(-0.2)},
		{"asin(x) + acos(x)", 0.3, math.Pi / 2},
		{"LOG10(x)", 100, 2},
	}
	for _, c := range cases {
		f, xerr := Parse(c.src)
		require.NoError(t, xerr, c.src)
		require.InDelta(t, c.want, f.EvalFloat(c.x), 1e-12, c.src)
	}
}

func Test_ParseErrors(t *testing.T) {
	for _, src := range []string{"", "sin(x", "foo(x)", "x +", "1..2", "2e", "x $ 1", "sin x", "(x))"} {
		_, xerr := Parse(src)
		require.ErrorIs(t, xerr, xerrors.ErrParse, src)
	}
}

func Test_EvalBig(t *testing.T) {
	f := MustParse("exp(x) - 1")
	v, xerr := f.Eval(big.NewFloat(0.5), 128)
	require.NoError(t, xerr)
	got, _ := v.Float64()
	require.InDelta(t, math.Expm1(0.5), got, 1e-15)

	_, xerr = MustParse("log(x)").Eval(big.NewFloat(-1), 64)
	require.ErrorIs(t, xerr, xerrors.ErrDomain)
	_, xerr = MustParse("1/x").Eval(new(big.Float), 64)
	require.ErrorIs(t, xerr, xerrors.ErrDomain)
}

func Test_EvalInterval(t *testing.T) {
	f := MustParse("x*x - x")
	iv := mpnum.NewInterval(big.NewFloat(0), big.NewFloat(1))
	r, xerr := f.EvalInterval(iv, 64)
	require.NoError(t, xerr)
	// dependency problem makes it wider than [-1/4, 0], but it must enclose it
	lo, hi := r.Float64()
	require.LessOrEqual(t, lo, -0.25)
	require.GreaterOrEqual(t, hi, 0.0)

	g := MustParse("sin(pi/4*x)")
	for _, x := range []float64{-1, -0.3, 0, 0.7, 1} {
		r, xerr := g.EvalInterval(mpnum.Point(big.NewFloat(x)), 128)
		require.NoError(t, xerr)
		lo, hi := r.Float64()
		want := math.Sin(math.Pi / 4 * x)
		require.InDelta(t, want, lo, 1e-15)
		require.InDelta(t, want, hi, 1e-15)
	}

	_, xerr = MustParse("1/x").EvalInterval(mpnum.NewInterval(big.NewFloat(-1), big.NewFloat(1)), 64)
	require.ErrorIs(t, xerr, xerrors.ErrDomain)
}

func Test_Derive(t *testing.T) {
	cases := []struct {
		src   string
		deriv func(float64) float64
	}{
		{"x^3", func(x float64) float64 { return 3 * x * x }},
		{"sin(pi/4*x)", func(x float64) float64 { return math.Pi / 4 * math.Cos(math.Pi/4*x) }},
		{"2^x", func(x float64) float64 { return math.Ln2 * math.Pow(2, x) }},
		{"x^x", func(x float64) float64 { return math.Pow(x, x) * (math.Log(x) + 1) }},
		{"log(1+x)/x", func(x float64) float64 { return (x/(1+x) - math.Log(1+x)) / (x * x) }},
		{"atan(x)", func(x float64) float64 { return 1 / (1 + x*x) }},
		{"sqrt(x)", func(x float64) float64 { return 0.5 / math.Sqrt(x) }},
		{"tanh(2*x)", func(x float64) float64 { return 2 * (1 - math.Pow(math.Tanh(2*x), 2)) }},
		{"acos(x)", func(x float64) float64 { return -1 / math.Sqrt(1-x*x) }},
		{"log10(x)", func(x float64) float64 { return 1 / (x * math.Ln10) }},
	}
	for _, c := range cases {
		d := MustParse(c.src).Derive()
		for _, x := range []float64{0.2, 0.5, 0.9} {
			require.InDelta(t, c.deriv(x), d.EvalFloat(x), 1e-12, "%s at %v: %s", c.src, x, d.String())
		}
	}

	require.True(t, MustParse("3*x+1").Derive().IsConstant())
	require.Equal(t, "3", MustParse("3*x+1").Derive().String())
	require.Equal(t, "0", MustParse("pi^2").Derive().String())
}

func Test_ComposeAndScale(t *testing.T) {
	f := MustParse("sin(x)")
	g := f.Compose(big.NewRat(1, 4), big.NewRat(1, 2)) // sin(x/4 + 1/2)
	require.InDelta(t, math.Sin(0.25+0.5), g.EvalFloat(1), 1e-15)

	// reparsing the printed form gives the same function
	h := MustParse(g.String())
	require.InDelta(t, g.EvalFloat(-0.7), h.EvalFloat(-0.7), 1e-15)

	s := f.ScaleBy(big.NewRat(4095, 4096))
	require.InDelta(t, 4095.0/4096*math.Sin(0.3), s.EvalFloat(0.3), 1e-15)
}
