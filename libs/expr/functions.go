package expr

import (
	"math"
	"math/big"

	"github.com/beatoz/fxopgen/libs/mpnum"
	"github.com/beatoz/fxopgen/types/xerrors"
)

type function struct {
	name     string
	float    func(float64) float64
	big      func(*big.Float, uint) (*big.Float, xerrors.XError)
	interval func(mpnum.Interval, uint) (mpnum.Interval, xerrors.XError)
	// derivative of fn at u, without the chain factor u'
	derive func(u Node) Node
}

func total(f func(*big.Float, uint) *big.Float) func(*big.Float, uint) (*big.Float, xerrors.XError) {
	return func(x *big.Float, prec uint) (*big.Float, xerrors.XError) {
		return f(x, prec), nil
	}
}

func totalI(f func(mpnum.Interval, uint) mpnum.Interval) func(mpnum.Interval, uint) (mpnum.Interval, xerrors.XError) {
	return func(x mpnum.Interval, prec uint) (mpnum.Interval, xerrors.XError) {
		return f(x, prec), nil
	}
}

func fcall(name string, u Node) Node {
	return &call{fn: functions[name], u: u}
}

func absBig(x *big.Float, prec uint) (*big.Float, xerrors.XError) {
	return new(big.Float).SetPrec(prec).Abs(x), nil
}

func absInterval(x mpnum.Interval, _ uint) (mpnum.Interval, xerrors.XError) {
	return x.Abs(), nil
}

var functions map[string]*function

func init() {
	fs := []*function{
		{"sin", math.Sin, total(mpnum.Sin), totalI(mpnum.ISin),
			func(u Node) Node { return fcall("cos", u) }},
		{"cos", math.Cos, total(mpnum.Cos), totalI(mpnum.ICos),
			func(u Node) Node { return mkNeg(fcall("sin", u)) }},
		{"tan", math.Tan, mpnum.Tan, mpnum.ITan,
			func(u Node) Node { return mkAdd(one(), mkPow(fcall("tan", u), intNum(2))) }},
		{"asin", math.Asin, mpnum.Asin, mpnum.IAsin,
			func(u Node) Node { return mkDiv(one(), fcall("sqrt", mkSub(one(), mkPow(u, intNum(2))))) }},
		{"acos", math.Acos, mpnum.Acos, mpnum.IAcos,
			func(u Node) Node { return mkNeg(mkDiv(one(), fcall("sqrt", mkSub(one(), mkPow(u, intNum(2)))))) }},
		{"atan", math.Atan, total(mpnum.Atan), totalI(mpnum.IAtan),
			func(u Node) Node { return mkDiv(one(), mkAdd(one(), mkPow(u, intNum(2)))) }},
		{"exp", math.Exp, total(mpnum.Exp), totalI(mpnum.IExp),
			func(u Node) Node { return fcall("exp", u) }},
		{"expm1", math.Expm1, total(mpnum.Expm1), totalI(mpnum.IExpm1),
			func(u Node) Node { return fcall("exp", u) }},
		{"log", math.Log, mpnum.Log, mpnum.ILog,
			func(u Node) Node { return mkDiv(one(), u) }},
		{"log2", math.Log2, mpnum.Log2, mpnum.ILog2,
			func(u Node) Node { return mkDiv(one(), mkMul(u, fcall("log", intNum(2)))) }},
		{"log10", math.Log10, mpnum.Log10, mpnum.ILog10,
			func(u Node) Node { return mkDiv(one(), mkMul(u, fcall("log", intNum(10)))) }},
		{"log1p", math.Log1p, mpnum.Log1p, mpnum.ILog1p,
			func(u Node) Node { return mkDiv(one(), mkAdd(one(), u)) }},
		{"sqrt", math.Sqrt, mpnum.Sqrt, mpnum.ISqrt,
			func(u Node) Node { return mkDiv(one(), mkMul(intNum(2), fcall("sqrt", u))) }},
		{"abs", math.Abs, absBig, absInterval,
			func(u Node) Node { return mkDiv(u, fcall("abs", u)) }},
		{"sinh", math.Sinh, total(mpnum.Sinh), totalI(mpnum.ISinh),
			func(u Node) Node { return fcall("cosh", u) }},
		{"cosh", math.Cosh, total(mpnum.Cosh), totalI(mpnum.ICosh),
			func(u Node) Node { return fcall("sinh", u) }},
		{"tanh", math.Tanh, total(mpnum.Tanh), totalI(mpnum.ITanh),
			func(u Node) Node { return mkSub(one(), mkPow(fcall("tanh", u), intNum(2))) }},
	}
	functions = make(map[string]*function, len(fs))
	for _, f := range fs {
		functions[f.name] = f
	}
}
