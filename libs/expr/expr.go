package expr

import (
	"math/big"

	"github.com/beatoz/fxopgen/libs/mpnum"
	"github.com/beatoz/fxopgen/types/xerrors"
)

// Function is a parsed real function of one variable x.
type Function struct {
	root Node
}

func Parse(src string) (*Function, xerrors.XError) {
	root, xerr := parse(src)
	if xerr != nil {
		return nil, xerr
	}
	return &Function{root: root}, nil
}

func MustParse(src string) *Function {
	f, xerr := Parse(src)
	if xerr != nil {
		panic(xerr)
	}
	return f
}

// EvalFloat is a float64 evaluation for search heuristics only.
func (f *Function) EvalFloat(x float64) float64 {
	return f.root.evalFloat(x)
}

func (f *Function) Eval(x *big.Float, prec uint) (*big.Float, xerrors.XError) {
	return f.root.eval(x, prec)
}

// EvalInterval returns an enclosure of f over x.
func (f *Function) EvalInterval(x mpnum.Interval, prec uint) (mpnum.Interval, xerrors.XError) {
	return f.root.evalInterval(x, prec)
}

func (f *Function) Derive() *Function {
	return &Function{root: f.root.derive()}
}

// Compose returns x -> f(a*x+b).
func (f *Function) Compose(a, b *big.Rat) *Function {
	inner := mkAdd(mkMul(ratNum(a), variable{}), ratNum(b))
	return &Function{root: f.root.subst(inner)}
}

// ScaleBy returns x -> c*f(x).
func (f *Function) ScaleBy(c *big.Rat) *Function {
	return &Function{root: mkMul(ratNum(c), f.root)}
}

// IsConstant reports whether f does not depend on x.
func (f *Function) IsConstant() bool {
	return !f.root.hasX()
}

func (f *Function) String() string {
	return f.root.String()
}
