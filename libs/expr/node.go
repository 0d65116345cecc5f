package expr

import (
	"fmt"
	"math"
	"math/big"

	"github.com/beatoz/fxopgen/libs/mpnum"
	"github.com/beatoz/fxopgen/types/xerrors"
)

// Node is an expression tree node in the single variable x.
type Node interface {
	evalFloat(x float64) float64
	eval(x *big.Float, prec uint) (*big.Float, xerrors.XError)
	evalInterval(x mpnum.Interval, prec uint) (mpnum.Interval, xerrors.XError)
	derive() Node
	subst(x Node) Node
	hasX() bool
	String() string
}

//
// leaves

type number struct {
	val *big.Rat
}

func (n *number) evalFloat(float64) float64 {
	f, _ := n.val.Float64()
	return f
}

func (n *number) eval(_ *big.Float, prec uint) (*big.Float, xerrors.XError) {
	return new(big.Float).SetPrec(prec).SetRat(n.val), nil
}

func (n *number) evalInterval(_ mpnum.Interval, prec uint) (mpnum.Interval, xerrors.XError) {
	return mpnum.RatInterval(n.val, prec), nil
}

func (n *number) derive() Node     { return zero() }
func (n *number) subst(Node) Node  { return n }
func (n *number) hasX() bool       { return false }
func (n *number) String() string {
	if n.val.Sign() < 0 {
		return "(" + n.val.RatString() + ")"
	}
	return n.val.RatString()
}

type piConst struct{}

func (piConst) evalFloat(float64) float64 { return math.Pi }
func (piConst) eval(_ *big.Float, prec uint) (*big.Float, xerrors.XError) {
	return mpnum.Pi(prec), nil
}
func (piConst) evalInterval(_ mpnum.Interval, prec uint) (mpnum.Interval, xerrors.XError) {
	return mpnum.IPi(prec), nil
}
func (piConst) derive() Node      { return zero() }
func (c piConst) subst(Node) Node { return c }
func (piConst) hasX() bool        { return false }
func (piConst) String() string    { return "pi" }

type variable struct{}

func (variable) evalFloat(x float64) float64 { return x }
func (variable) eval(x *big.Float, prec uint) (*big.Float, xerrors.XError) {
	return new(big.Float).SetPrec(prec).Set(x), nil
}
func (variable) evalInterval(x mpnum.Interval, _ uint) (mpnum.Interval, xerrors.XError) {
	return x, nil
}
func (variable) derive() Node       { return one() }
func (variable) subst(x Node) Node  { return x }
func (variable) hasX() bool         { return true }
func (variable) String() string     { return "x" }

//
// operators

type neg struct {
	u Node
}

func (n *neg) evalFloat(x float64) float64 { return -n.u.evalFloat(x) }
func (n *neg) eval(x *big.Float, prec uint) (*big.Float, xerrors.XError) {
	v, xerr := n.u.eval(x, prec)
	if xerr != nil {
		return nil, xerr
	}
	return v.Neg(v), nil
}
func (n *neg) evalInterval(x mpnum.Interval, prec uint) (mpnum.Interval, xerrors.XError) {
	v, xerr := n.u.evalInterval(x, prec)
	if xerr != nil {
		return mpnum.Interval{}, xerr
	}
	return v.Neg(), nil
}
func (n *neg) derive() Node      { return mkNeg(n.u.derive()) }
func (n *neg) subst(x Node) Node { return mkNeg(n.u.subst(x)) }
func (n *neg) hasX() bool        { return n.u.hasX() }
func (n *neg) String() string    { return "(-" + n.u.String() + ")" }

type binary struct {
	op   byte
	l, r Node
}

func (b *binary) evalFloat(x float64) float64 {
	l, r := b.l.evalFloat(x), b.r.evalFloat(x)
	switch b.op {
	case '+':
		return l + r
	case '-':
		return l - r
	case '*':
		return l * r
	case '/':
		return l / r
	}
	return math.Pow(l, r)
}

func (b *binary) eval(x *big.Float, prec uint) (*big.Float, xerrors.XError) {
	l, xerr := b.l.eval(x, prec)
	if xerr != nil {
		return nil, xerr
	}
	r, xerr := b.r.eval(x, prec)
	if xerr != nil {
		return nil, xerr
	}
	z := new(big.Float).SetPrec(prec)
	switch b.op {
	case '+':
		return z.Add(l, r), nil
	case '-':
		return z.Sub(l, r), nil
	case '*':
		return z.Mul(l, r), nil
	case '/':
		if r.Sign() == 0 {
			return nil, xerrors.ErrDomain.Wrapf("division by zero in %s", b.String())
		}
		return z.Quo(l, r), nil
	}
	return mpnum.Pow(l, r, prec)
}

func (b *binary) evalInterval(x mpnum.Interval, prec uint) (mpnum.Interval, xerrors.XError) {
	l, xerr := b.l.evalInterval(x, prec)
	if xerr != nil {
		return mpnum.Interval{}, xerr
	}
	if b.op == '*' && b.r == b.l {
		return l.Sqr(prec), nil
	}
	r, xerr := b.r.evalInterval(x, prec)
	if xerr != nil {
		return mpnum.Interval{}, xerr
	}
	switch b.op {
	case '+':
		return l.Add(r, prec), nil
	case '-':
		return l.Sub(r, prec), nil
	case '*':
		return l.Mul(r, prec), nil
	case '/':
		return l.Div(r, prec)
	}
	return mpnum.IPow(l, r, prec)
}

func (b *binary) derive() Node {
	dl, dr := b.l.derive(), b.r.derive()
	switch b.op {
	case '+':
		return mkAdd(dl, dr)
	case '-':
		return mkSub(dl, dr)
	case '*':
		return mkAdd(mkMul(dl, b.r), mkMul(b.l, dr))
	case '/':
		return mkDiv(mkSub(mkMul(dl, b.r), mkMul(b.l, dr)), mkPow(b.r, intNum(2)))
	}
	// power
	if !b.r.hasX() {
		// c*u^(c-1)*u'
		return mkMul(mkMul(b.r, mkPow(b.l, mkSub(b.r, one()))), dl)
	}
	lnu := &call{fn: functions["log"], u: b.l}
	if !b.l.hasX() {
		return mkMul(mkMul(b, lnu), dr)
	}
	// u^v*(v'*ln(u) + v*u'/u)
	return mkMul(b, mkAdd(mkMul(dr, lnu), mkDiv(mkMul(b.r, dl), b.l)))
}

func (b *binary) subst(x Node) Node {
	l, r := b.l.subst(x), b.r.subst(x)
	switch b.op {
	case '+':
		return mkAdd(l, r)
	case '-':
		return mkSub(l, r)
	case '*':
		return mkMul(l, r)
	case '/':
		return mkDiv(l, r)
	}
	return mkPow(l, r)
}

func (b *binary) hasX() bool { return b.l.hasX() || b.r.hasX() }

func (b *binary) String() string {
	return fmt.Sprintf("(%s%c%s)", b.l.String(), b.op, b.r.String())
}

type call struct {
	fn *function
	u  Node
}

func (c *call) evalFloat(x float64) float64 {
	return c.fn.float(c.u.evalFloat(x))
}

func (c *call) eval(x *big.Float, prec uint) (*big.Float, xerrors.XError) {
	v, xerr := c.u.eval(x, prec+mpnum.GuardBits)
	if xerr != nil {
		return nil, xerr
	}
	return c.fn.big(v, prec)
}

func (c *call) evalInterval(x mpnum.Interval, prec uint) (mpnum.Interval, xerrors.XError) {
	v, xerr := c.u.evalInterval(x, prec)
	if xerr != nil {
		return mpnum.Interval{}, xerr
	}
	return c.fn.interval(v, prec)
}

func (c *call) derive() Node {
	return mkMul(c.fn.derive(c.u), c.u.derive())
}

func (c *call) subst(x Node) Node {
	return &call{fn: c.fn, u: c.u.subst(x)}
}

func (c *call) hasX() bool { return c.u.hasX() }

func (c *call) String() string {
	return c.fn.name + "(" + c.u.String() + ")"
}
