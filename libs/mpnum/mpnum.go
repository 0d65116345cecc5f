package mpnum

import (
	"math"
	"math/big"
	"sync"

	"github.com/beatoz/fxopgen/types/xerrors"
)

// GuardBits is the number of extra bits every elementary function carries
// internally before rounding its result to the requested precision.
const GuardBits = 32

// expSquarings is the argument scaling exponent of the exp Taylor kernel.
const expSquarings = 8

func newf(prec uint) *big.Float {
	return new(big.Float).SetPrec(prec)
}

func FromInt64(v int64, prec uint) *big.Float {
	return newf(prec).SetInt64(v)
}

func FromFloat64(v float64, prec uint) *big.Float {
	return newf(prec).SetFloat64(v)
}

func FromInt(v *big.Int, prec uint) *big.Float {
	return newf(prec).SetInt(v)
}

// Pow2 returns the exact value 2^e.
func Pow2(e int, prec uint) *big.Float {
	return newf(max(prec, 2)).SetMantExp(big.NewFloat(0.5), e+1)
}

// Scale returns x*2^e, which is exact.
func Scale(x *big.Float, e int) *big.Float {
	return newf(max(x.Prec(), 2)).SetMantExp(x, e)
}

// Exponent returns e such that x = m*2^e with 0.5 <= |m| < 1, and 0 for x == 0.
func Exponent(x *big.Float) int {
	if x.Sign() == 0 {
		return 0
	}
	return x.MantExp(nil)
}

// Log2Floor returns floor(log2(|x|)) for x != 0.
func Log2Floor(x *big.Float) int {
	return Exponent(x) - 1
}

func Floor(x *big.Float) *big.Int {
	i, acc := x.Int(nil)
	if acc == big.Above {
		i.Sub(i, big.NewInt(1))
	}
	return i
}

func Ceil(x *big.Float) *big.Int {
	i, acc := x.Int(nil)
	if acc == big.Below {
		i.Add(i, big.NewInt(1))
	}
	return i
}

// RoundNearest rounds to the nearest integer, ties toward +inf.
func RoundNearest(x *big.Float) *big.Int {
	h := newf(x.Prec() + 2).Add(x, big.NewFloat(0.5))
	return Floor(h)
}

func Abs(x *big.Float) *big.Float {
	return newf(x.Prec()).Abs(x)
}

func Max(a, b *big.Float) *big.Float {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

func Min(a, b *big.Float) *big.Float {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// negligible reports whether term is below 2^-wp relative to sum.
func negligible(term, sum *big.Float, wp uint) bool {
	if term.Sign() == 0 {
		return true
	}
	ref := 0
	if sum.Sign() != 0 {
		ref = Exponent(sum)
	}
	return Exponent(term) < ref-int(wp)
}

//
// constants

type constCache struct {
	mtx     sync.Mutex
	val     *big.Float
	compute func(prec uint) *big.Float
}

func (c *constCache) get(prec uint) *big.Float {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.val == nil || c.val.Prec() < prec+GuardBits {
		c.val = c.compute(prec + GuardBits)
	}
	return newf(prec).Set(c.val)
}

var (
	piCache   = &constCache{compute: computePi}
	ln2Cache  = &constCache{compute: computeLn2}
	ln10Cache = &constCache{compute: computeLn10}
)

func Pi(prec uint) *big.Float   { return piCache.get(prec) }
func Ln2(prec uint) *big.Float  { return ln2Cache.get(prec) }
func Ln10(prec uint) *big.Float { return ln10Cache.get(prec) }

// atanInv returns atan(1/n).
func atanInv(n int64, wp uint) *big.Float {
	x := newf(wp).Quo(FromInt64(1, wp), FromInt64(n, wp))
	nn := FromInt64(n*n, wp)
	sum := newf(wp).Set(x)
	term := newf(wp).Set(x)
	for k := int64(3); ; k += 2 {
		term.Quo(term, nn)
		t := newf(wp).Quo(term, FromInt64(k, wp))
		if (k/2)%2 == 1 {
			sum.Sub(sum, t)
		} else {
			sum.Add(sum, t)
		}
		if negligible(t, sum, wp) {
			break
		}
	}
	return sum
}

// atanhSeries returns atanh(z) for small |z|.
func atanhSeries(z *big.Float, wp uint) *big.Float {
	zz := newf(wp).Mul(z, z)
	sum := newf(wp).Set(z)
	term := newf(wp).Set(z)
	for k := int64(3); ; k += 2 {
		term.Mul(term, zz)
		t := newf(wp).Quo(term, FromInt64(k, wp))
		sum.Add(sum, t)
		if negligible(t, sum, wp) {
			break
		}
	}
	return sum
}

func computePi(prec uint) *big.Float {
	wp := prec + 16
	a := atanInv(5, wp)
	b := atanInv(239, wp)
	a.Mul(a, FromInt64(16, wp))
	b.Mul(b, FromInt64(4, wp))
	return newf(prec).Sub(a, b)
}

func computeLn2(prec uint) *big.Float {
	wp := prec + 16
	inv := func(n int64) *big.Float {
		return atanhSeries(newf(wp).Quo(FromInt64(1, wp), FromInt64(n, wp)), wp)
	}
	a := inv(26)
	a.Mul(a, FromInt64(18, wp))
	b := inv(4801)
	b.Mul(b, FromInt64(2, wp))
	c := inv(8749)
	c.Mul(c, FromInt64(8, wp))
	a.Sub(a, b)
	a.Add(a, c)
	return newf(prec).Set(a)
}

func computeLn10(prec uint) *big.Float {
	v, _ := Log(FromInt64(10, prec), prec)
	return v
}

//
// exponential and logarithm

func Exp(x *big.Float, prec uint) *big.Float {
	if x.Sign() == 0 {
		return FromInt64(1, prec)
	}
	if Exponent(x) > 40 {
		// outside of the big.Float exponent range
		if x.Sign() > 0 {
			return newf(prec).SetInf(false)
		}
		return newf(prec)
	}
	wp := prec + GuardBits + expSquarings
	kbits := uint(max(Exponent(x), 0))
	ln2 := Ln2(wp + kbits + 8)
	k := RoundNearest(newf(wp + kbits).Quo(x, ln2))

	r := newf(wp + kbits + 8).Mul(FromInt(k, wp+kbits+8), ln2)
	r.Sub(x, r)
	r = newf(wp).SetMantExp(r, -expSquarings)

	sum := FromInt64(1, wp)
	term := FromInt64(1, wp)
	for n := int64(1); ; n++ {
		term.Mul(term, r)
		term.Quo(term, FromInt64(n, wp))
		sum.Add(sum, term)
		if negligible(term, sum, wp) {
			break
		}
	}
	for i := 0; i < expSquarings; i++ {
		sum.Mul(sum, sum)
	}
	return newf(prec).SetMantExp(sum, int(k.Int64()))
}

func Expm1(x *big.Float, prec uint) *big.Float {
	if x.Sign() == 0 {
		return newf(prec)
	}
	wp := prec + GuardBits
	if Exponent(x) <= -1 {
		// |x| < 0.5: direct series, no cancellation
		sum := newf(wp).Set(x)
		term := newf(wp).Set(x)
		for n := int64(2); ; n++ {
			term.Mul(term, x)
			term.Quo(term, FromInt64(n, wp))
			sum.Add(sum, term)
			if negligible(term, sum, wp) {
				break
			}
		}
		return newf(prec).Set(sum)
	}
	e := Exp(x, wp)
	return newf(prec).Sub(e, FromInt64(1, wp))
}

func Log(x *big.Float, prec uint) (*big.Float, xerrors.XError) {
	if x.Sign() <= 0 {
		return nil, xerrors.ErrDomain.Wrapf("log of non-positive value %s", x.Text('g', 10))
	}
	wp := prec + GuardBits
	m := newf(wp)
	e := x.MantExp(m)
	if m.Cmp(big.NewFloat(math.Sqrt2/2)) < 0 {
		m.SetMantExp(m, 1)
		e--
	}
	one := FromInt64(1, wp)
	num := newf(wp).Sub(m, one)
	if num.Sign() == 0 && e == 0 {
		return newf(prec), nil
	}
	den := newf(wp).Add(m, one)
	z := newf(wp).Quo(num, den)
	s := atanhSeries(z, wp)
	s.SetMantExp(s, 1)
	if e != 0 {
		ebits := uint(bitsLen(int64(e)))
		l2 := Ln2(wp + ebits)
		l2.Mul(l2, FromInt64(int64(e), wp+ebits))
		s = newf(wp+ebits).Add(s, l2)
	}
	return newf(prec).Set(s), nil
}

func Log1p(x *big.Float, prec uint) (*big.Float, xerrors.XError) {
	wp := prec + GuardBits
	one := FromInt64(1, wp)
	if newf(wp).Add(x, one).Sign() <= 0 {
		return nil, xerrors.ErrDomain.Wrapf("log1p of value %s <= -1", x.Text('g', 10))
	}
	if x.Sign() == 0 {
		return newf(prec), nil
	}
	if Exponent(x) <= -1 {
		// log1p(x) = 2 atanh(x/(2+x)), |x/(2+x)| <= 1/3
		z := newf(wp).Quo(x, newf(wp).Add(x, FromInt64(2, wp)))
		s := atanhSeries(z, wp)
		return newf(prec).SetMantExp(s, 1), nil
	}
	return Log(newf(wp).Add(x, one), prec)
}

func Log2(x *big.Float, prec uint) (*big.Float, xerrors.XError) {
	l, xerr := Log(x, prec+GuardBits)
	if xerr != nil {
		return nil, xerr
	}
	return newf(prec).Quo(l, Ln2(prec+GuardBits)), nil
}

func Log10(x *big.Float, prec uint) (*big.Float, xerrors.XError) {
	l, xerr := Log(x, prec+GuardBits)
	if xerr != nil {
		return nil, xerr
	}
	return newf(prec).Quo(l, Ln10(prec+GuardBits)), nil
}

//
// trigonometric functions

// reduceHalfPi returns r and k mod 4 such that x = r + k*pi/2 with |r| <= pi/4.
func reduceHalfPi(x *big.Float, wp uint) (*big.Float, int) {
	extra := uint(max(Exponent(x), 0))
	p := wp + extra + 16
	halfPi := Pi(p)
	halfPi.SetMantExp(halfPi, -1)
	k := RoundNearest(newf(p).Quo(x, halfPi))
	if k.Sign() == 0 {
		return newf(wp).Set(x), 0
	}
	r := newf(p).Mul(FromInt(k, p), halfPi)
	r.Sub(x, r)
	q := int(new(big.Int).Mod(k, big.NewInt(4)).Int64())
	return newf(wp).Set(r), q
}

func sinSeries(r *big.Float, wp uint) *big.Float {
	rr := newf(wp).Mul(r, r)
	sum := newf(wp).Set(r)
	term := newf(wp).Set(r)
	for n := int64(3); ; n += 2 {
		term.Mul(term, rr)
		term.Quo(term, FromInt64((n-1)*n, wp))
		term.Neg(term)
		sum.Add(sum, term)
		if negligible(term, sum, wp) {
			break
		}
	}
	return sum
}

func cosSeries(r *big.Float, wp uint) *big.Float {
	rr := newf(wp).Mul(r, r)
	sum := FromInt64(1, wp)
	term := FromInt64(1, wp)
	for n := int64(2); ; n += 2 {
		term.Mul(term, rr)
		term.Quo(term, FromInt64((n-1)*n, wp))
		term.Neg(term)
		sum.Add(sum, term)
		if negligible(term, sum, wp) {
			break
		}
	}
	return sum
}

func Sin(x *big.Float, prec uint) *big.Float {
	if x.Sign() == 0 {
		return newf(prec)
	}
	wp := prec + GuardBits
	r, q := reduceHalfPi(x, wp)
	var v *big.Float
	switch q {
	case 0:
		v = sinSeries(r, wp)
	case 1:
		v = cosSeries(r, wp)
	case 2:
		v = sinSeries(r, wp)
		v.Neg(v)
	default:
		v = cosSeries(r, wp)
		v.Neg(v)
	}
	return newf(prec).Set(v)
}

func Cos(x *big.Float, prec uint) *big.Float {
	if x.Sign() == 0 {
		return FromInt64(1, prec)
	}
	wp := prec + GuardBits
	r, q := reduceHalfPi(x, wp)
	var v *big.Float
	switch q {
	case 0:
		v = cosSeries(r, wp)
	case 1:
		v = sinSeries(r, wp)
		v.Neg(v)
	case 2:
		v = cosSeries(r, wp)
		v.Neg(v)
	default:
		v = sinSeries(r, wp)
	}
	return newf(prec).Set(v)
}

func Tan(x *big.Float, prec uint) (*big.Float, xerrors.XError) {
	wp := prec + GuardBits
	c := Cos(x, wp)
	if c.Sign() == 0 {
		return nil, xerrors.ErrDomain.Wrapf("tan pole at %s", x.Text('g', 10))
	}
	return newf(prec).Quo(Sin(x, wp), c), nil
}

func Atan(x *big.Float, prec uint) *big.Float {
	if x.Sign() == 0 {
		return newf(prec)
	}
	wp := prec + GuardBits + 16
	ax := newf(wp).Abs(x)
	one := FromInt64(1, wp)
	invert := ax.Cmp(one) > 0
	if invert {
		ax.Quo(one, ax)
	}
	// halve the angle until the series converges fast
	halvings := 0
	for ; halvings < 8 && Exponent(ax) > -8; halvings++ {
		s := newf(wp).Mul(ax, ax)
		s.Add(s, one)
		s.Sqrt(s)
		s.Add(s, one)
		ax.Quo(ax, s)
	}
	xx := newf(wp).Mul(ax, ax)
	sum := newf(wp).Set(ax)
	term := newf(wp).Set(ax)
	for k := int64(3); ; k += 2 {
		term.Mul(term, xx)
		term.Neg(term)
		t := newf(wp).Quo(term, FromInt64(k, wp))
		sum.Add(sum, t)
		if negligible(t, sum, wp) {
			break
		}
	}
	sum.SetMantExp(sum, halvings)
	if invert {
		halfPi := Pi(wp)
		halfPi.SetMantExp(halfPi, -1)
		sum.Sub(halfPi, sum)
	}
	if x.Sign() < 0 {
		sum.Neg(sum)
	}
	return newf(prec).Set(sum)
}

func Asin(x *big.Float, prec uint) (*big.Float, xerrors.XError) {
	wp := prec + GuardBits
	one := FromInt64(1, wp)
	ax := newf(wp).Abs(x)
	switch ax.Cmp(one) {
	case 1:
		return nil, xerrors.ErrDomain.Wrapf("asin of %s", x.Text('g', 10))
	case 0:
		halfPi := Pi(prec)
		halfPi.SetMantExp(halfPi, -1)
		if x.Sign() < 0 {
			halfPi.Neg(halfPi)
		}
		return halfPi, nil
	}
	// 1-x^2 = (1-x)(1+x)
	d := newf(wp).Mul(newf(wp).Sub(one, x), newf(wp).Add(one, x))
	d.Sqrt(d)
	return Atan(newf(wp).Quo(x, d), prec), nil
}

func Acos(x *big.Float, prec uint) (*big.Float, xerrors.XError) {
	wp := prec + GuardBits
	one := FromInt64(1, wp)
	if newf(wp).Abs(x).Cmp(one) > 0 {
		return nil, xerrors.ErrDomain.Wrapf("acos of %s", x.Text('g', 10))
	}
	if x.Cmp(newf(wp).Neg(one)) == 0 {
		return Pi(prec), nil
	}
	// acos(x) = 2 atan(sqrt((1-x)/(1+x)))
	q := newf(wp).Quo(newf(wp).Sub(one, x), newf(wp).Add(one, x))
	q.Sqrt(q)
	a := Atan(q, wp)
	return newf(prec).SetMantExp(a, 1), nil
}

//
// hyperbolic functions

func Sinh(x *big.Float, prec uint) *big.Float {
	if x.Sign() == 0 {
		return newf(prec)
	}
	wp := prec + GuardBits
	if Exponent(x) <= -1 {
		em1 := Expm1(x, wp)
		d := newf(wp).Add(em1, FromInt64(1, wp))
		q := newf(wp).Quo(em1, d)
		q.Add(q, em1)
		return newf(prec).SetMantExp(q, -1)
	}
	e := Exp(x, wp)
	ie := newf(wp).Quo(FromInt64(1, wp), e)
	e.Sub(e, ie)
	return newf(prec).SetMantExp(e, -1)
}

func Cosh(x *big.Float, prec uint) *big.Float {
	wp := prec + GuardBits
	e := Exp(x, wp)
	ie := newf(wp).Quo(FromInt64(1, wp), e)
	e.Add(e, ie)
	return newf(prec).SetMantExp(e, -1)
}

func Tanh(x *big.Float, prec uint) *big.Float {
	if x.Sign() == 0 {
		return newf(prec)
	}
	wp := prec + GuardBits
	// tanh|x| = expm1(2|x|)/(expm1(2|x|)+2)
	ax := newf(wp).Abs(x)
	ax.SetMantExp(ax, 1)
	em1 := Expm1(ax, wp)
	v := newf(wp).Quo(em1, newf(wp).Add(em1, FromInt64(2, wp)))
	if x.Sign() < 0 {
		v.Neg(v)
	}
	return newf(prec).Set(v)
}

//
// powers

func Sqrt(x *big.Float, prec uint) (*big.Float, xerrors.XError) {
	if x.Sign() < 0 {
		return nil, xerrors.ErrDomain.Wrapf("sqrt of negative value %s", x.Text('g', 10))
	}
	if x.Sign() == 0 {
		return newf(prec), nil
	}
	return newf(prec).Sqrt(x), nil
}

func PowInt(x *big.Float, n int64, prec uint) (*big.Float, xerrors.XError) {
	if n == 0 {
		return FromInt64(1, prec), nil
	}
	if x.Sign() == 0 {
		if n < 0 {
			return nil, xerrors.ErrDomain.Wrapf("zero raised to negative power %d", n)
		}
		return newf(prec), nil
	}
	an := n
	if an < 0 {
		an = -an
	}
	wp := prec + GuardBits + uint(bitsLen(an))
	res := FromInt64(1, wp)
	base := newf(wp).Set(x)
	for an > 0 {
		if an&1 == 1 {
			res.Mul(res, base)
		}
		an >>= 1
		if an > 0 {
			base.Mul(base, base)
		}
	}
	if n < 0 {
		res.Quo(FromInt64(1, wp), res)
	}
	return newf(prec).Set(res), nil
}

// IntegerExponent reports whether y is an integer small enough for PowInt.
func IntegerExponent(y *big.Float) (int64, bool) {
	if !y.IsInt() {
		return 0, false
	}
	n, acc := y.Int64()
	if acc != big.Exact || n > 1<<20 || n < -(1<<20) {
		return 0, false
	}
	return n, true
}

func Pow(x, y *big.Float, prec uint) (*big.Float, xerrors.XError) {
	if n, ok := IntegerExponent(y); ok {
		return PowInt(x, n, prec)
	}
	switch x.Sign() {
	case 0:
		if y.Sign() > 0 {
			return newf(prec), nil
		}
		return nil, xerrors.ErrDomain.Wrapf("zero raised to non-positive power %s", y.Text('g', 10))
	case -1:
		return nil, xerrors.ErrDomain.Wrapf("negative base %s with non-integer exponent", x.Text('g', 10))
	}
	wp := prec + GuardBits
	l, xerr := Log(x, wp)
	if xerr != nil {
		return nil, xerr
	}
	l.Mul(l, y)
	extra := uint(max(Exponent(l), 0))
	if extra > 0 {
		l, _ = Log(x, wp+extra)
		l.Mul(l, y)
	}
	return Exp(l, prec), nil
}

func bitsLen(v int64) int {
	if v < 0 {
		v = -v
	}
	n := 0
	for v > 0 {
		n++
		v >>= 1
	}
	return n
}
