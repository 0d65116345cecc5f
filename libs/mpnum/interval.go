package mpnum

import (
	"fmt"
	"math/big"

	"github.com/beatoz/fxopgen/types/xerrors"
)

// Interval is a closed interval [Lo, Hi] of big.Float values.
// Every operation returns an enclosure of the exact image.
type Interval struct {
	Lo, Hi *big.Float
}

func Point(x *big.Float) Interval {
	return Interval{Lo: x, Hi: x}
}

func PointInt64(v int64, prec uint) Interval {
	return Point(FromInt64(v, prec))
}

func NewInterval(lo, hi *big.Float) Interval {
	if lo.Cmp(hi) > 0 {
		lo, hi = hi, lo
	}
	return Interval{Lo: lo, Hi: hi}
}

func (a Interval) IsPoint() bool {
	return a.Lo.Cmp(a.Hi) == 0
}

func (a Interval) ContainsZero() bool {
	return a.Lo.Sign() <= 0 && a.Hi.Sign() >= 0
}

func (a Interval) Contains(x *big.Float) bool {
	return a.Lo.Cmp(x) <= 0 && a.Hi.Cmp(x) >= 0
}

// Mag returns max(|Lo|, |Hi|).
func (a Interval) Mag() *big.Float {
	return Max(Abs(a.Lo), Abs(a.Hi))
}

// Mig returns min |x| over the interval.
func (a Interval) Mig() *big.Float {
	if a.ContainsZero() {
		return new(big.Float)
	}
	return Min(Abs(a.Lo), Abs(a.Hi))
}

func (a Interval) Union(b Interval) Interval {
	return Interval{Lo: Min(a.Lo, b.Lo), Hi: Max(a.Hi, b.Hi)}
}

func (a Interval) Mid(prec uint) *big.Float {
	m := newf(prec).Add(a.Lo, a.Hi)
	return m.SetMantExp(m, -1)
}

func (a Interval) Width(prec uint) *big.Float {
	return dirf(prec, big.ToPositiveInf).Sub(a.Hi, a.Lo)
}

func (a Interval) Float64() (float64, float64) {
	lo, _ := a.Lo.Float64()
	hi, _ := a.Hi.Float64()
	return lo, hi
}

func (a Interval) String() string {
	return fmt.Sprintf("[%s, %s]", a.Lo.Text('g', 20), a.Hi.Text('g', 20))
}

func dirf(prec uint, mode big.RoundingMode) *big.Float {
	return new(big.Float).SetPrec(prec).SetMode(mode)
}

//
// arithmetic with outward rounding

func (a Interval) Neg() Interval {
	return Interval{Lo: new(big.Float).Neg(a.Hi), Hi: new(big.Float).Neg(a.Lo)}
}

func (a Interval) Add(b Interval, prec uint) Interval {
	return Interval{
		Lo: dirf(prec, big.ToNegativeInf).Add(a.Lo, b.Lo),
		Hi: dirf(prec, big.ToPositiveInf).Add(a.Hi, b.Hi),
	}
}

func (a Interval) Sub(b Interval, prec uint) Interval {
	return Interval{
		Lo: dirf(prec, big.ToNegativeInf).Sub(a.Lo, b.Hi),
		Hi: dirf(prec, big.ToPositiveInf).Sub(a.Hi, b.Lo),
	}
}

func (a Interval) Mul(b Interval, prec uint) Interval {
	var lo, hi *big.Float
	for _, x := range []*big.Float{a.Lo, a.Hi} {
		for _, y := range []*big.Float{b.Lo, b.Hi} {
			d := dirf(prec, big.ToNegativeInf).Mul(x, y)
			u := dirf(prec, big.ToPositiveInf).Mul(x, y)
			if lo == nil || d.Cmp(lo) < 0 {
				lo = d
			}
			if hi == nil || u.Cmp(hi) > 0 {
				hi = u
			}
		}
	}
	return Interval{Lo: lo, Hi: hi}
}

func (a Interval) Div(b Interval, prec uint) (Interval, xerrors.XError) {
	if b.ContainsZero() {
		return Interval{}, xerrors.ErrDivByZeroInterval.Wrapf("divisor %s", b.String())
	}
	var lo, hi *big.Float
	for _, x := range []*big.Float{a.Lo, a.Hi} {
		for _, y := range []*big.Float{b.Lo, b.Hi} {
			d := dirf(prec, big.ToNegativeInf).Quo(x, y)
			u := dirf(prec, big.ToPositiveInf).Quo(x, y)
			if lo == nil || d.Cmp(lo) < 0 {
				lo = d
			}
			if hi == nil || u.Cmp(hi) > 0 {
				hi = u
			}
		}
	}
	return Interval{Lo: lo, Hi: hi}, nil
}

// Scale multiplies by 2^e, which is exact.
func (a Interval) Scale(e int) Interval {
	return Interval{Lo: Scale(a.Lo, e), Hi: Scale(a.Hi, e)}
}

func (a Interval) Abs() Interval {
	if a.ContainsZero() {
		return Interval{Lo: new(big.Float), Hi: a.Mag()}
	}
	if a.Lo.Sign() > 0 {
		return a
	}
	return a.Neg()
}

func (a Interval) Sqr(prec uint) Interval {
	m := a.Abs()
	return Interval{
		Lo: dirf(prec, big.ToNegativeInf).Mul(m.Lo, m.Lo),
		Hi: dirf(prec, big.ToPositiveInf).Mul(m.Hi, m.Hi),
	}
}

func (a Interval) PowInt(n int64, prec uint) (Interval, xerrors.XError) {
	if n == 0 {
		return PointInt64(1, prec), nil
	}
	if n < 0 {
		p, xerr := a.PowInt(-n, prec)
		if xerr != nil {
			return Interval{}, xerr
		}
		return PointInt64(1, prec).Div(p, prec)
	}
	if n%2 == 0 {
		base := a.Abs()
		res := PointInt64(1, prec)
		for i := int64(0); i < n; i++ {
			res = res.Mul(base, prec)
		}
		return res, nil
	}
	// odd powers are monotone
	lo, hi := PointInt64(1, prec), PointInt64(1, prec)
	for i := int64(0); i < n; i++ {
		lo = lo.Mul(Point(a.Lo), prec)
		hi = hi.Mul(Point(a.Hi), prec)
	}
	return Interval{Lo: lo.Lo, Hi: hi.Hi}, nil
}

//
// elementary functions

// widen encloses a value computed with at most a few ulps of relative error
// plus 2^-prec of absolute error.
func widen(v *big.Float, prec uint) Interval {
	d := Pow2(-int(prec), prec)
	if v.Sign() != 0 {
		d = dirf(prec, big.ToPositiveInf).Add(d, Pow2(Exponent(v)-int(prec)+2, prec))
	}
	return Interval{
		Lo: dirf(prec, big.ToNegativeInf).Sub(v, d),
		Hi: dirf(prec, big.ToPositiveInf).Add(v, d),
	}
}

// exactAtZero reports whether v is the exact image of the point 0: all the
// elementary functions here map 0 to exactly 0 or 1.
func exactAtZero(a Interval, v *big.Float) bool {
	if !a.IsPoint() || a.Lo.Sign() != 0 {
		return false
	}
	return v.Sign() == 0 || v.Cmp(big.NewFloat(1)) == 0
}

func increasing(a Interval, prec uint, f func(*big.Float, uint) *big.Float) Interval {
	vlo := f(a.Lo, prec)
	if exactAtZero(a, vlo) {
		return Point(vlo)
	}
	lo := widen(vlo, prec)
	if a.IsPoint() {
		return lo
	}
	hi := widen(f(a.Hi, prec), prec)
	return Interval{Lo: lo.Lo, Hi: hi.Hi}
}

func increasingErr(a Interval, prec uint, f func(*big.Float, uint) (*big.Float, xerrors.XError)) (Interval, xerrors.XError) {
	vlo, xerr := f(a.Lo, prec)
	if xerr != nil {
		return Interval{}, xerr
	}
	if exactAtZero(a, vlo) {
		return Point(vlo), nil
	}
	lo := widen(vlo, prec)
	if a.IsPoint() {
		return lo, nil
	}
	vhi, xerr := f(a.Hi, prec)
	if xerr != nil {
		return Interval{}, xerr
	}
	hi := widen(vhi, prec)
	return Interval{Lo: lo.Lo, Hi: hi.Hi}, nil
}

func IExp(a Interval, prec uint) Interval {
	return increasing(a, prec, Exp)
}

func IExpm1(a Interval, prec uint) Interval {
	return increasing(a, prec, Expm1)
}

func ISinh(a Interval, prec uint) Interval {
	return increasing(a, prec, Sinh)
}

func ITanh(a Interval, prec uint) Interval {
	return increasing(a, prec, Tanh)
}

func IAtan(a Interval, prec uint) Interval {
	return increasing(a, prec, Atan)
}

// exactLog returns the exact zero of a logarithm at the point 1.
func exactLog(a Interval, prec uint, f func(*big.Float, uint) (*big.Float, xerrors.XError)) (Interval, xerrors.XError) {
	if a.IsPoint() && a.Lo.Cmp(big.NewFloat(1)) == 0 {
		return Point(newf(prec)), nil
	}
	return increasingErr(a, prec, f)
}

func ILog(a Interval, prec uint) (Interval, xerrors.XError) {
	return exactLog(a, prec, Log)
}

func ILog1p(a Interval, prec uint) (Interval, xerrors.XError) {
	return increasingErr(a, prec, Log1p)
}

func ILog2(a Interval, prec uint) (Interval, xerrors.XError) {
	return exactLog(a, prec, Log2)
}

func ILog10(a Interval, prec uint) (Interval, xerrors.XError) {
	return exactLog(a, prec, Log10)
}

func ISqrt(a Interval, prec uint) (Interval, xerrors.XError) {
	if a.IsPoint() && a.Lo.Sign() >= 0 {
		// exact squares stay exact
		r, _ := Sqrt(a.Lo, prec)
		if newf(2*prec).Mul(r, r).Cmp(a.Lo) == 0 {
			return Point(r), nil
		}
	}
	iv, xerr := increasingErr(a, prec, Sqrt)
	if xerr != nil {
		return Interval{}, xerr
	}
	if iv.Lo.Sign() < 0 {
		iv.Lo = new(big.Float)
	}
	return iv, nil
}

func IAsin(a Interval, prec uint) (Interval, xerrors.XError) {
	return increasingErr(a, prec, Asin)
}

func IAcos(a Interval, prec uint) (Interval, xerrors.XError) {
	// decreasing
	vhi, xerr := Acos(a.Lo, prec)
	if xerr != nil {
		return Interval{}, xerr
	}
	vlo, xerr := Acos(a.Hi, prec)
	if xerr != nil {
		return Interval{}, xerr
	}
	return Interval{Lo: widen(vlo, prec).Lo, Hi: widen(vhi, prec).Hi}, nil
}

func ICosh(a Interval, prec uint) Interval {
	lo := widen(Cosh(a.Lo, prec), prec)
	hi := widen(Cosh(a.Hi, prec), prec)
	r := lo.Union(hi)
	if a.ContainsZero() {
		r.Lo = FromInt64(1, prec)
	} else if a.Lo.Sign() > 0 {
		r.Lo = lo.Lo
	} else {
		r.Lo = hi.Lo
	}
	return r
}

// containsGridPoint reports whether a contains c + k*period for some integer k.
func containsGridPoint(a Interval, c, period *big.Float, prec uint) bool {
	t := dirf(prec, big.ToNegativeInf).Sub(a.Lo, c)
	t.Quo(t, period)
	k := Ceil(t)
	p := newf(prec).Mul(FromInt(k, prec), period)
	p.Add(p, c)
	return p.Cmp(a.Hi) <= 0
}

func periodic(a Interval, prec uint, f func(*big.Float, uint) *big.Float, maxAt, minAt *big.Float) Interval {
	wp := prec + 16
	twoPi := Pi(wp)
	twoPi.SetMantExp(twoPi, 1)
	one := FromInt64(1, prec)
	negOne := FromInt64(-1, prec)
	if dirf(wp, big.ToNegativeInf).Sub(a.Hi, a.Lo).Cmp(twoPi) >= 0 {
		return Interval{Lo: negOne, Hi: one}
	}
	r := increasing(Point(a.Lo), prec, f)
	if !a.IsPoint() {
		r = r.Union(increasing(Point(a.Hi), prec, f))
		if containsGridPoint(a, maxAt, twoPi, wp) {
			r.Hi = one
		}
		if containsGridPoint(a, minAt, twoPi, wp) {
			r.Lo = negOne
		}
	}
	if r.Hi.Cmp(one) > 0 {
		r.Hi = one
	}
	if r.Lo.Cmp(negOne) < 0 {
		r.Lo = negOne
	}
	return r
}

func ISin(a Interval, prec uint) Interval {
	halfPi := Pi(prec + 16)
	halfPi.SetMantExp(halfPi, -1)
	return periodic(a, prec, Sin, halfPi, newf(prec+16).Neg(halfPi))
}

func ICos(a Interval, prec uint) Interval {
	return periodic(a, prec, Cos, new(big.Float), Pi(prec+16))
}

func ITan(a Interval, prec uint) (Interval, xerrors.XError) {
	wp := prec + 16
	pi := Pi(wp)
	halfPi := newf(wp).SetMantExp(pi, -1)
	if !a.IsPoint() {
		if dirf(wp, big.ToNegativeInf).Sub(a.Hi, a.Lo).Cmp(pi) >= 0 || containsGridPoint(a, halfPi, pi, wp) {
			return Interval{}, xerrors.ErrDomain.Wrapf("tan pole inside %s", a.String())
		}
	}
	return increasingErr(a, prec, Tan)
}

func IPow(a, b Interval, prec uint) (Interval, xerrors.XError) {
	if b.IsPoint() {
		if n, ok := IntegerExponent(b.Lo); ok {
			return a.PowInt(n, prec)
		}
	}
	if a.Lo.Sign() <= 0 {
		if a.IsPoint() && a.Lo.Sign() == 0 && b.Lo.Sign() > 0 {
			return Point(new(big.Float)), nil
		}
		return Interval{}, xerrors.ErrDomain.Wrapf("power with base %s and non-integer exponent", a.String())
	}
	l, xerr := ILog(a, prec)
	if xerr != nil {
		return Interval{}, xerr
	}
	return IExp(l.Mul(b, prec), prec), nil
}

// IPi encloses pi.
func IPi(prec uint) Interval {
	return widen(Pi(prec), prec)
}

// RatInterval encloses the rational r.
func RatInterval(r *big.Rat, prec uint) Interval {
	lo := dirf(prec, big.ToNegativeInf).SetRat(r)
	hi := dirf(prec, big.ToPositiveInf).SetRat(r)
	return Interval{Lo: lo, Hi: hi}
}
