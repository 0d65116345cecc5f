package expr

import (
	"math/big"
)

func ratNum(r *big.Rat) Node {
	return &number{val: r}
}

func intNum(v int64) Node {
	return ratNum(new(big.Rat).SetInt64(v))
}

func zero() Node { return intNum(0) }
func one() Node  { return intNum(1) }

func asRat(n Node) (*big.Rat, bool) {
	if c, ok := n.(*number); ok {
		return c.val, true
	}
	return nil, false
}

func isRat(n Node, v int64) bool {
	r, ok := asRat(n)
	return ok && r.Cmp(new(big.Rat).SetInt64(v)) == 0
}

func mkNeg(u Node) Node {
	if r, ok := asRat(u); ok {
		return ratNum(new(big.Rat).Neg(r))
	}
	if n, ok := u.(*neg); ok {
		return n.u
	}
	return &neg{u: u}
}

func mkAdd(a, b Node) Node {
	ra, oka := asRat(a)
	rb, okb := asRat(b)
	switch {
	case oka && okb:
		return ratNum(new(big.Rat).Add(ra, rb))
	case oka && ra.Sign() == 0:
		return b
	case okb && rb.Sign() == 0:
		return a
	}
	if n, ok := b.(*neg); ok {
		return &binary{op: '-', l: a, r: n.u}
	}
	return &binary{op: '+', l: a, r: b}
}

func mkSub(a, b Node) Node {
	ra, oka := asRat(a)
	rb, okb := asRat(b)
	switch {
	case oka && okb:
		return ratNum(new(big.Rat).Sub(ra, rb))
	case oka && ra.Sign() == 0:
		return mkNeg(b)
	case okb && rb.Sign() == 0:
		return a
	}
	return &binary{op: '-', l: a, r: b}
}

func mkMul(a, b Node) Node {
	ra, oka := asRat(a)
	rb, okb := asRat(b)
	switch {
	case oka && okb:
		return ratNum(new(big.Rat).Mul(ra, rb))
	case (oka && ra.Sign() == 0) || (okb && rb.Sign() == 0):
		return zero()
	case isRat(a, 1):
		return b
	case isRat(b, 1):
		return a
	case isRat(a, -1):
		return mkNeg(b)
	case isRat(b, -1):
		return mkNeg(a)
	case okb:
		// constants first
		return &binary{op: '*', l: b, r: a}
	}
	return &binary{op: '*', l: a, r: b}
}

func mkDiv(a, b Node) Node {
	ra, oka := asRat(a)
	rb, okb := asRat(b)
	switch {
	case oka && okb && rb.Sign() != 0:
		return ratNum(new(big.Rat).Quo(ra, rb))
	case oka && ra.Sign() == 0:
		return zero()
	case isRat(b, 1):
		return a
	case okb && rb.Sign() != 0:
		return mkMul(ratNum(new(big.Rat).Inv(rb)), a)
	}
	return &binary{op: '/', l: a, r: b}
}

func mkPow(a, b Node) Node {
	switch {
	case isRat(b, 0):
		return one()
	case isRat(b, 1):
		return a
	}
	ra, oka := asRat(a)
	rb, okb := asRat(b)
	if oka && okb && rb.IsInt() && rb.Num().IsInt64() {
		n := rb.Num().Int64()
		if n > 0 && n <= 64 {
			p := new(big.Rat).SetInt64(1)
			for i := int64(0); i < n; i++ {
				p.Mul(p, ra)
			}
			return ratNum(p)
		}
	}
	return &binary{op: '^', l: a, r: b}
}
