package piecewise

import (
	"math/big"
	"sort"

	"github.com/beatoz/fxopgen/libs/expr"
)

// Interval is the block of 2^Log2Size consecutive input codewords starting
// at Start, counted in offset order: two's complement inputs have their
// sign bit flipped so that codeword order follows input value order.
type Interval struct {
	Depth    int   `json:"depth"`
	Index    int64 `json:"index"`
	Start    int64 `json:"start"`
	Log2Size int   `json:"log2Size"`
}

func newInterval(wIn, depth int, index int64) Interval {
	s := wIn - depth
	return Interval{Depth: depth, Index: index, Start: index << s, Log2Size: s}
}

func (iv Interval) children(wIn int) (Interval, Interval) {
	return newInterval(wIn, iv.Depth+1, 2*iv.Index), newInterval(wIn, iv.Depth+1, 2*iv.Index+1)
}

// LSBY is the LSB of the reduced argument y in [-1,1) on this interval.
func (iv Interval) LSBY() int {
	return 1 - iv.Log2Size
}

// reduced returns g(y) = f(a*y+b), with y in [-1,1) covering the interval.
// The domain [x0, x0+w) is [0,1) unsigned or [-1,1) signed.
func (iv Interval) reduced(f *expr.Function, signedIn bool) *expr.Function {
	x0, w := big.NewRat(0, 1), big.NewRat(1, 1)
	if signedIn {
		x0, w = big.NewRat(-1, 1), big.NewRat(2, 1)
	}
	scale := new(big.Rat).SetFrac(big.NewInt(1), new(big.Int).Lsh(big.NewInt(1), uint(iv.Depth)))
	scale.Mul(scale, w)

	a := new(big.Rat).Mul(scale, big.NewRat(1, 2))
	b := new(big.Rat).Add(new(big.Rat).SetInt64(iv.Index), big.NewRat(1, 2))
	b.Mul(b, scale)
	b.Add(b, x0)
	return f.Compose(a, b)
}

// locator maps offset codewords to intervals sorted by Start.
type locator struct {
	wIn      int
	signedIn bool
	uniform  int // depth of a uniform split, or -1
	ivs      []Interval
}

func (l *locator) offset(x int64) int64 {
	if l.signedIn {
		return x ^ int64(1)<<(l.wIn-1)
	}
	return x
}

func (l *locator) find(u int64) int {
	if l.uniform >= 0 {
		return int(u >> (l.wIn - l.uniform))
	}
	return sort.Search(len(l.ivs), func(i int) bool {
		return l.ivs[i].Start+int64(1)<<l.ivs[i].Log2Size > u
	})
}
