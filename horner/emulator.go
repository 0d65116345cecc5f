package horner

import (
	"context"
	"math/big"

	"github.com/beatoz/fxopgen/fixfunc"
	"github.com/beatoz/fxopgen/types/xerrors"
)

// Domain maps an input codeword to its interval and to the mantissa of y
// at the schedule input LSB.
type Domain interface {
	Locate(x int64) (int, *big.Int)
}

// Emulator reproduces the Horner datapath bit for bit.
type Emulator struct {
	s *Schedule
}

func NewEmulator(s *Schedule) *Emulator {
	return &Emulator{s: s}
}

// fixValue is mant*2^lsb.
type fixValue struct {
	mant *big.Int
	lsb  int
}

func (v fixValue) at(lsb int) *big.Int {
	return new(big.Int).Lsh(v.mant, uint(v.lsb-lsb))
}

// roundTo rounds v to lsb, to nearest (ties up) or down.
func (v fixValue) roundTo(lsb int, nearest bool) fixValue {
	if lsb <= v.lsb {
		return fixValue{mant: v.at(lsb), lsb: lsb}
	}
	k := uint(lsb - v.lsb)
	m := new(big.Int).Set(v.mant)
	if nearest {
		m.Add(m, new(big.Int).Lsh(big.NewInt(1), k-1))
	}
	// arithmetic shift is floor
	return fixValue{mant: m.Rsh(m, k), lsb: lsb}
}

func add(a, b fixValue) fixValue {
	l := min(a.lsb, b.lsb)
	return fixValue{mant: new(big.Int).Add(a.at(l), b.at(l)), lsb: l}
}

func (e *Emulator) coeff(k, i int) fixValue {
	c := e.s.coeffs[k][i]
	if c.IsZero() {
		return fixValue{mant: new(big.Int), lsb: e.s.ColumnLSBs[i]}
	}
	return fixValue{mant: c.MantissaAt(e.s.ColumnLSBs[i]), lsb: e.s.ColumnLSBs[i]}
}

// Eval evaluates interval k at y (a mantissa at LSBIn) and returns the
// output in units of 2^lsbOut.
func (e *Emulator) Eval(k int, y *big.Int) *big.Int {
	s := e.s
	acc := e.coeff(k, s.Degree)
	yv := fixValue{mant: y, lsb: s.LSBIn}
	for i := s.Degree - 1; i >= 0; i-- {
		st := s.Stages[i]
		yt := yv.roundTo(st.InputTruncationLSB, false)
		p := fixValue{mant: new(big.Int).Mul(yt.mant, acc.mant), lsb: yt.lsb + acc.lsb}
		t := add(e.coeff(k, i), p)
		if i == 0 {
			t = add(t, fixValue{mant: big.NewInt(1), lsb: s.LSBOut - 1})
		}
		acc = t.roundTo(st.SumLSB, !s.HasFaithfulMultiplyAdd)
	}
	if s.Degree == 0 {
		acc = add(acc, fixValue{mant: big.NewInt(1), lsb: s.LSBOut - 1})
	}
	return acc.roundTo(s.LSBOut, false).mant
}

// ExhaustiveCheck emulates every input codeword of f and compares the
// outputs with the faithful brackets.
func (e *Emulator) ExhaustiveCheck(ctx context.Context, f *fixfunc.Function, dom Domain) (fixfunc.Validation, xerrors.XError) {
	return f.Validate(ctx, func(x int64) (int64, xerrors.XError) {
		k, y := dom.Locate(x)
		r := e.Eval(k, y)
		if !r.IsInt64() {
			return 0, xerrors.ErrOverFlow.Wrapf("output of codeword %d exceeds 64 bits", x)
		}
		return r.Int64(), nil
	})
}
