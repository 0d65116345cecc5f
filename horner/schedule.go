package horner

import (
	"math/big"

	"github.com/tendermint/tendermint/libs/log"

	"github.com/beatoz/fxopgen/libs/mpnum"
	"github.com/beatoz/fxopgen/polyapprox"
	"github.com/beatoz/fxopgen/types"
	"github.com/beatoz/fxopgen/types/xerrors"
)

const (
	DefaultMaxGuardBits = 64

	errPrec     = 128
	rangePrec   = 160
	rangePieces = 64
)

// Stage describes the worst case over all intervals of the Horner step
// S_i = a_i + y*S_{i+1}.
type Stage struct {
	Degree int `json:"degree"`
	// InputTruncationLSB is the LSB y is truncated to before the product.
	InputTruncationLSB int        `json:"inputTruncationLsb"`
	SumMSB             int        `json:"sumMsb"`
	SumLSB             int        `json:"sumLsb"`
	SumSign            int        `json:"sumSign"`
	IsZero             bool       `json:"isZero"`
	MaxAbsSum          *big.Float `json:"maxAbsSum"`
}

type Schedule struct {
	LSBIn                  int  `json:"lsbIn"`
	LSBOut                 int  `json:"lsbOut"`
	Degree                 int  `json:"degree"`
	HasFaithfulMultiplyAdd bool `json:"hasFaithfulMultiplyAdd"`
	// Stages is indexed by degree.
	Stages []Stage `json:"stages"`
	// IntervalIsZero[k][i] reports a zero coefficient i in interval k.
	IntervalIsZero [][]bool `json:"intervalIsZero"`
	// ColumnLSBs are the coefficient LSBs shared by all intervals.
	ColumnLSBs []int `json:"columnLsbs"`

	ApproxErrorBound *big.Float `json:"approxErrorBound"`
	EvalError        *big.Float `json:"evalError"`
	TotalError       *big.Float `json:"totalError"`
	GuardBits        int        `json:"guardBits"`

	coeffs [][]*types.FixConstant
}

// Steps returns the stages in evaluation order, degree down to 0.
func (s *Schedule) Steps() []Stage {
	out := make([]Stage, 0, len(s.Stages))
	for i := s.Degree; i >= 0; i-- {
		out = append(out, s.Stages[i])
	}
	return out
}

// MultSize returns the product operand widths of step i, y by S_{i+1}.
func (s *Schedule) MultSize(i int) (int, int) {
	next := s.Stages[i+1]
	return 1 - s.Stages[i].InputTruncationLSB, next.SumMSB - next.SumLSB + 1
}

// Coeff returns coefficient i of interval k.
func (s *Schedule) Coeff(k, i int) *types.FixConstant {
	return s.coeffs[k][i]
}

func (s *Schedule) Intervals() int {
	return len(s.coeffs)
}

// MultiplierBits sums the product sizes of all non-trivial stages.
func (s *Schedule) MultiplierBits() int64 {
	var bits int64
	for i := 0; i < s.Degree; i++ {
		if s.Stages[i+1].MaxAbsSum.Sign() == 0 {
			continue
		}
		wy, ws := s.MultSize(i)
		bits += int64(wy) * int64(ws)
	}
	return bits
}

type Params struct {
	LSBIn                  int
	LSBOut                 int
	MaxGuardBits           int
	HasFaithfulMultiplyAdd bool
}

type Builder struct {
	params Params
	logger log.Logger
}

func NewBuilder(params Params, lg log.Logger) *Builder {
	if params.MaxGuardBits <= 0 {
		params.MaxGuardBits = DefaultMaxGuardBits
	}
	return &Builder{params: params, logger: lg.With("module", "horner")}
}

// intervalSums holds the range analysis of one polynomial.
type intervalSums struct {
	maxAbs []*big.Float
	msb    []int
	sign   []int
}

// Build computes the shared Horner datapath of polys, which evaluate in y
// on [-1,1) at the input LSB.
func (b *Builder) Build(polys []*polyapprox.BasicPolyApprox) (*Schedule, xerrors.XError) {
	if len(polys) == 0 {
		return nil, xerrors.ErrInvalidParams.Wrapf("no polynomial to schedule")
	}
	d := polys[0].Degree
	for k, p := range polys {
		if p.Degree != d {
			return nil, xerrors.ErrInvalidParams.Wrapf("interval %d has degree %d, expected %d", k, p.Degree, d)
		}
	}

	s := &Schedule{
		LSBIn:                  b.params.LSBIn,
		LSBOut:                 b.params.LSBOut,
		Degree:                 d,
		HasFaithfulMultiplyAdd: b.params.HasFaithfulMultiplyAdd,
		Stages:                 make([]Stage, d+1),
		IntervalIsZero:         make([][]bool, len(polys)),
		ColumnLSBs:             columnLSBs(polys),
		coeffs:                 make([][]*types.FixConstant, len(polys)),
	}
	for i := range s.Stages {
		s.Stages[i] = Stage{
			Degree:             i,
			InputTruncationLSB: b.params.LSBIn,
			IsZero:             true,
			MaxAbsSum:          new(big.Float),
		}
	}

	sums := make([]intervalSums, len(polys))
	wcLSB := b.params.LSBOut
	wcLSBY := make([]int, d)
	for i := range wcLSBY {
		wcLSBY[i] = 1 << 30
	}
	signSet := make([]bool, d+1)
	wcMSBSet := make([]bool, d+1)

	for k, p := range polys {
		s.coeffs[k] = p.Coeffs
		s.IntervalIsZero[k] = append([]bool(nil), p.IsZero...)
		for i := 0; i <= d; i++ {
			if !p.IsZero[i] {
				s.Stages[i].IsZero = false
			}
		}

		sums[k] = analyzeSums(p.Coeffs, s.ColumnLSBs)
		for i := 0; i <= d; i++ {
			st := &s.Stages[i]
			if !wcMSBSet[i] || sums[k].msb[i] > st.SumMSB {
				st.SumMSB, wcMSBSet[i] = sums[k].msb[i], true
			}
			st.MaxAbsSum = mpnum.Max(st.MaxAbsSum, sums[k].maxAbs[i])
			if !signSet[i] {
				st.SumSign, signSet[i] = sums[k].sign[i], true
			} else if st.SumSign != sums[k].sign[i] {
				st.SumSign = 0
			}
		}

		lsb, lsbY, xerr := b.budget(p.ApproxErrorBound, sums[k])
		if xerr != nil {
			return nil, xerrors.ErrErrorBudgetInfeasible.Wrapf("interval %d: %v", k, xerr)
		}
		b.logger.Debug("interval budget", "interval", k, "lsb", lsb, "lsbY", lsbY)
		wcLSB = min(wcLSB, lsb)
		for i := range lsbY {
			wcLSBY[i] = min(wcLSBY[i], lsbY[i])
		}
	}

	for i := 0; i < d; i++ {
		s.Stages[i].SumLSB = wcLSB
		s.Stages[i].InputTruncationLSB = wcLSBY[i]
	}
	s.Stages[d].SumLSB = s.ColumnLSBs[d]
	s.GuardBits = b.params.LSBOut - wcLSB

	// certify the shared parameters on every interval
	s.ApproxErrorBound, s.EvalError, s.TotalError = new(big.Float), new(big.Float), new(big.Float)
	budgetLimit := mpnum.Pow2(b.params.LSBOut-1, errPrec)
	worst := new(big.Float)
	for k, p := range polys {
		e := b.evalError(wcLSB, wcLSBY, sums[k])
		s.EvalError = mpnum.Max(s.EvalError, e)
		s.ApproxErrorBound = mpnum.Max(s.ApproxErrorBound, p.ApproxErrorBound)
		t := upFloat().Add(e, p.ApproxErrorBound)
		if t.Cmp(budgetLimit) >= 0 {
			return nil, xerrors.ErrErrorBudgetInfeasible.Wrapf("interval %d: certified error %s exceeds %s",
				k, t.Text('g', 6), budgetLimit.Text('g', 6))
		}
		worst = mpnum.Max(worst, t)
	}
	s.TotalError = upFloat().Add(worst, budgetLimit)

	b.logger.Debug("horner schedule", "degree", d, "intervals", len(polys), "lsb", wcLSB, "guardBits", s.GuardBits)
	return s, nil
}

// budget finds the coarsest stage LSB that keeps the evaluation error of
// one interval under 2^(lsbOut-1) minus its approximation error.
func (b *Builder) budget(approx *big.Float, sums intervalSums) (int, []int, xerrors.XError) {
	budget := new(big.Float).SetPrec(errPrec).SetMode(big.ToNegativeInf)
	budget.Sub(mpnum.Pow2(b.params.LSBOut-1, errPrec), approx)
	if budget.Sign() <= 0 {
		return 0, nil, xerrors.ErrErrorBudgetInfeasible.Wrapf("approximation error %s leaves no budget", approx.Text('g', 6))
	}
	d := len(sums.msb) - 1
	for lsb := b.params.LSBOut; lsb >= b.params.LSBOut-b.params.MaxGuardBits; lsb-- {
		lsbY := make([]int, d)
		for i := d - 1; i >= 0; i-- {
			lsbY[i] = min(max(lsb-sums.msb[i+1], b.params.LSBIn), 0)
		}
		if b.evalError(lsb, lsbY, sums).Cmp(budget) < 0 {
			return lsb, lsbY, nil
		}
	}
	return 0, nil, xerrors.ErrErrorBudgetInfeasible.Wrapf("more than %d guard bits needed", b.params.MaxGuardBits)
}

// evalError bounds the accumulated rounding error of S_0:
// e_i = e_{i+1} + dy_i*(maxAbsSum_{i+1}+e_{i+1}) + rnd_i.
func (b *Builder) evalError(lsb int, lsbY []int, sums intervalSums) *big.Float {
	rnd := mpnum.Pow2(lsb-1, errPrec)
	if b.params.HasFaithfulMultiplyAdd {
		rnd = mpnum.Pow2(lsb, errPrec)
	}
	e := new(big.Float)
	for i := len(lsbY) - 1; i >= 0; i-- {
		next := upFloat().Set(e)
		if lsbY[i] > b.params.LSBIn {
			t := upFloat().Add(sums.maxAbs[i+1], e)
			t.Mul(t, mpnum.Pow2(lsbY[i], errPrec))
			next.Add(next, t)
		}
		e = next.Add(next, rnd)
	}
	return e
}

// analyzeSums encloses every partial sum S_i(y) = sum_{j>=i} a_j y^(j-i)
// over y in [-1,1].
func analyzeSums(coeffs []*types.FixConstant, colLSBs []int) intervalSums {
	d := len(coeffs) - 1
	sums := intervalSums{
		maxAbs: make([]*big.Float, d+1),
		msb:    make([]int, d+1),
		sign:   make([]int, d+1),
	}
	ys := make([]mpnum.Interval, rangePieces)
	step := mpnum.Pow2(1-types.IntLog2(rangePieces), rangePrec)
	for j := range ys {
		lo := new(big.Float).SetPrec(rangePrec).SetInt64(int64(j))
		lo.Mul(lo, step)
		lo.Sub(lo, mpnum.FromInt64(1, rangePrec))
		ys[j] = mpnum.NewInterval(lo, new(big.Float).SetPrec(rangePrec).Add(lo, step))
	}

	for i := d; i >= 0; i-- {
		var inf, sup *big.Float
		for _, y := range ys {
			s := mpnum.Point(coeffs[d].Value())
			for j := d - 1; j >= i; j-- {
				s = s.Mul(y, rangePrec).Add(mpnum.Point(coeffs[j].Value()), rangePrec)
			}
			if inf == nil || s.Lo.Cmp(inf) < 0 {
				inf = s.Lo
			}
			if sup == nil || s.Hi.Cmp(sup) > 0 {
				sup = s.Hi
			}
		}
		switch {
		case inf.Sign() >= 0:
			sums.sign[i] = 1
		case sup.Sign() < 0:
			sums.sign[i] = -1
		}
		m := mpnum.Max(new(big.Float).Abs(inf), new(big.Float).Abs(sup))
		sums.maxAbs[i] = m
		if m.Sign() == 0 {
			sums.msb[i] = colLSBs[i]
		} else {
			// signed sums
			sums.msb[i] = mpnum.Log2Floor(m) + 1
		}
	}
	return sums
}

// columnLSBs returns, per degree, the finest LSB of the non-zero
// coefficients, or the coarsest one of an all-zero column.
func columnLSBs(polys []*polyapprox.BasicPolyApprox) []int {
	d := polys[0].Degree
	lsbs := make([]int, d+1)
	for i := 0; i <= d; i++ {
		set := false
		zeroLSB := polys[0].Coeffs[i].LSB()
		for _, p := range polys {
			c := p.Coeffs[i]
			if c.IsZero() {
				zeroLSB = max(zeroLSB, c.LSB())
				continue
			}
			if !set || c.LSB() < lsbs[i] {
				lsbs[i], set = c.LSB(), true
			}
		}
		if !set {
			lsbs[i] = zeroLSB
		}
	}
	return lsbs
}

func upFloat() *big.Float {
	return new(big.Float).SetPrec(errPrec).SetMode(big.ToPositiveInf)
}
