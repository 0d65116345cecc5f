package fixfunc

import (
	"fmt"
	"math/big"
	"runtime"
	"sync"

	"github.com/tendermint/tendermint/libs/log"

	"github.com/beatoz/fxopgen/libs/expr"
	"github.com/beatoz/fxopgen/libs/mpnum"
	"github.com/beatoz/fxopgen/types"
	"github.com/beatoz/fxopgen/types/xerrors"
)

const (
	// ExhaustiveMSBWidth is the widest input for which the output range is
	// derived by evaluating every codeword.
	ExhaustiveMSBWidth = 16
	// DefaultExhaustiveMaxWidth bounds FaithfulTable.
	DefaultExhaustiveMaxWidth = 20

	rangePieces = 256
)

// Function is a real function f evaluated on the fixed-point input domain
// [0,1) (unsigned) or [-1,1) (signed) at lsbIn, with outputs at lsbOut.
type Function struct {
	src  string
	expr *expr.Function

	SignedIn  bool
	LSBIn     int
	LSBOut    int
	MSBOut    int
	SignedOut bool
	WIn       int
	WOut      int

	// exact output range over all input codewords
	sup, inf         *big.Float
	roundingOverflow bool

	workers  int
	maxWidth int
	logger   log.Logger

	tableMtx sync.Mutex
	table    *FaithfulTable
}

func New(src string, signedIn bool, lsbIn, lsbOut int, lg log.Logger) (*Function, xerrors.XError) {
	e, xerr := expr.Parse(src)
	if xerr != nil {
		return nil, xerr
	}
	return newFunction(src, e, signedIn, lsbIn, lsbOut, lg)
}

func newFunction(src string, e *expr.Function, signedIn bool, lsbIn, lsbOut int, lg log.Logger) (*Function, xerrors.XError) {
	wIn := -lsbIn
	if signedIn {
		wIn++
	}
	if wIn <= 0 {
		return nil, xerrors.ErrRange.Wrapf("input width %d from lsbIn=%d", wIn, lsbIn)
	}
	if wIn > 62 {
		return nil, xerrors.ErrRange.Wrapf("input width %d is too large", wIn)
	}
	f := &Function{
		src:      src,
		expr:     e,
		SignedIn: signedIn,
		LSBIn:    lsbIn,
		LSBOut:   lsbOut,
		WIn:      wIn,
		workers:  runtime.GOMAXPROCS(0),
		maxWidth: DefaultExhaustiveMaxWidth,
		logger:   lg.With("module", "fixfunc"),
	}
	if xerr := f.deriveOutputFormat(); xerr != nil {
		return nil, xerr
	}
	f.logger.Debug("output format", "function", f.src, "msbOut", f.MSBOut, "signedOut", f.SignedOut, "wOut", f.WOut)
	return f, nil
}

// SetWorkers bounds the parallelism of exhaustive evaluations.
func (f *Function) SetWorkers(n int) {
	if n > 0 {
		f.workers = n
	}
}

// SetExhaustiveMaxWidth changes the widest input FaithfulTable accepts.
func (f *Function) SetExhaustiveMaxWidth(w int) {
	if w > 0 {
		f.maxWidth = w
	}
}

func (f *Function) ExhaustiveMaxWidth() int {
	return f.maxWidth
}

func (f *Function) Workers() int {
	return f.workers
}

func (f *Function) Logger() log.Logger {
	return f.logger
}

func (f *Function) Expr() *expr.Function {
	return f.expr
}

func (f *Function) Source() string {
	return f.src
}

func (f *Function) InputFormat() types.FixFormat {
	if f.SignedIn {
		return types.FixFormat{Signed: true, MSB: 0, LSB: f.LSBIn}
	}
	return types.FixFormat{MSB: -1, LSB: f.LSBIn}
}

func (f *Function) OutputFormat() types.FixFormat {
	return types.FixFormat{Signed: f.SignedOut, MSB: f.MSBOut, LSB: f.LSBOut}
}

// RoundingOverflow reports whether the rounded outputs needed one more MSB
// than the exact range of f. Scaled avoids it.
func (f *Function) RoundingOverflow() bool {
	return f.roundingOverflow
}

// Range returns the exact output range of f over all input codewords.
func (f *Function) Range() (inf, sup *big.Float) {
	return f.inf, f.sup
}

// Scaled returns (1-2^lsbOut)*f with the same formats.
func (f *Function) Scaled() (*Function, xerrors.XError) {
	c := new(big.Rat).SetFrac(big.NewInt(1), new(big.Int).Lsh(big.NewInt(1), uint(max(-f.LSBOut, 0))))
	if f.LSBOut > 0 {
		c.SetInt(new(big.Int).Lsh(big.NewInt(1), uint(f.LSBOut)))
	}
	c.Sub(big.NewRat(1, 1), c)
	src := fmt.Sprintf("(1-1b%d)*(%s)", f.LSBOut, f.src)
	g, xerr := newFunction(src, f.expr.ScaleBy(c), f.SignedIn, f.LSBIn, f.LSBOut, f.logger)
	if xerr != nil {
		return nil, xerr
	}
	g.workers, g.maxWidth = f.workers, f.maxWidth
	return g, nil
}

func (f *Function) Description() string {
	dom := "[0,1)"
	if f.SignedIn {
		dom = "[-1,1)"
	}
	return fmt.Sprintf("%s on %s for lsbIn=%d (wIn=%d), msbOut=%d lsbOut=%d (wOut=%d), %s",
		f.src, dom, f.LSBIn, f.WIn, f.MSBOut, f.LSBOut, f.WOut, f.OutputFormat().String())
}

func (f *Function) String() string {
	return f.Description()
}

//
// evaluation

// Eval evaluates f at x with prec bits and no range check.
func (f *Function) Eval(x *big.Float, prec uint) (*big.Float, xerrors.XError) {
	return f.expr.Eval(x, prec)
}

func (f *Function) EvalFloat(x float64) float64 {
	return f.expr.EvalFloat(x)
}

// SignedCodeword decodes an input codeword in [0, 2^wIn).
func (f *Function) SignedCodeword(x int64) int64 {
	if f.SignedIn && x >= int64(1)<<(f.WIn-1) {
		return x - int64(1)<<f.WIn
	}
	return x
}

// InputValue returns the exact real input denoted by codeword x.
func (f *Function) InputValue(x int64) *big.Float {
	v := new(big.Float).SetPrec(64).SetInt64(f.SignedCodeword(x))
	return v.SetMantExp(v, f.LSBIn)
}

func (f *Function) basePrec() uint {
	return uint(2*(f.WIn+max(f.WOut, 1)) + 128)
}

func (f *Function) capPrec() uint {
	return uint(100 * (f.WIn + max(f.WOut, 1)))
}

// bracket returns floor and ceil of f(X)/2^lsbOut. An enclosure still
// straddling an integer at the precision cap is taken as exactly on it.
func (f *Function) bracket(X *big.Float) (*big.Int, *big.Int, xerrors.XError) {
	prec := f.basePrec()
	for {
		iv, xerr := f.expr.EvalInterval(mpnum.Point(X), prec)
		if xerr != nil {
			return nil, nil, xerr
		}
		s := iv.Scale(-f.LSBOut)
		flo, fhi := mpnum.Floor(s.Lo), mpnum.Floor(s.Hi)
		clo, chi := mpnum.Ceil(s.Lo), mpnum.Ceil(s.Hi)
		if flo.Cmp(fhi) == 0 && clo.Cmp(chi) == 0 {
			return flo, chi, nil
		}
		if prec >= f.capPrec() {
			return fhi, fhi, nil
		}
		prec = min(2*prec, f.capPrec())
	}
}

// EvalCodeword evaluates f on the input codeword x. It returns the
// correctly rounded output twice, or the round-down/round-up pair, both as
// wOut-bit two's complement codewords.
func (f *Function) EvalCodeword(x *big.Int, correctlyRounded bool) (*big.Int, *big.Int, xerrors.XError) {
	if x.Sign() < 0 || x.BitLen() > f.WIn {
		return nil, nil, xerrors.ErrInvalidParams.Wrapf("codeword %s out of %d bits", x.String(), f.WIn)
	}
	X := f.InputValue(x.Int64())
	rd, ru, xerr := f.bracket(X)
	if xerr != nil {
		return nil, nil, xerr
	}
	ofmt := f.OutputFormat()
	if correctlyRounded {
		rn, xerr := f.roundNearest(X, rd, ru)
		if xerr != nil {
			return nil, nil, xerr
		}
		w := ofmt.Wrap(rn)
		return w, w, nil
	}
	return ofmt.Wrap(rd), ofmt.Wrap(ru), nil
}

// roundNearest picks rd or ru by comparing f(X)/2^lsbOut with rd+1/2.
func (f *Function) roundNearest(X *big.Float, rd, ru *big.Int) (*big.Int, xerrors.XError) {
	if rd.Cmp(ru) == 0 {
		return rd, nil
	}
	prec := f.basePrec()
	half := new(big.Float).SetPrec(prec).SetInt(rd)
	half.Add(half, big.NewFloat(0.5))
	for {
		iv, xerr := f.expr.EvalInterval(mpnum.Point(X), prec)
		if xerr != nil {
			return nil, xerr
		}
		s := iv.Scale(-f.LSBOut)
		if s.Hi.Cmp(half) < 0 {
			return rd, nil
		}
		if s.Lo.Cmp(half) >= 0 || prec >= f.capPrec() {
			return ru, nil
		}
		prec = min(2*prec, f.capPrec())
	}
}

// Bracket returns the signed round-down and round-up outputs of codeword x,
// in units of 2^lsbOut. Faithful results are exactly these two values.
func (f *Function) Bracket(x int64) (int64, int64, xerrors.XError) {
	rd, ru, xerr := f.bracket(f.InputValue(x))
	if xerr != nil {
		return 0, 0, xerr
	}
	if !rd.IsInt64() || !ru.IsInt64() {
		return 0, 0, xerrors.ErrRange.Wrapf("output of codeword %d exceeds 64 bits", x)
	}
	return rd.Int64(), ru.Int64(), nil
}

// RoundNearest returns the correctly rounded signed output of codeword x,
// in units of 2^lsbOut, ties rounded up.
func (f *Function) RoundNearest(x int64) (int64, xerrors.XError) {
	X := f.InputValue(x)
	rd, ru, xerr := f.bracket(X)
	if xerr != nil {
		return 0, xerr
	}
	rn, xerr := f.roundNearest(X, rd, ru)
	if xerr != nil {
		return 0, xerr
	}
	if !rn.IsInt64() {
		return 0, xerrors.ErrRange.Wrapf("output of codeword %d exceeds 64 bits", x)
	}
	return rn.Int64(), nil
}
