package fixfunc

import (
	"context"
	"math/big"

	"golang.org/x/sync/errgroup"

	"github.com/beatoz/fxopgen/libs/mpnum"
	"github.com/beatoz/fxopgen/types/xerrors"
)

const rangePrec = 192

// deriveOutputFormat sets msbOut, signedOut and wOut from the range of f.
func (f *Function) deriveOutputFormat() xerrors.XError {
	var (
		inf, sup *big.Float
		xerr     xerrors.XError
	)
	if f.WIn <= ExhaustiveMSBWidth {
		inf, sup, xerr = f.exhaustiveRange()
	} else {
		f.logger.Info("output range from interval evaluation, msbOut may be one bit pessimistic",
			"function", f.src, "wIn", f.WIn)
		inf, sup, xerr = f.intervalRange()
	}
	if xerr != nil {
		return xerr
	}
	f.inf, f.sup = inf, sup

	halfUlp := mpnum.Pow2(f.LSBOut-1, 64)
	f.SignedOut = new(big.Float).SetPrec(rangePrec).Add(inf, halfUlp).Sign() < 0

	maxAbs := mpnum.Max(mpnum.Abs(inf), mpnum.Abs(sup))
	if maxAbs.Sign() == 0 {
		return xerrors.ErrRange.Wrapf("%s is identically zero on its domain", f.src)
	}
	f.MSBOut = mpnum.Log2Floor(maxAbs)
	if f.SignedOut {
		f.MSBOut++
	}

	// rounding the largest output up, or the value at the closed end x=1 of
	// the domain, can reach the next power of two
	top := sup
	if end, xerr := f.expr.EvalInterval(mpnum.PointInt64(1, rangePrec), rangePrec); xerr == nil {
		top = mpnum.Max(top, end.Lo)
	}
	limit := new(big.Int).Lsh(big.NewInt(1), uint(max(f.MSBOut-f.LSBOut+1, 0)))
	if f.SignedOut {
		limit.Rsh(limit, 1)
	}
	limit.Sub(limit, big.NewInt(1))
	if f.MSBOut >= f.LSBOut && mpnum.Ceil(mpnum.Scale(top, -f.LSBOut)).Cmp(limit) > 0 {
		f.MSBOut++
		f.roundingOverflow = true
		f.logger.Info("rounded output overflows the exact range, adding one msb",
			"function", f.src, "msbOut", f.MSBOut)
	}

	if f.MSBOut < f.LSBOut {
		return xerrors.ErrRange.Wrapf("msbOut=%d < lsbOut=%d: output always rounds to zero", f.MSBOut, f.LSBOut)
	}
	f.WOut = f.MSBOut - f.LSBOut + 1
	return nil
}

// exhaustiveRange encloses f at every codeword and returns the extreme bounds.
func (f *Function) exhaustiveRange() (*big.Float, *big.Float, xerrors.XError) {
	n := int64(1) << f.WIn
	chunks := int64(max(f.workers*4, 1))
	chunk := (n + chunks - 1) / chunks
	infs := make([]*big.Float, chunks)
	sups := make([]*big.Float, chunks)

	eg, _ := errgroup.WithContext(context.Background())
	eg.SetLimit(f.workers)
	for c := int64(0); c < chunks; c++ {
		c := c
		eg.Go(func() error {
			for x := c * chunk; x < min((c+1)*chunk, n); x++ {
				iv, xerr := f.expr.EvalInterval(mpnum.Point(f.InputValue(x)), rangePrec)
				if xerr != nil {
					return xerrors.ErrRange.Wrapf("evaluating %s at codeword %d: %v", f.src, x, xerr)
				}
				if infs[c] == nil || iv.Lo.Cmp(infs[c]) < 0 {
					infs[c] = iv.Lo
				}
				if sups[c] == nil || iv.Hi.Cmp(sups[c]) > 0 {
					sups[c] = iv.Hi
				}
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, nil, xerrors.Cast(err)
	}
	return reduceRange(infs, sups)
}

// intervalRange encloses f over the whole domain split into rangePieces.
func (f *Function) intervalRange() (*big.Float, *big.Float, xerrors.XError) {
	infs := make([]*big.Float, rangePieces)
	sups := make([]*big.Float, rangePieces)
	n := int64(1) << f.WIn
	step := n / rangePieces

	eg, _ := errgroup.WithContext(context.Background())
	eg.SetLimit(f.workers)
	for i := int64(0); i < rangePieces; i++ {
		i := i
		eg.Go(func() error {
			lo := f.InputValue(i * step)
			hi := f.InputValue((i+1)*step - 1)
			iv, xerr := f.expr.EvalInterval(mpnum.NewInterval(lo, hi), rangePrec)
			if xerr != nil {
				return xerrors.ErrRange.Wrapf("evaluating %s over [%s,%s]: %v", f.src, lo.String(), hi.String(), xerr)
			}
			infs[i], sups[i] = iv.Lo, iv.Hi
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, nil, xerrors.Cast(err)
	}
	return reduceRange(infs, sups)
}

func reduceRange(infs, sups []*big.Float) (*big.Float, *big.Float, xerrors.XError) {
	var inf, sup *big.Float
	for i := range infs {
		if infs[i] == nil {
			continue
		}
		if inf == nil || infs[i].Cmp(inf) < 0 {
			inf = infs[i]
		}
		if sup == nil || sups[i].Cmp(sup) > 0 {
			sup = sups[i]
		}
	}
	if inf == nil {
		return nil, nil, xerrors.ErrRange.Wrapf("empty input domain")
	}
	return inf, sup, nil
}
