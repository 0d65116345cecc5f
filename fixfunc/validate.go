package fixfunc

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/beatoz/fxopgen/types/xerrors"
)

// Validation counts the results of an exhaustive faithfulness check.
type Validation struct {
	Checked    int64 `json:"checked"`
	Violations int64 `json:"violations"`
	Overflows  int64 `json:"overflows"`
	// FirstViolation is the smallest failing codeword, or -1.
	FirstViolation int64 `json:"firstViolation"`
}

func (v Validation) OK() bool {
	return v.Violations == 0 && v.Overflows == 0
}

func (v Validation) String() string {
	return fmt.Sprintf("checked=%d violations=%d overflows=%d", v.Checked, v.Violations, v.Overflows)
}

// Validate compares eval against the faithful brackets of every codeword.
// eval returns a signed output in units of 2^lsbOut. Outputs that do not fit
// the output format count as overflows.
func (f *Function) Validate(ctx context.Context, eval func(x int64) (int64, xerrors.XError)) (Validation, xerrors.XError) {
	tbl, xerr := f.FaithfulTable(ctx)
	if xerr != nil {
		return Validation{}, xerr
	}
	lo, hi := f.OutputFormat().MantissaRange()
	minOut, maxOut := lo.Int64(), hi.Int64()

	n := int64(tbl.Len())
	chunks := int64(max(f.workers*4, 1))
	chunk := (n + chunks - 1) / chunks
	parts := make([]Validation, chunks)

	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(f.workers)
	for c := int64(0); c < chunks; c++ {
		c := c
		eg.Go(func() error {
			v := Validation{FirstViolation: -1}
			for x := c * chunk; x < min((c+1)*chunk, n); x++ {
				if x%1024 == 0 && ectx.Err() != nil {
					return ectx.Err()
				}
				y, xerr := eval(x)
				if xerr != nil {
					return xerr
				}
				v.Checked++
				if y < minOut || y > maxOut {
					v.Overflows++
				}
				if !tbl.IsFaithful(x, y) {
					v.Violations++
					if v.FirstViolation < 0 {
						v.FirstViolation = x
					}
				}
			}
			parts[c] = v
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return Validation{}, xerrors.Cast(err)
	}

	total := Validation{FirstViolation: -1}
	for _, v := range parts {
		total.Checked += v.Checked
		total.Violations += v.Violations
		total.Overflows += v.Overflows
		if total.FirstViolation < 0 && v.FirstViolation >= 0 {
			total.FirstViolation = v.FirstViolation
		}
	}
	if !total.OK() {
		f.logger.Info("validation failed", "function", f.src, "result", total.String(), "first", total.FirstViolation)
	}
	return total, nil
}
