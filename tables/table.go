package tables

import (
	"context"

	"github.com/holiman/uint256"
	"golang.org/x/sync/errgroup"

	"github.com/beatoz/fxopgen/fixfunc"
	"github.com/beatoz/fxopgen/types/xerrors"
)

// Table is a plain table of 2^WIn unsigned words of WOut bits.
type Table struct {
	WIn    int            `json:"wIn"`
	WOut   int            `json:"wOut"`
	Values []*uint256.Int `json:"values"`
}

func NewTable(values []*uint256.Int, wIn, wOut int) (*Table, xerrors.XError) {
	if wIn < 0 || wIn > 30 {
		return nil, xerrors.ErrInvalidParams.Wrapf("table input width %d", wIn)
	}
	if wOut < 0 || wOut > 256 {
		return nil, xerrors.ErrInvalidParams.Wrapf("table output width %d", wOut)
	}
	if len(values) != 1<<wIn {
		return nil, xerrors.ErrInvalidParams.Wrapf("%d values for a table of 2^%d entries", len(values), wIn)
	}
	for i, v := range values {
		if v.BitLen() > wOut {
			return nil, xerrors.ErrInvalidParams.Wrapf("entry %d (%s) does not fit %d bits", i, v.Dec(), wOut)
		}
	}
	return &Table{WIn: wIn, WOut: wOut, Values: values}, nil
}

func (t *Table) Len() int {
	return len(t.Values)
}

func (t *Table) Get(i int) *uint256.Int {
	return t.Values[i]
}

func (t *Table) Cost(cost CostModel) int64 {
	return cost.TableCost(t.WIn, t.WOut)
}

func (t *Table) Compress(cost CostModel) *DifferentialCompression {
	return FindDifferentialCompression(t.Values, t.WIn, t.WOut, cost)
}

// TableFromFunction tabulates the correctly rounded outputs of f, as
// two's complement words of f.WOut bits.
func TableFromFunction(ctx context.Context, f *fixfunc.Function) (*Table, xerrors.XError) {
	if f.WIn > f.ExhaustiveMaxWidth() {
		return nil, xerrors.ErrInputTooWide.Wrapf("wIn=%d > %d", f.WIn, f.ExhaustiveMaxWidth())
	}
	if f.WOut > 63 {
		return nil, xerrors.ErrRange.Wrapf("wOut=%d is too wide for a table", f.WOut)
	}
	n := int64(1) << f.WIn
	values := make([]*uint256.Int, n)
	mask := uint64(1)<<f.WOut - 1

	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(f.Workers())
	chunks := int64(max(f.Workers()*4, 1))
	chunk := (n + chunks - 1) / chunks
	for c := int64(0); c < chunks; c++ {
		c := c
		eg.Go(func() error {
			for x := c * chunk; x < min((c+1)*chunk, n); x++ {
				if x%1024 == 0 && ectx.Err() != nil {
					return ectx.Err()
				}
				r, xerr := f.RoundNearest(x)
				if xerr != nil {
					return xerr
				}
				values[x] = uint256.NewInt(uint64(r) & mask)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, xerrors.Cast(err)
	}
	return NewTable(values, f.WIn, f.WOut)
}

// Output decodes entry i, as a two's complement word when signed.
func (t *Table) Output(i int, signed bool) int64 {
	v := int64(t.Values[i].Uint64())
	if signed && t.WOut > 0 && t.WOut < 64 && v>>(t.WOut-1)&1 == 1 {
		v -= int64(1) << t.WOut
	}
	return v
}
