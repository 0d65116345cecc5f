package fixfunc

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/beatoz/fxopgen/types/xerrors"
)

// FaithfulTable holds, for every input codeword, the signed round-down and
// round-up outputs in units of 2^lsbOut.
type FaithfulTable struct {
	RD []int64
	RU []int64
}

func (t *FaithfulTable) Len() int {
	return len(t.RD)
}

// IsFaithful reports whether y is a faithful rounding at codeword x.
func (t *FaithfulTable) IsFaithful(x int64, y int64) bool {
	return y == t.RD[x] || y == t.RU[x]
}

// FaithfulTable evaluates every codeword once. The result is memoized.
func (f *Function) FaithfulTable(ctx context.Context) (*FaithfulTable, xerrors.XError) {
	f.tableMtx.Lock()
	defer f.tableMtx.Unlock()

	if f.table != nil {
		return f.table, nil
	}
	if f.WIn > f.maxWidth {
		return nil, xerrors.ErrInputTooWide.Wrapf("wIn=%d > %d", f.WIn, f.maxWidth)
	}
	if f.WOut > 62 {
		return nil, xerrors.ErrRange.Wrapf("wOut=%d is too wide for exhaustive tables", f.WOut)
	}

	n := int64(1) << f.WIn
	tbl := &FaithfulTable{RD: make([]int64, n), RU: make([]int64, n)}
	chunks := int64(max(f.workers*4, 1))
	chunk := (n + chunks - 1) / chunks

	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(f.workers)
	for c := int64(0); c < chunks; c++ {
		c := c
		eg.Go(func() error {
			for x := c * chunk; x < min((c+1)*chunk, n); x++ {
				if x%1024 == 0 && ectx.Err() != nil {
					return ectx.Err()
				}
				rd, ru, xerr := f.Bracket(x)
				if xerr != nil {
					return xerr
				}
				tbl.RD[x], tbl.RU[x] = rd, ru
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, xerrors.Cast(err)
	}
	f.logger.Debug("faithful table ready", "function", f.src, "entries", n)
	f.table = tbl
	return tbl, nil
}
