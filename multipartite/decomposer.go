package multipartite

import (
	"context"

	"github.com/tendermint/tendermint/libs/log"
	"golang.org/x/sync/errgroup"

	"github.com/beatoz/fxopgen/fixfunc"
	"github.com/beatoz/fxopgen/tables"
	"github.com/beatoz/fxopgen/types"
	"github.com/beatoz/fxopgen/types/xerrors"
)

const (
	// TopSize is the number of ranked candidates validated before the
	// guard bit slack grows.
	TopSize = 10

	DefaultMaxGuardBits = 12
)

// SlackLevel shifts the guard bits of every candidate.
type SlackLevel int

const (
	Aggressive SlackLevel = -1
	Safe       SlackLevel = 0
	Generous   SlackLevel = 1
)

var SlackLevels = []SlackLevel{Aggressive, Safe, Generous}

func (l SlackLevel) String() string {
	switch l {
	case Aggressive:
		return "aggressive"
	case Safe:
		return "safe"
	case Generous:
		return "generous"
	}
	return "unknown"
}

type Options struct {
	// NbTO fixes the number of offset tables, 0 searches it.
	NbTO int
	// MaxBeta bounds every offset field width, 0 leaves it free.
	MaxBeta      int
	MaxGuardBits int
	CompressTIV  bool
	// ScaleOutput decomposes (1-2^lsbOut)*f instead of f.
	ScaleOutput bool
	Target      types.TargetParams
}

type Decomposer struct {
	f       *fixfunc.Function
	opts    Options
	workers int
	logger  log.Logger
}

func NewDecomposer(f *fixfunc.Function, opts Options, lg log.Logger) (*Decomposer, xerrors.XError) {
	if opts.NbTO < 0 {
		return nil, xerrors.ErrInvalidParams.Wrapf("nbTO=%d is negative", opts.NbTO)
	}
	if opts.MaxBeta != 0 && opts.MaxBeta < 2 {
		return nil, xerrors.ErrInvalidParams.Wrapf("maxBeta=%d < 2", opts.MaxBeta)
	}
	if opts.MaxGuardBits <= 0 {
		opts.MaxGuardBits = DefaultMaxGuardBits
	}
	if opts.ScaleOutput {
		scaled, xerr := f.Scaled()
		if xerr != nil {
			return nil, xerr
		}
		f = scaled
	}
	return &Decomposer{
		f:       f,
		opts:    opts,
		workers: f.Workers(),
		logger:  lg.With("module", "multipartite"),
	}, nil
}

// Function is the decomposed function, scaled when ScaleOutput is set.
func (d *Decomposer) Function() *fixfunc.Function {
	return d.f
}

func (d *Decomposer) alphas() []int {
	w := d.f.WIn
	var res []int
	for a := max(1, w/3); a <= min(2*w/3, w-2); a++ {
		res = append(res, a)
	}
	return res
}

// Decompose searches the smallest decomposition that passes the exhaustive
// faithfulness test.
func (d *Decomposer) Decompose(ctx context.Context) (*Decomposition, xerrors.XError) {
	f := d.f
	if f.SignedOut {
		return nil, xerrors.ErrNegativeOutput.Wrapf("%s", f.Description())
	}
	if f.WIn > f.ExhaustiveMaxWidth() {
		return nil, xerrors.ErrNoValidDecomposition.Wrapf("wIn=%d exceeds the exhaustive test width %d", f.WIn, f.ExhaustiveMaxWidth())
	}
	alphas := d.alphas()
	if len(alphas) == 0 {
		return nil, xerrors.ErrNoValidDecomposition.Wrapf("wIn=%d is too small to split", f.WIn)
	}
	model := newErrorModel(f, alphas)

	for _, slack := range SlackLevels {
		top, xerr := d.search(ctx, model, alphas, slack)
		if xerr != nil {
			return nil, xerr
		}
		if len(top.items) == 0 {
			return nil, xerrors.ErrNoValidDecomposition.Wrapf("no split of %s within the error budget %g", f.Source(), model.epsT)
		}
		for rank, c := range top.items {
			dec, xerr := d.build(ctx, c, slack)
			if xerr != nil {
				return nil, xerr
			}
			v, xerr := dec.ExhaustiveTest(ctx)
			if xerr != nil {
				return nil, xerr
			}
			if v.OK() {
				d.logger.Info("multipartite decomposition", "function", f.Source(), "rank", rank, "slack", slack.String(), "decomposition", dec.Description())
				return dec, nil
			}
			d.logger.Debug("candidate failed", "rank", rank, "candidate", c.String(), "result", v.String())
		}
		d.logger.Info("no candidate passed, adding a guard bit", "function", f.Source(), "slack", slack.String())
	}
	return nil, xerrors.ErrNoValidDecomposition.Wrapf("every candidate of %s failed the exhaustive test", f.Source())
}

// search ranks the candidates of every table count, or of NbTO.
func (d *Decomposer) search(ctx context.Context, model *errorModel, alphas []int, slack SlackLevel) (*ranking, xerrors.XError) {
	top := newRanking(TopSize)
	if d.opts.NbTO > 0 {
		found, xerr := d.searchM(ctx, model, alphas, d.opts.NbTO, slack, top)
		if xerr != nil {
			return nil, xerr
		}
		if !found {
			return nil, xerrors.ErrNoValidDecomposition.Wrapf("no decomposition with %d offset tables", d.opts.NbTO)
		}
		return top, nil
	}
	for m := 1; ; m++ {
		found, xerr := d.searchM(ctx, model, alphas, m, slack, top)
		if xerr != nil {
			return nil, xerr
		}
		if !found {
			d.logger.Debug("no decomposition, stopping", "nbTO", m)
			return top, nil
		}
	}
}

// searchM enumerates the alphas in parallel, each into its own ranking.
func (d *Decomposer) searchM(ctx context.Context, model *errorModel, alphas []int, m int, slack SlackLevel, top *ranking) (bool, xerrors.XError) {
	parts := make([]*ranking, len(alphas))
	counts := make([]int, len(alphas))

	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(d.workers)
	for k, alpha := range alphas {
		k, alpha := k, alpha
		eg.Go(func() error {
			r := newRanking(TopSize)
			n, err := d.enumerate(ectx, model, m, alpha, slack, r)
			if err != nil {
				return err
			}
			parts[k], counts[k] = r, n
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return false, xerrors.Cast(err)
	}

	found := 0
	for k := range parts {
		found += counts[k]
		top.merge(parts[k])
	}
	d.logger.Debug("explored", "nbTO", m, "slack", slack.String(), "feasible", found)
	return found > 0, nil
}

// enumerate ranks the feasible splits with m tables and alpha leading
// bits. It returns the number of feasible splits.
func (d *Decomposer) enumerate(ctx context.Context, model *errorModel, m, alpha int, slack SlackLevel, r *ranking) (int, error) {
	f := d.f
	beta := f.WIn - alpha
	if beta < 2*m {
		return 0, nil
	}
	found := 0
	for _, betai := range compositions(beta, m, d.opts.MaxBeta) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		pi := positions(betai)
		mins := make([]int, m)
		for i := range betai {
			mins[i] = model.gammaMin[pi[i]][betai[i]]
		}
		eachGamma(mins, alpha, func(gammai []int) {
			mathError := model.curvature[alpha]
			for i := range gammai {
				mathError += model.one[pi[i]][betai[i]][gammai[i]]
			}
			if mathError >= model.epsT {
				return
			}
			found++
			g := model.guardBits(m, mathError, slack)
			if g > d.opts.MaxGuardBits {
				return
			}
			c := &candidate{
				M:         m,
				Alpha:     alpha,
				Beta:      beta,
				Betai:     betai,
				Pi:        pi,
				MathError: mathError,
				GuardBits: g,
				WidthTIV:  f.WOut + g,
				WidthTOi:  make([]int, m),
			}
			c.TotalSize = tables.RawBitCost{}.TableCost(alpha, c.WidthTIV)
			for i := range betai {
				c.WidthTOi[i] = model.offsetWidth(pi[i], betai[i], g, f.LSBOut)
				c.TotalSize += tables.RawBitCost{}.TableCost(gammai[i]+betai[i]-1, c.WidthTOi[i])
			}
			if !r.admits(c.TotalSize) {
				return
			}
			c.Gammai = append([]int(nil), gammai...)
			r.insert(c)
		})
	}
	return found, nil
}
