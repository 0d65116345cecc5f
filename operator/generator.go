package operator

import (
	"context"
	"strings"

	"github.com/tendermint/tendermint/libs/log"
	"golang.org/x/sync/errgroup"

	"github.com/beatoz/fxopgen/fixfunc"
	"github.com/beatoz/fxopgen/horner"
	"github.com/beatoz/fxopgen/multipartite"
	"github.com/beatoz/fxopgen/piecewise"
	"github.com/beatoz/fxopgen/polyapprox"
	"github.com/beatoz/fxopgen/tables"
	"github.com/beatoz/fxopgen/types"
	"github.com/beatoz/fxopgen/types/bytes"
	"github.com/beatoz/fxopgen/types/xerrors"
)

// AutoTableMaxWidth is the widest input for which Auto considers a plain table.
const AutoTableMaxWidth = 16

type Strategy int

const (
	Auto Strategy = iota
	Table
	SimplePoly
	PiecewisePoly
	VaryingPoly
	Multipartite
)

var strategyNames = []string{"auto", "table", "simplepoly", "piecewise", "varying", "multipartite"}

func (s Strategy) String() string {
	if s < 0 || int(s) >= len(strategyNames) {
		return "unknown"
	}
	return strategyNames[s]
}

func ParseStrategy(name string) (Strategy, xerrors.XError) {
	for i, n := range strategyNames {
		if strings.EqualFold(n, name) {
			return Strategy(i), nil
		}
	}
	return Auto, xerrors.ErrInvalidParams.Wrapf("unknown method %q, expected one of %s", name, strings.Join(strategyNames, "|"))
}

// Params are the generator wide settings, read from the config file.
type Params struct {
	Target             types.TargetParams
	MaxDegree          int
	MaxAlpha           int
	MaxGuardBits       int
	ExhaustiveMaxWidth int
	Workers            int
	TableCompression   bool
}

// Request describes one operator. Negative Degree and Alpha are searched.
type Request struct {
	Function    string
	SignedIn    bool
	LSBIn       int
	LSBOut      int
	Method      Strategy
	Degree      int
	Alpha       int
	NbTO        int
	ScaleOutput bool
	Validate    bool
}

func NewRequest(src string, signedIn bool, lsbIn, lsbOut int) Request {
	return Request{Function: src, SignedIn: signedIn, LSBIn: lsbIn, LSBOut: lsbOut, Degree: -1, Alpha: -1}
}

type TableResult struct {
	Table       *tables.Table                   `json:"table"`
	Compression *tables.DifferentialCompression `json:"compression,omitempty"`
}

// Result holds exactly one of Table, Poly and Multipartite.
type Result struct {
	Strategy         Strategy                    `json:"-"`
	Method           string                      `json:"method"`
	Function         string                      `json:"function"`
	Input            types.FixFormat             `json:"input"`
	Output           types.FixFormat             `json:"output"`
	RoundingOverflow bool                        `json:"roundingOverflow"`
	Target           types.TargetParams          `json:"target"`
	Cost             int64                       `json:"cost"`
	Table            *TableResult                `json:"table,omitempty"`
	Poly             *piecewise.Candidate        `json:"poly,omitempty"`
	Multipartite     *multipartite.Decomposition `json:"multipartite,omitempty"`
	Validation       *fixfunc.Validation         `json:"validation,omitempty"`
	CacheFingerprint bytes.HexBytes              `json:"cacheFingerprint,omitempty"`

	f *fixfunc.Function
}

// fingerprinter is implemented by caches that can identify their content.
type fingerprinter interface {
	Fingerprint() ([]byte, xerrors.XError)
}

type Generator struct {
	params Params
	cache  piecewise.Cache
	logger log.Logger
}

func NewGenerator(params Params, cache piecewise.Cache, lg log.Logger) *Generator {
	if cache == nil {
		cache = piecewise.NopCache
	}
	return &Generator{params: params, cache: cache, logger: lg.With("module", "operator")}
}

func (g *Generator) newFunction(req Request) (*fixfunc.Function, xerrors.XError) {
	f, xerr := fixfunc.New(req.Function, req.SignedIn, req.LSBIn, req.LSBOut, g.logger)
	if xerr != nil {
		return nil, xerr
	}
	f.SetWorkers(g.params.Workers)
	f.SetExhaustiveMaxWidth(g.params.ExhaustiveMaxWidth)
	return f, nil
}

// Generate builds the operator of req with the requested strategy, or the
// cheapest applicable one under Auto.
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, xerrors.XError) {
	if xerr := g.params.Target.Validate(); xerr != nil {
		return nil, xerr
	}
	if req.NbTO < 0 {
		return nil, xerrors.ErrInvalidParams.Wrapf("nbTO=%d is negative", req.NbTO)
	}
	f, xerr := g.newFunction(req)
	if xerr != nil {
		return nil, xerr
	}
	if f.RoundingOverflow() && !req.ScaleOutput {
		g.logger.Info("rounding can overflow the output range, consider scaling the output", "function", f.Source(), "msbOut", f.MSBOut)
	}

	var res *Result
	if req.Method == Auto {
		res, xerr = g.auto(ctx, f, req)
	} else {
		res, xerr = g.run(ctx, f, req, req.Method)
	}
	if xerr != nil {
		return nil, xerr
	}

	if req.Validate {
		v, xerr := g.validate(ctx, res)
		if xerr != nil {
			return nil, xerr
		}
		res.Validation = &v
		g.logger.Info("exhaustive check", "method", res.Method, "result", v.String())
	}
	if fp, ok := g.cache.(fingerprinter); ok {
		bz, xerr := fp.Fingerprint()
		if xerr != nil {
			g.logger.Error("cache fingerprint", "err", xerr.Error())
		}
		res.CacheFingerprint = bz
		g.logger.Debug("cache fingerprint", "hash", res.CacheFingerprint.Short(8))
	}
	return res, nil
}

// applicable lists the strategies Auto tries, in tie-break order.
func (g *Generator) applicable(f *fixfunc.Function) []Strategy {
	var list []Strategy
	if f.WIn <= min(AutoTableMaxWidth, f.ExhaustiveMaxWidth()) {
		list = append(list, Table)
	}
	if !f.SignedOut && f.WIn <= f.ExhaustiveMaxWidth() {
		list = append(list, Multipartite)
	}
	return append(list, PiecewisePoly)
}

func (g *Generator) auto(ctx context.Context, f *fixfunc.Function, req Request) (*Result, xerrors.XError) {
	strategies := g.applicable(f)
	results := make([]*Result, len(strategies))
	errs := make([]xerrors.XError, len(strategies))

	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(f.Workers())
	for i, s := range strategies {
		i, s := i, s
		eg.Go(func() error {
			res, xerr := g.run(ectx, f, req, s)
			if xerr != nil {
				if ectx.Err() != nil {
					return xerr
				}
				// a failed strategy leaves the others running
				errs[i] = xerr
				return nil
			}
			results[i] = res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, xerrors.Cast(err)
	}

	var best *Result
	for i, res := range results {
		if res == nil {
			g.logger.Error("strategy failed", "method", strategies[i].String(), "err", errs[i].Error())
			continue
		}
		g.logger.Debug("strategy", "method", res.Method, "cost", res.Cost)
		if best == nil || res.Cost < best.Cost {
			best = res
		}
	}
	if best == nil {
		return nil, errs[0]
	}
	g.logger.Info("selected", "function", f.Source(), "method", best.Method, "cost", best.Cost)
	return best, nil
}

func (g *Generator) newResult(f *fixfunc.Function, s Strategy) *Result {
	return &Result{
		Strategy:         s,
		Method:           s.String(),
		Function:         f.Source(),
		Input:            f.InputFormat(),
		Output:           f.OutputFormat(),
		RoundingOverflow: f.RoundingOverflow(),
		Target:           g.params.Target,
		f:                f,
	}
}

func (g *Generator) splitter(f *fixfunc.Function) *piecewise.Splitter {
	return piecewise.NewSplitter(f, piecewise.Params{
		MaxAlpha:     g.params.MaxAlpha,
		MaxDegree:    g.params.MaxDegree,
		MaxGuardBits: g.params.MaxGuardBits,
		Target:       g.params.Target,
	}, g.cache, g.logger)
}

func (g *Generator) run(ctx context.Context, f *fixfunc.Function, req Request, s Strategy) (*Result, xerrors.XError) {
	switch s {
	case Table:
		return g.table(ctx, f)
	case SimplePoly:
		req.Alpha = 0
		return g.piecewise(ctx, f, req, SimplePoly)
	case PiecewisePoly:
		return g.piecewise(ctx, f, req, PiecewisePoly)
	case VaryingPoly:
		return g.varying(ctx, f, req)
	case Multipartite:
		return g.multipartite(ctx, f, req)
	}
	return nil, xerrors.ErrInvalidParams.Wrapf("method %s", s.String())
}

func (g *Generator) table(ctx context.Context, f *fixfunc.Function) (*Result, xerrors.XError) {
	tbl, xerr := tables.TableFromFunction(ctx, f)
	if xerr != nil {
		return nil, xerr
	}
	cost := tables.TargetCost{Params: g.params.Target}
	res := g.newResult(f, Table)
	res.Table = &TableResult{Table: tbl}
	res.Cost = tbl.Cost(cost)
	if g.params.TableCompression {
		dc := tbl.Compress(cost)
		res.Table.Compression = dc
		res.Cost = dc.Cost()
	}
	return res, nil
}

// piecewise builds a uniform split. A fixed degree with a searched alpha
// takes the smallest feasible alpha.
func (g *Generator) piecewise(ctx context.Context, f *fixfunc.Function, req Request, s Strategy) (*Result, xerrors.XError) {
	sp := g.splitter(f)
	var (
		c    *piecewise.Candidate
		xerr xerrors.XError
	)
	switch {
	case req.Alpha >= 0:
		// a negative degree is the smallest one meeting the target
		c, xerr = g.candidate(ctx, sp, req.Alpha, req.Degree)
	case req.Degree >= 0:
		for alpha := 0; alpha <= sp.MaxAlpha(); alpha++ {
			c, xerr = g.candidate(ctx, sp, alpha, req.Degree)
			if xerr == nil || !infeasible(xerr) {
				break
			}
		}
	default:
		c, xerr = sp.Search(ctx, g.params.MaxDegree)
	}
	if xerr != nil {
		return nil, xerr
	}
	res := g.newResult(f, s)
	res.Poly = c
	res.Cost = c.Cost
	return res, nil
}

func (g *Generator) candidate(ctx context.Context, sp *piecewise.Splitter, alpha, degree int) (*piecewise.Candidate, xerrors.XError) {
	r, xerr := sp.Build(ctx, alpha, degree)
	if xerr != nil {
		return nil, xerr
	}
	return sp.Candidate(r)
}

func (g *Generator) varying(ctx context.Context, f *fixfunc.Function, req Request) (*Result, xerrors.XError) {
	sp := g.splitter(f)
	degrees := []int{req.Degree}
	if req.Degree < 0 {
		degrees = degrees[:0]
		for d := 1; d <= g.maxDegree(); d++ {
			degrees = append(degrees, d)
		}
	}
	var xerr xerrors.XError
	for _, d := range degrees {
		var r *piecewise.Result
		r, xerr = sp.BuildVarying(ctx, d)
		if xerr == nil {
			var c *piecewise.Candidate
			c, xerr = sp.Candidate(r)
			if xerr == nil {
				res := g.newResult(f, VaryingPoly)
				res.Poly = c
				res.Cost = c.Cost
				return res, nil
			}
		}
		if !infeasible(xerr) {
			return nil, xerr
		}
		g.logger.Debug("varying split infeasible", "degree", d, "err", xerr.Error())
	}
	return nil, xerr
}

func (g *Generator) multipartite(ctx context.Context, f *fixfunc.Function, req Request) (*Result, xerrors.XError) {
	d, xerr := multipartite.NewDecomposer(f, multipartite.Options{
		NbTO:        req.NbTO,
		CompressTIV: g.params.TableCompression,
		ScaleOutput: req.ScaleOutput,
		Target:      g.params.Target,
	}, g.logger)
	if xerr != nil {
		return nil, xerr
	}
	dec, xerr := d.Decompose(ctx)
	if xerr != nil {
		return nil, xerr
	}
	res := g.newResult(d.Function(), Multipartite)
	res.Multipartite = dec
	res.Cost = dec.Cost()
	return res, nil
}

func (g *Generator) maxDegree() int {
	if g.params.MaxDegree > 0 {
		return g.params.MaxDegree
	}
	return polyapprox.DefaultMaxDegree
}

func infeasible(xerr xerrors.XError) bool {
	return xerr.Contains(xerrors.ErrApproximationInfeasible) ||
		xerr.Contains(xerrors.ErrErrorBudgetInfeasible) ||
		xerr.Contains(xerrors.ErrRange)
}

// validate runs the exhaustive faithful check of the generated datapath.
func (g *Generator) validate(ctx context.Context, res *Result) (fixfunc.Validation, xerrors.XError) {
	f := res.f
	switch {
	case res.Table != nil:
		tbl := res.Table.Table
		if dc := res.Table.Compression; dc != nil {
			values := dc.GetInitialTable()
			return f.Validate(ctx, func(x int64) (int64, xerrors.XError) {
				return tableWord(values[x].Uint64(), tbl.WOut, f.SignedOut), nil
			})
		}
		return f.Validate(ctx, func(x int64) (int64, xerrors.XError) {
			return tbl.Output(int(x), f.SignedOut), nil
		})
	case res.Poly != nil:
		return horner.NewEmulator(res.Poly.Schedule).ExhaustiveCheck(ctx, f, res.Poly.Result)
	case res.Multipartite != nil:
		return res.Multipartite.ExhaustiveTest(ctx)
	}
	return fixfunc.Validation{}, xerrors.ErrNotFoundResult.Wrapf("empty %s result", res.Method)
}

// tableWord decodes a stored word, two's complement when signed.
func tableWord(v uint64, w int, signed bool) int64 {
	y := int64(v)
	if signed && w > 0 && w < 64 && v>>(w-1)&1 == 1 {
		y -= int64(1) << w
	}
	return y
}
