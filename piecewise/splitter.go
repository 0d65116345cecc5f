package piecewise

import (
	"context"
	"math/big"
	"sort"
	"sync/atomic"

	"github.com/tendermint/tendermint/libs/log"
	"golang.org/x/sync/errgroup"

	"github.com/beatoz/fxopgen/fixfunc"
	"github.com/beatoz/fxopgen/libs/expr"
	"github.com/beatoz/fxopgen/libs/mpnum"
	"github.com/beatoz/fxopgen/polyapprox"
	"github.com/beatoz/fxopgen/types"
	"github.com/beatoz/fxopgen/types/xerrors"
)

const (
	DefaultMaxAlpha = 12

	// lsbRetries bounds the extra bits granted to shared column LSBs.
	lsbRetries = 4
)

type Params struct {
	MaxAlpha     int
	MaxDegree    int
	MaxGuardBits int
	Target       types.TargetParams
}

// Result is a split of the input domain with one polynomial per interval.
// All polynomials share the degree and the column LSBs.
type Result struct {
	Function string `json:"function"`
	SignedIn bool   `json:"signedIn"`
	WIn      int    `json:"wIn"`
	LSBIn    int    `json:"lsbIn"`
	LSBOut   int    `json:"lsbOut"`
	// Alpha is the split depth, the deepest one for varying splits.
	Alpha   int  `json:"alpha"`
	Degree  int  `json:"degree"`
	Varying bool `json:"varying"`
	// LSBY is the LSB of the Horner input, the finest over all intervals,
	// which is the one of the largest interval.
	LSBY       int                           `json:"lsbY"`
	Intervals  []Interval                    `json:"intervals"`
	Polys      []*polyapprox.BasicPolyApprox `json:"polys"`
	ColumnLSBs []int                         `json:"columnLsbs"`
	Target     *big.Float                    `json:"target"`

	loc *locator
}

func (r *Result) locator() *locator {
	if r.loc == nil {
		uniform := r.Alpha
		if r.Varying {
			uniform = -1
		}
		r.loc = &locator{wIn: r.WIn, signedIn: r.SignedIn, uniform: uniform, ivs: r.Intervals}
	}
	return r.loc
}

// Locate returns the interval of input codeword x and the mantissa of its
// reduced argument y at LSBY.
func (r *Result) Locate(x int64) (int, *big.Int) {
	l := r.locator()
	u := l.offset(x)
	k := l.find(u)
	iv := r.Intervals[k]
	y := big.NewInt(u - iv.Start - int64(1)<<(iv.Log2Size-1))
	return k, y.Lsh(y, uint(iv.LSBY()-r.LSBY))
}

type Splitter struct {
	f       *fixfunc.Function
	params  Params
	cache   Cache
	target  *big.Float
	workers int
	logger  log.Logger
}

func NewSplitter(f *fixfunc.Function, params Params, cache Cache, lg log.Logger) *Splitter {
	if params.MaxAlpha <= 0 {
		params.MaxAlpha = DefaultMaxAlpha
	}
	if params.MaxDegree <= 0 {
		params.MaxDegree = polyapprox.DefaultMaxDegree
	}
	if cache == nil {
		cache = NopCache
	}
	return &Splitter{
		f:       f,
		params:  params,
		cache:   cache,
		target:  mpnum.Pow2(f.LSBOut-2, 64),
		workers: f.Workers(),
		logger:  lg.With("module", "piecewise"),
	}
}

// MaxAlpha is the deepest usable split.
func (s *Splitter) MaxAlpha() int {
	return min(s.params.MaxAlpha, s.f.WIn-1)
}

// job is the approximation state of one interval.
type job struct {
	iv     Interval
	g      *expr.Function
	approx *polyapprox.Approximator
	poly   *polyapprox.BasicPolyApprox
	failed bool
}

func (j *job) approximator(target *big.Float) *polyapprox.Approximator {
	if j.approx == nil {
		j.approx = polyapprox.NewApproximator(j.g, target)
	}
	return j.approx
}

func (s *Splitter) newJob(iv Interval) *job {
	return &job{iv: iv, g: iv.reduced(s.f.Expr(), s.f.SignedIn)}
}

func (s *Splitter) key(iv Interval, degree int) Key {
	return Key{
		Function: s.f.Description(),
		LSBIn:    s.f.LSBIn,
		LSBOut:   s.f.LSBOut,
		Degree:   degree,
		Alpha:    iv.Depth,
		Interval: iv.Index,
	}
}

// each runs fn on every job in parallel.
func (s *Splitter) each(ctx context.Context, jobs []*job, fn func(j *job) xerrors.XError) xerrors.XError {
	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(s.workers)
	for _, j := range jobs {
		j := j
		eg.Go(func() error {
			if err := ectx.Err(); err != nil {
				return err
			}
			if xerr := fn(j); xerr != nil {
				return xerr
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return xerrors.Cast(err)
	}
	return nil
}

// approximate fills j.poly at the given degree, -1 searching the lowest.
// A searched entry above MaxDegree is one a fresh search would not find.
func (s *Splitter) approximate(j *job, degree int) xerrors.XError {
	k := s.key(j.iv, degree)
	if p, ok := s.cache.Get(k); ok && p.Degree <= s.params.MaxDegree && (degree < 0 || p.Degree == degree) {
		j.poly = p
		return nil
	}
	opts := polyapprox.Options{Degree: degree, MaxDegree: s.params.MaxDegree}
	p, xerr := j.approximator(s.target).Approximate(opts)
	if xerr != nil {
		return xerr
	}
	j.poly = p
	if err := s.cache.Put(k, p); err != nil {
		s.logger.Info("cache write failed", "key", k.String(), "err", err)
	}
	return nil
}

// shareDegree recomputes the intervals below the highest degree.
func (s *Splitter) shareDegree(ctx context.Context, jobs []*job) (int, xerrors.XError) {
	d := 0
	for _, j := range jobs {
		d = max(d, j.poly.Degree)
	}
	var low []*job
	for _, j := range jobs {
		if j.poly.Degree < d {
			low = append(low, j)
		}
	}
	if len(low) > 0 {
		s.logger.Debug("raising degree", "degree", d, "intervals", len(low))
	}
	return d, s.each(ctx, low, func(j *job) xerrors.XError {
		return s.approximate(j, d)
	})
}

// shareLSBs re-rounds every interval at the finest LSB of each column.
func (s *Splitter) shareLSBs(ctx context.Context, jobs []*job, degree int) ([]int, xerrors.XError) {
	lsbs := make([]int, degree+1)
	for i := range lsbs {
		set := false
		for _, j := range jobs {
			c := j.poly.Coeffs[i]
			if !c.IsZero() && (!set || c.LSB() < lsbs[i]) {
				lsbs[i], set = c.LSB(), true
			}
		}
		if !set {
			lsbs[i] = jobs[0].poly.Coeffs[i].LSB()
		}
	}

	for retry := 0; retry <= lsbRetries; retry++ {
		var failed atomic.Int32
		xerr := s.each(ctx, jobs, func(j *job) xerrors.XError {
			return s.roundAt(j, lsbs, &failed)
		})
		if xerr != nil {
			return nil, xerr
		}
		if failed.Load() == 0 {
			return lsbs, nil
		}
		s.logger.Debug("shared lsbs too coarse", "lsbs", lsbs, "failed", failed.Load())
		for i := range lsbs {
			lsbs[i]--
		}
	}
	return nil, xerrors.ErrApproximationInfeasible.Wrapf("no shared coefficient lsbs after %d extra bits", lsbRetries)
}

// roundAt re-rounds j.poly at lsbs, counting an infeasible rounding in failed.
func (s *Splitter) roundAt(j *job, lsbs []int, failed *atomic.Int32) xerrors.XError {
	k := s.key(j.iv, len(lsbs)-1)
	k.LSBs = append([]int(nil), lsbs...)
	if p, ok := s.cache.Get(k); ok && p.Degree == len(lsbs)-1 {
		j.poly = p
		return nil
	}
	p, xerr := j.approximator(s.target).RoundAt(lsbs)
	if xerr != nil {
		if xerr.Contains(xerrors.ErrApproximationInfeasible) {
			failed.Add(1)
			return nil
		}
		return xerr
	}
	j.poly = p
	if err := s.cache.Put(k, p); err != nil {
		s.logger.Info("cache write failed", "key", k.String(), "err", err)
	}
	return nil
}

func (s *Splitter) newResult(jobs []*job, alpha, degree int, lsbs []int, varying bool) *Result {
	sort.Slice(jobs, func(a, b int) bool { return jobs[a].iv.Start < jobs[b].iv.Start })
	r := &Result{
		Function:   s.f.Description(),
		SignedIn:   s.f.SignedIn,
		WIn:        s.f.WIn,
		LSBIn:      s.f.LSBIn,
		LSBOut:     s.f.LSBOut,
		Alpha:      alpha,
		Degree:     degree,
		Varying:    varying,
		LSBY:       0,
		Intervals:  make([]Interval, len(jobs)),
		Polys:      make([]*polyapprox.BasicPolyApprox, len(jobs)),
		ColumnLSBs: lsbs,
		Target:     s.target,
	}
	for k, j := range jobs {
		r.Intervals[k], r.Polys[k] = j.iv, j.poly
		r.LSBY = min(r.LSBY, j.iv.LSBY())
	}
	return r
}

// Build approximates f on 2^alpha uniform intervals. A negative degree
// searches the lowest degree that fits every interval.
func (s *Splitter) Build(ctx context.Context, alpha, degree int) (*Result, xerrors.XError) {
	if alpha < 0 || alpha > s.MaxAlpha() {
		return nil, xerrors.ErrInvalidParams.Wrapf("alpha=%d out of [0,%d]", alpha, s.MaxAlpha())
	}
	if degree > s.params.MaxDegree {
		return nil, xerrors.ErrInvalidParams.Wrapf("degree=%d > %d", degree, s.params.MaxDegree)
	}
	jobs := make([]*job, 1<<alpha)
	for i := range jobs {
		jobs[i] = s.newJob(newInterval(s.f.WIn, alpha, int64(i)))
	}

	if xerr := s.each(ctx, jobs, func(j *job) xerrors.XError {
		return s.approximate(j, degree)
	}); xerr != nil {
		return nil, xerr
	}
	d, xerr := s.shareDegree(ctx, jobs)
	if xerr != nil {
		return nil, xerr
	}
	lsbs, xerr := s.shareLSBs(ctx, jobs, d)
	if xerr != nil {
		return nil, xerr
	}
	s.logger.Debug("uniform split", "alpha", alpha, "degree", d, "lsbs", lsbs)
	return s.newResult(jobs, alpha, d, lsbs, false), nil
}
