package piecewise

import (
	"context"

	"github.com/beatoz/fxopgen/types/xerrors"
)

// BuildVarying splits the domain by dyadic bisection: an interval that has
// no polynomial of the given degree within the target is halved, down to
// MaxAlpha. All resulting polynomials share the degree and column LSBs.
func (s *Splitter) BuildVarying(ctx context.Context, degree int) (*Result, xerrors.XError) {
	if degree < 0 || degree > s.params.MaxDegree {
		return nil, xerrors.ErrInvalidParams.Wrapf("degree=%d out of [0,%d]", degree, s.params.MaxDegree)
	}
	var accepted []*job
	level := []*job{s.newJob(newInterval(s.f.WIn, 0, 0))}
	maxDepth := 0

	for depth := 0; len(level) > 0; depth++ {
		xerr := s.each(ctx, level, func(j *job) xerrors.XError {
			xerr := s.approximate(j, degree)
			if xerr != nil && xerr.Contains(xerrors.ErrApproximationInfeasible) {
				j.failed = true
				return nil
			}
			return xerr
		})
		if xerr != nil {
			return nil, xerr
		}

		var next []*job
		for _, j := range level {
			if !j.failed {
				accepted = append(accepted, j)
				maxDepth = max(maxDepth, depth)
				continue
			}
			if depth >= s.MaxAlpha() {
				return nil, xerrors.ErrApproximationInfeasible.Wrapf("interval [%d,+2^%d) needs a split deeper than %d at degree %d",
					j.iv.Start, j.iv.Log2Size, s.MaxAlpha(), degree)
			}
			l, r := j.iv.children(s.f.WIn)
			next = append(next, s.newJob(l), s.newJob(r))
		}
		if len(next) > 0 {
			s.logger.Debug("bisecting", "depth", depth+1, "intervals", len(next))
		}
		level = next
	}

	lsbs, xerr := s.shareLSBs(ctx, accepted, degree)
	if xerr != nil {
		return nil, xerr
	}
	s.logger.Debug("varying split", "intervals", len(accepted), "maxDepth", maxDepth, "degree", degree, "lsbs", lsbs)
	return s.newResult(accepted, maxDepth, degree, lsbs, true), nil
}
