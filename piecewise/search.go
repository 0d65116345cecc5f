package piecewise

import (
	"context"

	"github.com/beatoz/fxopgen/horner"
	"github.com/beatoz/fxopgen/tables"
	"github.com/beatoz/fxopgen/types/xerrors"
)

// Candidate is a feasible split with its Horner datapath and cost.
type Candidate struct {
	Result   *Result           `json:"result"`
	Schedule *horner.Schedule  `json:"schedule"`
	Table    *CoefficientTable `json:"table"`
	Cost     int64             `json:"cost"`
}

// Schedule builds the Horner datapath shared by all intervals of r.
func (s *Splitter) Schedule(r *Result) (*horner.Schedule, xerrors.XError) {
	b := horner.NewBuilder(horner.Params{
		LSBIn:                  r.LSBY,
		LSBOut:                 r.LSBOut,
		MaxGuardBits:           s.params.MaxGuardBits,
		HasFaithfulMultiplyAdd: s.params.Target.HasFaithfulMultiplyAdd,
	}, s.logger)
	return b.Build(r.Polys)
}

// Cost is the coefficient table cost plus the multiplier bits. Targets with
// a faithful multiply-add get multipliers at half weight.
func (s *Splitter) Cost(tbl *CoefficientTable, sch *horner.Schedule) int64 {
	cost := tbl.Cost(tables.TargetCost{Params: s.params.Target})
	mult := sch.MultiplierBits()
	if s.params.Target.HasFaithfulMultiplyAdd {
		mult /= 2
	}
	return cost + mult
}

// Candidate completes r with its schedule, table and cost.
func (s *Splitter) Candidate(r *Result) (*Candidate, xerrors.XError) {
	sch, xerr := s.Schedule(r)
	if xerr != nil {
		return nil, xerr
	}
	tbl, xerr := NewCoefficientTable(r)
	if xerr != nil {
		return nil, xerr
	}
	return &Candidate{Result: r, Schedule: sch, Table: tbl, Cost: s.Cost(tbl, sch)}, nil
}

func infeasible(xerr xerrors.XError) bool {
	return xerr.Contains(xerrors.ErrApproximationInfeasible) ||
		xerr.Contains(xerrors.ErrErrorBudgetInfeasible) ||
		xerr.Contains(xerrors.ErrRange)
}

// Search returns the cheapest uniform split over degrees 1..maxDegree, each
// at its smallest feasible alpha. Ties go to the lower degree.
func (s *Splitter) Search(ctx context.Context, maxDegree int) (*Candidate, xerrors.XError) {
	if maxDegree <= 0 {
		maxDegree = s.params.MaxDegree
	}
	var best *Candidate
	maxAlpha := s.MaxAlpha()
	for d := 1; d <= maxDegree; d++ {
		var found *Candidate
		// a higher degree never needs a deeper split
		for alpha := 0; alpha <= maxAlpha; alpha++ {
			r, xerr := s.Build(ctx, alpha, d)
			if xerr == nil {
				c, xerr2 := s.Candidate(r)
				if xerr2 == nil {
					found = c
					break
				}
				xerr = xerr2
			}
			if !infeasible(xerr) {
				return nil, xerr
			}
			s.logger.Debug("infeasible", "alpha", alpha, "degree", d, "err", xerr.Error())
		}
		if found == nil {
			continue
		}
		s.logger.Debug("candidate", "alpha", found.Result.Alpha, "degree", d, "cost", found.Cost)
		if best == nil || found.Cost < best.Cost {
			best = found
		}
		maxAlpha = found.Result.Alpha
		if maxAlpha == 0 {
			break
		}
	}
	if best == nil {
		return nil, xerrors.ErrApproximationInfeasible.Wrapf("%s: no split up to alpha %d and degree %d",
			s.f.Description(), s.MaxAlpha(), maxDegree)
	}
	s.logger.Info("piecewise search", "alpha", best.Result.Alpha, "degree", best.Result.Degree, "cost", best.Cost)
	return best, nil
}
