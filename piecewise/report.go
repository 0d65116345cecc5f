package piecewise

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var signNames = map[int]string{1: "positive", -1: "negative", 0: "mixed"}

// ColumnSigns returns, per degree, +1 or -1 when every non-zero
// coefficient has that sign, else 0.
func (r *Result) ColumnSigns() []int {
	signs := make([]int, r.Degree+1)
	for i := range signs {
		set := false
		for _, p := range r.Polys {
			c := p.Coeffs[i]
			if c.IsZero() {
				continue
			}
			s := c.Mantissa.Sign()
			if !set {
				signs[i], set = s, true
			} else if signs[i] != s {
				signs[i] = 0
			}
		}
	}
	return signs
}

// MaxApproxError is the worst approximation bound over all intervals.
func (r *Result) MaxApproxError() decimal.Decimal {
	worst := decimal.Zero
	for _, p := range r.Polys {
		d, err := decimal.NewFromString(p.ApproxErrorBound.Text('e', 12))
		if err == nil && d.GreaterThan(worst) {
			worst = d
		}
	}
	return worst
}

// CoefficientReport lists the coefficients of every interval with exact
// decimal values.
func (r *Result) CoefficientReport() string {
	var sb strings.Builder
	kind := "uniform"
	if r.Varying {
		kind = "varying"
	}
	fmt.Fprintf(&sb, "%s split of %s: %d intervals, degree %d, alpha %d\n",
		kind, r.Function, len(r.Intervals), r.Degree, r.Alpha)
	for i, s := range r.ColumnSigns() {
		fmt.Fprintf(&sb, "  a%d: lsb=%d sign=%s\n", i, r.ColumnLSBs[i], signNames[s])
	}
	for k, p := range r.Polys {
		iv := r.Intervals[k]
		fmt.Fprintf(&sb, "interval %d [%d, +2^%d) bound=%s\n", k, iv.Start, iv.Log2Size, p.ApproxErrorBound.Text('e', 6))
		for i, c := range p.Coeffs {
			if p.IsZero[i] {
				fmt.Fprintf(&sb, "  a%d = 0\n", i)
				continue
			}
			fmt.Fprintf(&sb, "  a%d = %s\n", i, c.Decimal().String())
		}
	}
	return sb.String()
}
