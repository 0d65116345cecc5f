package operator

import (
	"fmt"
	"math"
	"math/big"
	"sort"
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/beatoz/fxopgen/libs/fxnum"
	"github.com/beatoz/fxopgen/libs/jsonx"
	"github.com/beatoz/fxopgen/piecewise"
	"github.com/beatoz/fxopgen/tables"
	"github.com/beatoz/fxopgen/types/xerrors"
)

func decimalOf(x *big.Float) decimal.Decimal {
	if x == nil || x.IsInf() {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(x.Text('e', 12))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Report renders the numeric results of res as text.
func Report(res *Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: input %s, output %s\n", res.Function, res.Input, res.Output)
	fmt.Fprintf(&sb, "method %s, cost %d\n", res.Method, res.Cost)
	if res.RoundingOverflow {
		sb.WriteString("rounding may reach 2^(msbOut+1): output msb widened\n")
	}
	switch {
	case res.Table != nil:
		tableReport(&sb, res.Table)
	case res.Poly != nil:
		polyReport(&sb, res)
	case res.Multipartite != nil:
		multipartiteReport(&sb, res)
	}
	if v := res.Validation; v != nil {
		status := "faithful"
		if !v.OK() {
			status = fmt.Sprintf("FAILED, first violation at x=%d", v.FirstViolation)
		}
		fmt.Fprintf(&sb, "exhaustive check: %s (%s)\n", v.String(), status)
	}
	if len(res.CacheFingerprint) > 0 {
		fmt.Fprintf(&sb, "cache fingerprint: %s\n", res.CacheFingerprint.String())
	}
	return sb.String()
}

func tableReport(sb *strings.Builder, tr *TableResult) {
	t := tr.Table
	fmt.Fprintf(sb, "plain table: 2^%d words of %d bits, %d bits\n", t.WIn, t.WOut, t.Cost(tables.RawBitCost{}))
	if dc := tr.Compression; dc != nil {
		sb.WriteString("differential compression:\n")
		sb.WriteString(dc.Report())
		sb.WriteString("\n")
		if dc.Compressed() {
			fmt.Fprintf(sb, "  saving: %s %%\n", fxnum.Saving(dc.OriginalCost, dc.Cost()).Format(2))
		}
	}
}

func polyReport(sb *strings.Builder, res *Result) {
	c := res.Poly
	r := c.Result
	kind := "uniform"
	if r.Varying {
		kind = "varying"
	}
	fmt.Fprintf(sb, "%s split: %d interval(s), degree %d, alpha %d, lsbY %d\n", kind, len(r.Intervals), r.Degree, r.Alpha, r.LSBY)
	if r.Varying {
		sizes := lo.CountValuesBy(r.Intervals, func(iv piecewise.Interval) int { return iv.Log2Size })
		keys := lo.Keys(sizes)
		sort.Sort(sort.Reverse(sort.IntSlice(keys)))
		parts := lo.Map(keys, func(s int, _ int) string { return fmt.Sprintf("%dx2^%d", sizes[s], s) })
		fmt.Fprintf(sb, "  interval sizes: %s\n", strings.Join(parts, " "))
	}

	sch := c.Schedule
	sb.WriteString(sch.Report())
	sb.WriteString("\n")

	budget := decimal.NewFromFloat(math.Ldexp(1, res.Output.LSB))
	fmt.Fprintf(sb, "approximation error: achieved %s, target %s\n",
		r.MaxApproxError().String(), decimalOf(r.Target).String())
	total := decimalOf(sch.TotalError)
	fmt.Fprintf(sb, "total error: %s of %s (%s %%)\n", total.String(), budget.String(),
		total.Div(budget).Mul(decimal.NewFromInt(100)).StringFixed(2))

	used := lo.Filter(c.Table.Columns, func(col piecewise.Column, _ int) bool { return col.Width > 0 })
	cols := lo.Map(used, func(col piecewise.Column, _ int) string {
		return fmt.Sprintf("a%d:%d@%d", col.Degree, col.Width, col.LSB)
	})
	width := lo.SumBy(used, func(col piecewise.Column) int { return col.Width })
	fmt.Fprintf(sb, "coefficient table: %d rows of %d bits [%s]\n", c.Table.Rows, width, strings.Join(cols, " "))

	tableCost := c.Table.Cost(tables.TargetCost{Params: res.Target})
	fmt.Fprintf(sb, "multiplier bits: %d, table share of cost: %s %%\n",
		sch.MultiplierBits(), fxnum.Percent(tableCost, c.Cost).Format(2))
}

func multipartiteReport(sb *strings.Builder, res *Result) {
	dec := res.Multipartite
	fmt.Fprintf(sb, "multipartite: %s\n", dec.Description())
	if dec.ScaleOutput {
		sb.WriteString("  output scaled by (1-2^lsbOut)\n")
	}
	fmt.Fprintf(sb, "  TIV: 2^%d x %d bits = %d\n", dec.Alpha, dec.WidthTIV, dec.SizeTIV)
	for i := dec.M - 1; i >= 0; i-- {
		sign := map[int]string{1: "", -1: " negated", 0: " two's complement"}[dec.SignTOi[i]]
		fmt.Fprintf(sb, "  TO%d: 2^%d x %d bits = %d%s\n", i, dec.Gammai[i]+dec.Betai[i]-1, dec.WidthTOi[i], dec.SizeTOi[i], sign)
	}
	plain := tables.RawBitCost{}.TableCost(dec.WIn, dec.WOut)
	fmt.Fprintf(sb, "  total %d bits, %s %% smaller than a plain table\n", dec.TotalSize, fxnum.Saving(plain, dec.TotalSize).Format(2))

	epsT := decimal.NewFromFloat(math.Ldexp(1, dec.LSBOut-1))
	mathErr := decimal.NewFromFloat(dec.MathError)
	fmt.Fprintf(sb, "  math error %s of %s (%s %%)\n", mathErr.StringFixed(int32(2-dec.LSBOut)), epsT.String(),
		mathErr.Div(epsT).Mul(decimal.NewFromInt(100)).StringFixed(2))
	if dc := dec.CompressedTIV; dc != nil {
		sb.WriteString("  TIV compression:\n")
		sb.WriteString(dc.Report())
		sb.WriteString("\n")
	}
}

// MarshalResult encodes res as indented JSON.
func MarshalResult(res *Result) ([]byte, xerrors.XError) {
	bz, err := jsonx.MarshalIndent(res, "", "  ")
	if err != nil {
		return nil, xerrors.ErrCommon.Wrap(err)
	}
	return bz, nil
}
