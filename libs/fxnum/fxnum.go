package fxnum

import (
	"fmt"

	"github.com/robaho/fixed"
	"github.com/shopspring/decimal"
)

// FxNum is a decimal fixed-point number with 7 fractional digits,
// used for cost ratios and percentages in reports.
type FxNum struct {
	fixed.Fixed
}

var (
	ZERO        = FromInt(0)
	PercentBase = FromInt(100)
)

func New(val int64, nexp uint) FxNum {
	return FxNum{fixed.NewI(val, nexp)}
}

func FromInt(val int64) FxNum {
	return New(val, 0)
}

// Ratio returns num/den, or ZERO when den is 0.
func Ratio(num, den int64) FxNum {
	if den == 0 {
		return ZERO
	}
	return FxNum{FromInt(num).Fixed.Div(FromInt(den).Fixed)}
}

// Percent returns 100*part/whole.
func Percent(part, whole int64) FxNum {
	return FxNum{Ratio(part, whole).Fixed.Mul(PercentBase.Fixed)}
}

// Saving returns the percentage saved going from before to after.
func Saving(before, after int64) FxNum {
	return Percent(before-after, before)
}

func (x FxNum) Decimal() (decimal.Decimal, error) {
	if x.IsNaN() {
		return decimal.Decimal{}, fmt.Errorf("cannot convert NaN to decimal")
	}
	return decimal.NewFromString(x.String())
}

// Format renders x with n fractional digits.
func (x FxNum) Format(n int32) string {
	d, err := x.Decimal()
	if err != nil {
		return "NaN"
	}
	return d.StringFixed(n)
}
