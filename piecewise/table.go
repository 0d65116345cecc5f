package piecewise

import (
	"math/big"

	"github.com/holiman/uint256"

	"github.com/beatoz/fxopgen/tables"
	"github.com/beatoz/fxopgen/types"
	"github.com/beatoz/fxopgen/types/xerrors"
)

// Column is the placement of one coefficient degree in a table row.
// Mantissas are stored in two's complement at LSB.
type Column struct {
	Degree int `json:"degree"`
	LSB    int `json:"lsb"`
	Width  int `json:"width"`
	Offset int `json:"offset"`
	// Sign is +1 or -1 when every coefficient of the column has that sign, else 0.
	Sign int `json:"sign"`
}

// CoefficientTable holds one row per interval, padded to a power of two.
type CoefficientTable struct {
	*tables.Table
	Columns []Column `json:"columns"`
	Rows    int      `json:"rows"`
}

// signedWidth is the two's complement width of m.
func signedWidth(m *big.Int) int {
	if m.Sign() < 0 {
		return new(big.Int).Not(m).BitLen() + 1
	}
	return m.BitLen() + 1
}

// NewCoefficientTable packs the coefficients of r. All-zero columns take
// no bits.
func NewCoefficientTable(r *Result) (*CoefficientTable, xerrors.XError) {
	ct := &CoefficientTable{Rows: len(r.Polys)}
	offset := 0
	for i := 0; i <= r.Degree; i++ {
		col := Column{Degree: i, LSB: r.ColumnLSBs[i]}
		neg, pos, used := false, false, false
		for _, p := range r.Polys {
			c := p.Coeffs[i]
			if c.IsZero() {
				continue
			}
			used = true
			m := c.MantissaAt(col.LSB)
			col.Width = max(col.Width, signedWidth(m))
			if m.Sign() < 0 {
				neg = true
			} else {
				pos = true
			}
		}
		if !used {
			continue
		}
		switch {
		case pos && !neg:
			col.Sign = 1
		case neg && !pos:
			col.Sign = -1
		}
		col.Offset = offset
		offset += col.Width
		ct.Columns = append(ct.Columns, col)
	}
	if offset > 256 {
		return nil, xerrors.ErrRange.Wrapf("coefficient row of %d bits exceeds 256", offset)
	}

	wIn := types.CeilLog2(len(r.Polys))
	values := make([]*uint256.Int, 1<<wIn)
	for k := range values {
		values[k] = new(uint256.Int)
		if k >= len(r.Polys) {
			continue
		}
		row := new(big.Int)
		for _, col := range ct.Columns {
			m := r.Polys[k].Coeffs[col.Degree].MantissaAt(col.LSB)
			m.And(m, new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), uint(col.Width)), big.NewInt(1)))
			row.Or(row, m.Lsh(m, uint(col.Offset)))
		}
		values[k].SetFromBig(row)
	}
	tbl, xerr := tables.NewTable(values, wIn, offset)
	if xerr != nil {
		return nil, xerr
	}
	ct.Table = tbl
	return ct, nil
}

// Coeff decodes the mantissa of column c in row k.
func (ct *CoefficientTable) Coeff(k int, c Column) *big.Int {
	v := new(uint256.Int).Rsh(ct.Get(k), uint(c.Offset))
	v.And(v, new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), uint(c.Width)), uint256.NewInt(1)))
	m := v.ToBig()
	if c.Width > 0 && m.Bit(c.Width-1) == 1 {
		m.Sub(m, new(big.Int).Lsh(big.NewInt(1), uint(c.Width)))
	}
	return m
}
