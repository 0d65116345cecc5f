package multipartite

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
	"golang.org/x/sync/errgroup"

	"github.com/beatoz/fxopgen/fixfunc"
	"github.com/beatoz/fxopgen/libs/mpnum"
	"github.com/beatoz/fxopgen/tables"
	"github.com/beatoz/fxopgen/types"
	"github.com/beatoz/fxopgen/types/xerrors"
)

// Decomposition evaluates f as TIV[A] plus one offset per table, all in
// units of 2^(lsbOut-GuardBits), truncated by GuardBits at the end.
//
// Inputs are taken in offset order u (the sign bit of a signed codeword is
// flipped). A is the top Alpha bits of u. Offset table i is addressed by
// the top Gammai[i] bits of u and by the Betai[i]-bit field of u at bit
// Pi[i]. The top bit of the field selects the half: when it is set, the
// lower bits index the table directly; otherwise they are complemented and
// the one's complement of the entry is added.
type Decomposition struct {
	Function    string     `json:"function"`
	WIn         int        `json:"wIn"`
	WOut        int        `json:"wOut"`
	LSBIn       int        `json:"lsbIn"`
	LSBOut      int        `json:"lsbOut"`
	SignedIn    bool       `json:"signedIn"`
	ScaleOutput bool       `json:"scaleOutput"`
	M           int        `json:"m"`
	Alpha       int        `json:"alpha"`
	Beta        int        `json:"beta"`
	Gammai      []int      `json:"gammai"`
	Betai       []int      `json:"betai"`
	Pi          []int      `json:"pi"`
	GuardBits   int        `json:"guardBits"`
	Slack       SlackLevel `json:"slack"`
	MathError   float64    `json:"mathError"`

	TIV      []int64   `json:"tiv"`
	WidthTIV int       `json:"widthTiv"`
	TOi      [][]int64 `json:"toi"`
	// WidthTOi is the stored width of each offset table. SignTOi is +1 when
	// its entries are stored as is, -1 when negated and 0 when stored in
	// two's complement.
	WidthTOi  []int   `json:"widthToi"`
	SignTOi   []int   `json:"signToi"`
	SizeTIV   int64   `json:"sizeTiv"`
	SizeTOi   []int64 `json:"sizeToi"`
	TotalSize int64   `json:"totalSize"`

	CompressedTIV *tables.DifferentialCompression `json:"compressedTiv,omitempty"`

	f      *fixfunc.Function
	target types.TargetParams
}

func (d *Decomposer) evalPrec(c *candidate) uint {
	return uint(2*(d.f.WIn+d.f.WOut+c.GuardBits) + 64)
}

// point returns the real input at the offset-order position num/2^den.
func (d *Decomposer) point(num *big.Int, den int, prec uint) *big.Float {
	x := mpnum.FromInt(num, prec)
	x.SetMantExp(x, d.f.LSBIn-den)
	if d.f.SignedIn {
		x.Sub(x, mpnum.FromInt64(1, prec))
	}
	return x
}

func (d *Decomposer) evalAt(num *big.Int, den int, prec uint) (*big.Float, xerrors.XError) {
	return d.f.Eval(d.point(num, den, prec), prec)
}

func (d *Decomposer) evalAtInt(u int64, prec uint) (*big.Float, xerrors.XError) {
	return d.evalAt(big.NewInt(u), 0, prec)
}

// parallel runs fn on 0..n-1 in chunks.
func (d *Decomposer) parallel(ctx context.Context, n int64, fn func(k int64) xerrors.XError) xerrors.XError {
	chunks := int64(max(d.workers*4, 1))
	chunk := (n + chunks - 1) / chunks
	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(d.workers)
	for c := int64(0); c < chunks; c++ {
		c := c
		eg.Go(func() error {
			for k := c * chunk; k < min((c+1)*chunk, n); k++ {
				if k%256 == 0 && ectx.Err() != nil {
					return ectx.Err()
				}
				if xerr := fn(k); xerr != nil {
					return xerr
				}
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return xerrors.Cast(err)
	}
	return nil
}

// build fills the tables of c at high precision.
func (d *Decomposer) build(ctx context.Context, c *candidate, slack SlackLevel) (*Decomposition, xerrors.XError) {
	f := d.f
	prec := d.evalPrec(c)
	scale := c.GuardBits - f.LSBOut

	dec := &Decomposition{
		Function:    f.Description(),
		WIn:         f.WIn,
		WOut:        f.WOut,
		LSBIn:       f.LSBIn,
		LSBOut:      f.LSBOut,
		SignedIn:    f.SignedIn,
		ScaleOutput: d.opts.ScaleOutput,
		M:           c.M,
		Alpha:       c.Alpha,
		Beta:        c.Beta,
		Gammai:      c.Gammai,
		Betai:       c.Betai,
		Pi:          c.Pi,
		GuardBits:   c.GuardBits,
		Slack:       slack,
		MathError:   c.MathError,
		TIV:         make([]int64, 1<<c.Alpha),
		TOi:         make([][]int64, c.M),
		f:           f,
		target:      d.opts.Target,
	}

	// the offsets carry a bias of -1/2 each, the final truncation needs +1/2
	bias := mpnum.FromInt64(int64(c.M), prec)
	bias.SetMantExp(bias, -1)
	bias.Add(bias, mpnum.Pow2(c.GuardBits-1, prec))

	width := int64(1)<<c.Beta - 1
	if xerr := d.parallel(ctx, int64(len(dec.TIV)), func(a int64) xerrors.XError {
		start := a << c.Beta
		lo, xerr := d.evalAtInt(start, prec)
		if xerr != nil {
			return xerr
		}
		hi, xerr := d.evalAtInt(start+width, prec)
		if xerr != nil {
			return xerr
		}
		// center (2*start + width)/2
		num := big.NewInt(2*start + width)
		mid, xerr := d.evalAt(num, 1, prec)
		if xerr != nil {
			return xerr
		}
		// shift by a quarter of the second difference to center the error
		q := new(big.Float).SetPrec(prec).Add(lo, hi)
		q.Sub(q, new(big.Float).SetPrec(prec).SetMantExp(mid, 1))
		q.SetMantExp(q, -2)
		v := q.Add(q, mid)
		v.SetMantExp(v, scale)
		v.Add(v, bias)
		dec.TIV[a] = mpnum.RoundNearest(v).Int64()
		return nil
	}); xerr != nil {
		return nil, xerr
	}

	for i := 0; i < c.M; i++ {
		tbl, xerr := d.buildOffsets(ctx, c, i, prec, scale)
		if xerr != nil {
			return nil, xerr
		}
		dec.TOi[i] = tbl
	}
	if xerr := dec.measure(d.opts.CompressTIV); xerr != nil {
		return nil, xerr
	}
	return dec, nil
}

// buildOffsets tabulates floor(s*mu) of table i for the upper half of its
// field, s being the mean of the secant slopes at both ends of the slope
// cell and mu the offset of the field from its center.
func (d *Decomposer) buildOffsets(ctx context.Context, c *candidate, i int, prec uint, scale int) ([]int64, xerrors.XError) {
	wIn := d.f.WIn
	gamma, beta, p := c.Gammai[i], c.Betai[i], c.Pi[i]
	half := int64(1) << (beta - 1)
	delta := (int64(1)<<beta - 1) << p
	cell := int64(1) << (wIn - gamma)
	tbl := make([]int64, int64(1)<<(gamma+beta-1))

	xerr := d.parallel(ctx, int64(1)<<gamma, func(a int64) xerrors.XError {
		xl := a * cell
		xr := (a+1)*cell - int64(1)<<(p+beta)
		var vals [4]*big.Float
		for k, u := range []int64{xl, xl + delta, xr, xr + delta} {
			v, xerr := d.evalAtInt(u, prec)
			if xerr != nil {
				return xerr
			}
			vals[k] = v
		}
		s := new(big.Float).SetPrec(prec).Sub(vals[1], vals[0])
		s.Add(s, vals[3])
		s.Sub(s, vals[2])
		s.Quo(s, mpnum.FromInt64(2*delta, prec))

		for j := int64(0); j < half; j++ {
			// mu = (half+j)*2^p - delta/2, doubled to stay integral
			mu2 := ((half+j)<<p)*2 - delta
			v := new(big.Float).SetPrec(prec).Mul(s, mpnum.FromInt64(mu2, prec))
			v.SetMantExp(v, scale-1)
			tbl[a*half+j] = mpnum.Floor(v).Int64()
		}
		return nil
	})
	if xerr != nil {
		return nil, xerr
	}
	return tbl, nil
}

// measure sets the stored widths, signs and sizes from the table contents.
func (dec *Decomposition) measure(compress bool) xerrors.XError {
	var maxTIV int64
	for _, v := range dec.TIV {
		if v < 0 {
			return xerrors.ErrNegativeOutput.Wrapf("initial value %d", v)
		}
		maxTIV = max(maxTIV, v)
	}
	dec.WidthTIV = max(1, bitLen(maxTIV))
	dec.SizeTIV = tables.RawBitCost{}.TableCost(dec.Alpha, dec.WidthTIV)
	dec.TotalSize = dec.SizeTIV

	dec.WidthTOi = make([]int, dec.M)
	dec.SignTOi = make([]int, dec.M)
	dec.SizeTOi = make([]int64, dec.M)
	for i, tbl := range dec.TOi {
		var lo, hi int64
		for _, v := range tbl {
			lo, hi = min(lo, v), max(hi, v)
		}
		switch {
		case lo >= 0:
			dec.SignTOi[i], dec.WidthTOi[i] = 1, max(1, bitLen(hi))
		case hi <= 0:
			dec.SignTOi[i], dec.WidthTOi[i] = -1, max(1, bitLen(-lo))
		default:
			dec.SignTOi[i], dec.WidthTOi[i] = 0, max(bitLen(hi), bitLen(-lo-1))+1
		}
		dec.SizeTOi[i] = tables.RawBitCost{}.TableCost(dec.Gammai[i]+dec.Betai[i]-1, dec.WidthTOi[i])
		dec.TotalSize += dec.SizeTOi[i]
	}

	if compress {
		tiv, xerr := dec.TIVTable()
		if xerr != nil {
			return xerr
		}
		dec.CompressedTIV = tiv.Compress(tables.TargetCost{Params: dec.target})
	}
	return nil
}

func bitLen(v int64) int {
	return big.NewInt(v).BitLen()
}

// TIVTable returns the initial values as an unsigned table.
func (dec *Decomposition) TIVTable() (*tables.Table, xerrors.XError) {
	vals := make([]*uint256.Int, len(dec.TIV))
	for a, v := range dec.TIV {
		vals[a] = uint256.NewInt(uint64(v))
	}
	return tables.NewTable(vals, dec.Alpha, dec.WidthTIV)
}

// TOTable returns the stored words of offset table i.
func (dec *Decomposition) TOTable(i int) (*tables.Table, xerrors.XError) {
	w := dec.WidthTOi[i]
	mask := types.Mask[uint64](w)
	vals := make([]*uint256.Int, len(dec.TOi[i]))
	for k, v := range dec.TOi[i] {
		if dec.SignTOi[i] < 0 {
			v = -v
		}
		vals[k] = uint256.NewInt(uint64(v) & mask)
	}
	return tables.NewTable(vals, dec.Gammai[i]+dec.Betai[i]-1, w)
}

// Cost prices the tables with the target model, the TIV compressed when
// that was requested and pays.
func (dec *Decomposition) Cost() int64 {
	cost := tables.TargetCost{Params: dec.target}
	var total int64
	if dec.CompressedTIV != nil {
		total = dec.CompressedTIV.Cost()
	} else {
		total = cost.TableCost(dec.Alpha, dec.WidthTIV)
	}
	for i := range dec.TOi {
		total += cost.TableCost(dec.Gammai[i]+dec.Betai[i]-1, dec.WidthTOi[i])
	}
	return total
}

func (dec *Decomposition) offsetOrder(x int64) int64 {
	if dec.SignedIn {
		return x ^ int64(1)<<(dec.WIn-1)
	}
	return x
}

// offset returns the contribution of table i at position u.
func (dec *Decomposition) offset(i int, u int64) int64 {
	beta := dec.Betai[i]
	mask := int64(1)<<(beta-1) - 1
	a := u >> (dec.WIn - dec.Gammai[i])
	b := (u >> dec.Pi[i]) & (int64(1)<<beta - 1)
	upper := b>>(beta-1) == 1
	j := b & mask
	if !upper {
		j ^= mask
	}
	t := dec.TOi[i][a<<(beta-1)|j]
	if upper {
		return t
	}
	return -t - 1
}

// Full returns the sum before the final truncation.
func (dec *Decomposition) Full(x int64) int64 {
	u := dec.offsetOrder(x)
	y := dec.TIV[u>>dec.Beta]
	for i := range dec.TOi {
		y += dec.offset(i, u)
	}
	return y
}

// Eval emulates the datapath on input codeword x. The result is in units
// of 2^lsbOut.
func (dec *Decomposition) Eval(x int64) int64 {
	return dec.Full(x) >> dec.GuardBits
}

// ExhaustiveTest checks Eval against the faithful roundings of every input.
func (dec *Decomposition) ExhaustiveTest(ctx context.Context) (fixfunc.Validation, xerrors.XError) {
	return dec.f.Validate(ctx, func(x int64) (int64, xerrors.XError) {
		return dec.Eval(x), nil
	})
}

func (dec *Decomposition) Description() string {
	return fmt.Sprintf("m=%d alpha=%d beta=%d gammai=%v betai=%v pi=%v guardBits=%d (%s) mathError=%.3e totalSize=%d",
		dec.M, dec.Alpha, dec.Beta, dec.Gammai, dec.Betai, dec.Pi, dec.GuardBits, dec.Slack.String(), dec.MathError, dec.TotalSize)
}

// TableDump lists the table outputs for every input codeword.
func (dec *Decomposition) TableDump() string {
	var sb strings.Builder
	sb.WriteString("x\ttiv")
	for i := dec.M - 1; i >= 0; i-- {
		fmt.Fprintf(&sb, "\tto%d", i)
	}
	sb.WriteString("\tyfull\ty\n")
	for x := int64(0); x < int64(1)<<dec.WIn; x++ {
		u := dec.offsetOrder(x)
		fmt.Fprintf(&sb, "%d\t%d", x, dec.TIV[u>>dec.Beta])
		for i := dec.M - 1; i >= 0; i-- {
			fmt.Fprintf(&sb, "\t%d", dec.offset(i, u))
		}
		full := dec.Full(x)
		fmt.Fprintf(&sb, "\t%d\t%d\n", full, full>>dec.GuardBits)
	}
	return sb.String()
}
