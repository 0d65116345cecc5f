package tables

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"github.com/beatoz/fxopgen/libs/fxnum"
)

// DifferentialCompression stores a table as a subsampled table of slice
// minima plus a table of differences:
//
//	original[i] = Subsampling[i >> (DiffIndexSize-SubsamplingIndexSize)] << (OriginalWordSize-SubsamplingWordSize) + Diffs[i]
//
// When no split beats the original cost, Compressed() is false, both word
// sizes are 0 and GetInitialTable returns the original values.
type DifferentialCompression struct {
	SubsamplingIndexSize int            `json:"subsamplingIndexSize"`
	SubsamplingWordSize  int            `json:"subsamplingWordSize"`
	Subsampling          []*uint256.Int `json:"subsampling"`
	DiffIndexSize        int            `json:"diffIndexSize"`
	DiffWordSize         int            `json:"diffWordSize"`
	Diffs                []*uint256.Int `json:"diffs"`
	OriginalWordSize     int            `json:"originalWordSize"`

	OriginalCost    int64 `json:"originalCost"`
	SubsamplingCost int64 `json:"subsamplingCost"`
	DiffCost        int64 `json:"diffCost"`

	original []*uint256.Int
}

func (dc *DifferentialCompression) Compressed() bool {
	return dc.Subsampling != nil
}

// Cost returns the compressed cost, or the original one when uncompressed.
func (dc *DifferentialCompression) Cost() int64 {
	if !dc.Compressed() {
		return dc.OriginalCost
	}
	return dc.SubsamplingCost + dc.DiffCost
}

func (dc *DifferentialCompression) SubsamplingShift() int {
	return dc.OriginalWordSize - dc.SubsamplingWordSize
}

func (dc *DifferentialCompression) SubsamplingStorageSize() int64 {
	return int64(dc.SubsamplingWordSize) << dc.SubsamplingIndexSize
}

func (dc *DifferentialCompression) DiffsStorageSize() int64 {
	return int64(dc.DiffWordSize) << dc.DiffIndexSize
}

// GetInitialTable reconstructs the original table.
func (dc *DifferentialCompression) GetInitialTable() []*uint256.Int {
	if !dc.Compressed() {
		out := make([]*uint256.Int, len(dc.original))
		for i, v := range dc.original {
			out[i] = v.Clone()
		}
		return out
	}
	stride := uint(dc.DiffIndexSize - dc.SubsamplingIndexSize)
	shift := uint(dc.SubsamplingShift())
	out := make([]*uint256.Int, 1<<dc.DiffIndexSize)
	for i := range out {
		v := new(uint256.Int).Lsh(dc.Subsampling[i>>stride], shift)
		out[i] = v.Add(v, dc.Diffs[i])
	}
	return out
}

func (dc *DifferentialCompression) Report() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "  Initial cost is:          %dx2^%d=%d\n", dc.OriginalWordSize, dc.DiffIndexSize, dc.OriginalCost)
	if !dc.Compressed() {
		sb.WriteString("  No compression found")
		return sb.String()
	}
	fmt.Fprintf(&sb, "  Best subsampling cost is: %dx2^%d=%d\n", dc.SubsamplingWordSize, dc.SubsamplingIndexSize, dc.SubsamplingCost)
	fmt.Fprintf(&sb, "  Best diff cost is:        %dx2^%d=%d\n", dc.DiffWordSize, dc.DiffIndexSize, dc.DiffCost)
	fmt.Fprintf(&sb, "  Total compressed cost is: %d        compression ratio: %s %%",
		dc.Cost(), fxnum.Percent(dc.Cost(), dc.OriginalCost).Format(2))
	return sb.String()
}

// minMax is the range of one slice of the table.
type minMax struct {
	min, max *uint256.Int
}

func singletonSlices(values []*uint256.Int) []minMax {
	out := make([]minMax, len(values))
	for i, v := range values {
		out[i] = minMax{min: v, max: v}
	}
	return out
}

// groupSlices merges adjacent slices pairwise and returns the largest
// max-min distance of the merged slices.
func groupSlices(in []minMax) ([]minMax, *uint256.Int) {
	out := make([]minMax, len(in)/2)
	maxDist := new(uint256.Int)
	for i := range out {
		a, b := in[2*i], in[2*i+1]
		lo, hi := a.min, a.max
		if b.min.Lt(lo) {
			lo = b.min
		}
		if b.max.Gt(hi) {
			hi = b.max
		}
		if d := new(uint256.Int).Sub(hi, lo); d.Gt(maxDist) {
			maxDist = d
		}
		out[i] = minMax{min: lo, max: hi}
	}
	return out, maxDist
}

func lowMask(w int) *uint256.Int {
	m := new(uint256.Int).Lsh(uint256.NewInt(1), uint(w))
	return m.Sub(m, uint256.NewInt(1))
}

// findBestSubconfig grows the subsampling word size from wOut-wL (no
// overlap) until every slice fits wL diff bits. It gives up as soon as the
// cost reaches bestCost.
func findBestSubconfig(slices []minMax, wIn, wOut, split, wL int, bestCost int64, cost CostModel) (ok, overlapped bool, estimate int64, wH int) {
	costOf := func(wH int) int64 {
		return cost.TableCost(wIn, wL) + cost.TableCost(wIn-split, wH)
	}
	wH = wOut - wL
	estimate = costOf(wH)
	lowBits := lowMask(wL)
	overflow := new(uint256.Int).Lsh(uint256.NewInt(1), uint(wL))
	for _, s := range slices {
		minLow := new(uint256.Int).And(s.min, lowBits)
		delta := new(uint256.Int).Sub(s.max, s.min)
		withLow := new(uint256.Int).Add(delta, minLow)
		for !withLow.Lt(overflow) {
			overlapped = true
			wH++
			estimate = costOf(wH)
			if estimate >= bestCost {
				return false, overlapped, estimate, wH
			}
			lowBits.Rsh(lowBits, 1)
			minLow.And(s.min, lowBits)
			withLow.Add(delta, minLow)
		}
	}
	return true, overlapped, estimate, wH
}

// compressHighTable drops the low bits of the subsampling words that are
// zero in every slice minimum.
func compressHighTable(slices []minMax, wH, wL int) int {
	highMask := new(uint256.Int).Lsh(lowMask(wH), uint(wL))
	acc := new(uint256.Int)
	for _, s := range slices {
		acc.Or(acc, new(uint256.Int).And(s.min, highMask))
	}
	acc.Rsh(acc, uint(wL))
	zeros := 0
	for zeros < wH && acc.Uint64()&1 == 0 {
		acc.Rsh(acc, 1)
		zeros++
	}
	return wH - zeros
}

func buildCompressedTable(values []*uint256.Int, wOut, split, wH int) ([]*uint256.Int, []*uint256.Int) {
	size := len(values)
	stride := 1 << split
	shiftH := uint(wOut - wH)
	hMask := new(uint256.Int).Lsh(lowMask(wH), shiftH)

	diffs := make([]*uint256.Int, size)
	subs := make([]*uint256.Int, size>>split)
	for si := range subs {
		base := si << split
		m := values[base]
		for i := base + 1; i < base+stride; i++ {
			if values[i].Lt(m) {
				m = values[i]
			}
		}
		high := new(uint256.Int).And(m, hMask)
		subs[si] = new(uint256.Int).Rsh(high, shiftH)
		for i := base; i < base+stride; i++ {
			diffs[i] = new(uint256.Int).Sub(values[i], high)
		}
	}
	return subs, diffs
}

// FindDifferentialCompression searches the split and word sizes of the
// cheapest exact differential compression of values.
func FindDifferentialCompression(values []*uint256.Int, wIn, wOut int, cost CostModel) *DifferentialCompression {
	originalCost := cost.TableCost(wIn, wOut)
	bestCost := originalCost
	bestSplit, bestWH, bestWL := 0, wOut, 0

	slices := singletonSlices(values)
	for s := 1; s < wIn; s++ {
		var maxDist *uint256.Int
		slices, maxDist = groupSlices(slices)
		for wL := maxDist.BitLen(); wL < wOut-1; wL++ {
			ok, overlapped, c, wH := findBestSubconfig(slices, wIn, wOut, s, wL, bestCost, cost)
			if !ok {
				continue
			}
			if !overlapped {
				wH = compressHighTable(slices, wH, wL)
				c = cost.TableCost(wIn-s, wH) + cost.TableCost(wIn, wL)
			}
			if c < bestCost {
				bestSplit, bestWH, bestWL, bestCost = s, wH, wL, c
			}
		}
	}

	if bestSplit == 0 {
		return &DifferentialCompression{
			DiffIndexSize:    wIn,
			OriginalWordSize: wOut,
			OriginalCost:     originalCost,
			original:         values,
		}
	}
	subs, diffs := buildCompressedTable(values, wOut, bestSplit, bestWH)
	return &DifferentialCompression{
		SubsamplingIndexSize: wIn - bestSplit,
		SubsamplingWordSize:  bestWH,
		Subsampling:          subs,
		DiffIndexSize:        wIn,
		DiffWordSize:         bestWL,
		Diffs:                diffs,
		OriginalWordSize:     wOut,
		OriginalCost:         originalCost,
		SubsamplingCost:      cost.TableCost(wIn-bestSplit, bestWH),
		DiffCost:             cost.TableCost(wIn, bestWL),
		original:             values,
	}
}
