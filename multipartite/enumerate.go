package multipartite

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// compositions lists the ordered ways to write sum as m parts of at least
// 2 bits, and at most maxPart bits when maxPart > 0.
func compositions(sum, m, maxPart int) [][]int {
	if m == 1 {
		if sum < 2 || (maxPart > 0 && sum > maxPart) {
			return nil
		}
		return [][]int{{sum}}
	}
	var res [][]int
	for first := 2; first <= sum-2*(m-1); first++ {
		if maxPart > 0 && first > maxPart {
			break
		}
		for _, rest := range compositions(sum-first, m-1, maxPart) {
			res = append(res, append([]int{first}, rest...))
		}
	}
	return res
}

// positions returns the bit position of every field, field 0 being the
// least significant.
func positions(betai []int) []int {
	pi := make([]int, len(betai))
	for i := 1; i < len(betai); i++ {
		pi[i] = pi[i-1] + betai[i-1]
	}
	return pi
}

// eachGamma calls fn on every vector with mins[i] <= gammai[i] <= alpha.
// fn must not retain its argument.
func eachGamma(mins []int, alpha int, fn func(gammai []int)) {
	for _, g := range mins {
		if g > alpha {
			return
		}
	}
	gammai := slices.Clone(mins)
	for {
		fn(gammai)
		i := 0
		for ; i < len(gammai); i++ {
			if gammai[i] < alpha {
				gammai[i]++
				break
			}
			gammai[i] = mins[i]
		}
		if i == len(gammai) {
			return
		}
	}
}

// candidate is a decomposition before its tables are built.
type candidate struct {
	M         int
	Alpha     int
	Beta      int
	Gammai    []int
	Betai     []int
	Pi        []int
	MathError float64
	GuardBits int
	WidthTIV  int
	WidthTOi  []int
	TotalSize int64
}

func (c *candidate) String() string {
	return fmt.Sprintf("m=%d alpha=%d beta=%d gammai=%v betai=%v pi=%v guardBits=%d mathError=%.3e totalSize=%d",
		c.M, c.Alpha, c.Beta, c.Gammai, c.Betai, c.Pi, c.GuardBits, c.MathError, c.TotalSize)
}

// less orders candidates by size, then by table count, then by the split.
func less(a, b *candidate) bool {
	if a.TotalSize != b.TotalSize {
		return a.TotalSize < b.TotalSize
	}
	if a.M != b.M {
		return a.M < b.M
	}
	if a.Alpha != b.Alpha {
		return a.Alpha < b.Alpha
	}
	if c := slices.Compare(a.Betai, b.Betai); c != 0 {
		return c < 0
	}
	return slices.Compare(a.Gammai, b.Gammai) < 0
}

// ranking keeps the best candidates in increasing order.
type ranking struct {
	size  int
	items []*candidate
}

func newRanking(size int) *ranking {
	return &ranking{size: size}
}

// admits reports whether a candidate of totalSize could enter the ranking.
func (r *ranking) admits(totalSize int64) bool {
	return len(r.items) < r.size || totalSize <= r.items[len(r.items)-1].TotalSize
}

func (r *ranking) insert(c *candidate) {
	i, _ := slices.BinarySearchFunc(r.items, c, func(e, t *candidate) int {
		switch {
		case less(e, t):
			return -1
		case less(t, e):
			return 1
		}
		return 0
	})
	if i >= r.size {
		return
	}
	r.items = slices.Insert(r.items, i, c)
	if len(r.items) > r.size {
		r.items = r.items[:r.size]
	}
}

func (r *ranking) merge(o *ranking) {
	for _, c := range o.items {
		r.insert(c)
	}
}
