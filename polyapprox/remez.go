package polyapprox

import (
	"math/big"

	"github.com/beatoz/fxopgen/libs/expr"
	"github.com/beatoz/fxopgen/libs/mpnum"
	"github.com/beatoz/fxopgen/types/xerrors"
)

const (
	remezMaxIterations = 10
	remezTolerance     = 0.05
	gridDensity        = 32
)

// grid is a Chebyshev grid of [-1,1] with the values of g at every point.
type grid struct {
	ys []*big.Float
	gs []*big.Float
}

func newGrid(g *expr.Function, degree int, prec uint) (*grid, xerrors.XError) {
	n := gridDensity*(degree+2) + 1
	gr := &grid{ys: make([]*big.Float, n), gs: make([]*big.Float, n)}
	pi := mpnum.Pi(prec)
	for k := 0; k < n; k++ {
		var y *big.Float
		switch k {
		case 0:
			y = mpnum.FromInt64(-1, prec)
		case n - 1:
			y = mpnum.FromInt64(1, prec)
		default:
			t := new(big.Float).SetPrec(prec).Mul(pi, mpnum.FromInt64(int64(k), prec))
			t.Quo(t, mpnum.FromInt64(int64(n-1), prec))
			y = mpnum.Cos(t, prec)
			y.Neg(y)
		}
		v, xerr := g.Eval(y, prec)
		if xerr != nil {
			return nil, xerrors.ErrApproximationInfeasible.Wrapf("%s at %s: %v", g.String(), y.Text('g', 10), xerr)
		}
		gr.ys[k], gr.gs[k] = y, v
	}
	return gr, nil
}

func (gr *grid) errors(cs []*big.Float, prec uint) []*big.Float {
	es := make([]*big.Float, len(gr.ys))
	for k, y := range gr.ys {
		es[k] = new(big.Float).SetPrec(prec).Sub(gr.gs[k], hornerBig(cs, y, prec))
	}
	return es
}

func maxAbs(es []*big.Float) *big.Float {
	m := new(big.Float)
	for _, e := range es {
		if a := new(big.Float).Abs(e); a.Cmp(m) > 0 {
			m = a
		}
	}
	return m
}

// remez returns near-minimax coefficients of the given degree and the
// largest error over the grid.
func remez(gr *grid, degree int, prec uint) ([]*big.Float, *big.Float, xerrors.XError) {
	n := degree + 2
	last := len(gr.ys) - 1
	ref := make([]int, n)
	for j := 0; j < n; j++ {
		ref[j] = (j*last + (n-1)/2) / (n - 1)
	}

	var (
		cs []*big.Float
		es []*big.Float
	)
	for it := 0; it < remezMaxIterations; it++ {
		var xerr xerrors.XError
		cs, xerr = solveReference(gr, ref, degree, prec)
		if xerr != nil {
			return nil, nil, xerr
		}
		es = gr.errors(cs, prec)

		next := alternatingExtrema(es, n)
		if len(next) < n {
			// g is (nearly) a polynomial of this degree
			break
		}
		ref = next
		if equioscillates(es, ref) {
			break
		}
	}
	return cs, maxAbs(es), nil
}

// solveReference solves sum_i c_i y_j^i + (-1)^j E = g(y_j) on the reference.
func solveReference(gr *grid, ref []int, degree int, prec uint) ([]*big.Float, xerrors.XError) {
	n := degree + 2
	a := make([][]*big.Float, n)
	for j, k := range ref {
		row := make([]*big.Float, n+1)
		p := mpnum.FromInt64(1, prec)
		for i := 0; i <= degree; i++ {
			row[i] = new(big.Float).SetPrec(prec).Set(p)
			p.Mul(p, gr.ys[k])
		}
		if j%2 == 0 {
			row[n-1] = mpnum.FromInt64(1, prec)
		} else {
			row[n-1] = mpnum.FromInt64(-1, prec)
		}
		row[n] = new(big.Float).SetPrec(prec).Set(gr.gs[k])
		a[j] = row
	}
	x, xerr := gaussSolve(a, prec)
	if xerr != nil {
		return nil, xerr
	}
	return x[:degree+1], nil
}

// gaussSolve solves the augmented system a with partial pivoting.
func gaussSolve(a [][]*big.Float, prec uint) ([]*big.Float, xerrors.XError) {
	n := len(a)
	for col := 0; col < n; col++ {
		piv := col
		for r := col + 1; r < n; r++ {
			if new(big.Float).Abs(a[r][col]).Cmp(new(big.Float).Abs(a[piv][col])) > 0 {
				piv = r
			}
		}
		if a[piv][col].Sign() == 0 {
			return nil, xerrors.ErrApproximationInfeasible.Wrapf("singular Remez system")
		}
		a[col], a[piv] = a[piv], a[col]
		for r := col + 1; r < n; r++ {
			f := new(big.Float).SetPrec(prec).Quo(a[r][col], a[col][col])
			for c := col; c <= n; c++ {
				t := new(big.Float).SetPrec(prec).Mul(f, a[col][c])
				a[r][c] = new(big.Float).SetPrec(prec).Sub(a[r][c], t)
			}
		}
	}
	x := make([]*big.Float, n)
	for r := n - 1; r >= 0; r-- {
		s := new(big.Float).SetPrec(prec).Set(a[r][n])
		for c := r + 1; c < n; c++ {
			s.Sub(s, new(big.Float).SetPrec(prec).Mul(a[r][c], x[c]))
		}
		x[r] = s.Quo(s, a[r][r])
	}
	return x, nil
}

// alternatingExtrema picks, in every run of constant error sign, the point
// of largest |e|, then trims the list to want alternating points.
func alternatingExtrema(es []*big.Float, want int) []int {
	var ext []int
	sign := 0
	for k, e := range es {
		s := e.Sign()
		if s == 0 {
			s = sign
		}
		if len(ext) == 0 || s != sign {
			ext = append(ext, k)
			sign = s
			continue
		}
		if new(big.Float).Abs(e).Cmp(new(big.Float).Abs(es[ext[len(ext)-1]])) > 0 {
			ext[len(ext)-1] = k
		}
	}
	abs := func(i int) *big.Float { return new(big.Float).Abs(es[ext[i]]) }
	for len(ext) > want {
		if len(ext)-want == 1 {
			if abs(0).Cmp(abs(len(ext)-1)) < 0 {
				ext = ext[1:]
			} else {
				ext = ext[:len(ext)-1]
			}
			continue
		}
		// drop the adjacent pair with the smallest error, which keeps alternation
		best := 0
		for i := 1; i+1 < len(ext); i++ {
			if mpnum.Max(abs(i), abs(i+1)).Cmp(mpnum.Max(abs(best), abs(best+1))) < 0 {
				best = i
			}
		}
		ext = append(ext[:best], ext[best+2:]...)
	}
	return ext
}

func equioscillates(es []*big.Float, ref []int) bool {
	lo, hi := new(big.Float).Abs(es[ref[0]]), new(big.Float).Abs(es[ref[0]])
	for _, k := range ref[1:] {
		a := new(big.Float).Abs(es[k])
		lo, hi = mpnum.Min(lo, a), mpnum.Max(hi, a)
	}
	if hi.Sign() == 0 {
		return true
	}
	d := new(big.Float).Sub(hi, lo)
	d.Quo(d, hi)
	return d.Cmp(big.NewFloat(remezTolerance)) <= 0
}
