package multipartite

import (
	"math"

	"github.com/beatoz/fxopgen/fixfunc"
)

// errorModel holds the closed-form error estimates of one function, in
// real output units. Positions are in offset-order input steps u, where
// the real input is lo + u*2^lsbIn.
type errorModel struct {
	wIn   int
	lsbIn int
	lo    float64
	f     *fixfunc.Function

	// epsT is the budget of the approximation error, 2^-(wOut+1) and at
	// most half an output ulp.
	epsT float64
	// halfUlp bounds the total error before the final rounding.
	halfUlp float64
	// one[p][beta][gamma] bounds the error of an offset table addressed by
	// gamma leading bits and a beta-bit field at bit p.
	one [][][]float64
	// gammaMin[p][beta] is the smallest gamma with one <= epsT, or wIn.
	gammaMin [][]int
	// curvature[alpha] bounds the error left once the initial values are
	// centered on every alpha-bit cell.
	curvature []float64
	// maxSlope is the largest sampled secant slope per input step.
	maxSlope float64
}

func newErrorModel(f *fixfunc.Function, alphas []int) *errorModel {
	m := &errorModel{
		wIn:     f.WIn,
		lsbIn:   f.LSBIn,
		f:       f,
		epsT:    math.Ldexp(1, min(-(f.WOut+1), f.LSBOut-1)),
		halfUlp: math.Ldexp(1, f.LSBOut-1),
	}
	if f.SignedIn {
		m.lo = -1
	}

	w := f.WIn
	m.one = make([][][]float64, w)
	m.gammaMin = make([][]int, w)
	for p := 0; p < w; p++ {
		m.one[p] = make([][]float64, w)
		m.gammaMin[p] = make([]int, w)
		for beta := 2; p+beta < w; beta++ {
			m.one[p][beta] = make([]float64, w-p-beta+1)
			m.gammaMin[p][beta] = w
			for gamma := 1; gamma <= w-p-beta; gamma++ {
				e := m.oneTable(p, beta, gamma)
				m.one[p][beta][gamma] = e
				if e <= m.epsT && m.gammaMin[p][beta] == w {
					m.gammaMin[p][beta] = gamma
				}
			}
		}
	}

	m.curvature = make([]float64, w)
	for _, alpha := range alphas {
		m.curvature[alpha] = m.centering(alpha)
	}

	step := math.Ldexp(1, max(0, w-12))
	end := math.Ldexp(1, w) - step
	for u := 0.0; u < end; u += step {
		m.maxSlope = math.Max(m.maxSlope, finite(math.Abs(m.g(u+step)-m.g(u))/step))
	}
	return m
}

// g evaluates f at the possibly fractional offset-order position u.
func (m *errorModel) g(u float64) float64 {
	return m.f.EvalFloat(m.lo + math.Ldexp(u, m.lsbIn))
}

func finite(v float64) float64 {
	if math.IsNaN(v) {
		return math.Inf(1)
	}
	return v
}

// oneTable samples the first, middle and last slope cells.
func (m *errorModel) oneTable(p, beta, gamma int) float64 {
	cells := []int64{0, int64(1)<<gamma - 1}
	if gamma > 1 {
		cells = append(cells, int64(1)<<(gamma-1))
	}
	e := 0.0
	for _, c := range cells {
		e = math.Max(e, m.epsilon(c, p, beta, gamma))
	}
	return e
}

// epsilon is the slope variation error of cell c. When the cell holds a
// single offset block the slope is exact and the block curvature remains.
func (m *errorModel) epsilon(c int64, p, beta, gamma int) float64 {
	cell := math.Ldexp(1, m.wIn-gamma)
	delta := math.Ldexp(math.Ldexp(1, beta)-1, p)
	xl := float64(c) * cell
	if gamma+beta+p == m.wIn {
		mid := m.g(xl + delta/2)
		return finite(0.5 * math.Abs(mid-(m.g(xl)+m.g(xl+delta))/2))
	}
	xr := float64(c+1)*cell - math.Ldexp(1, p+beta)
	return finite(0.25 * math.Abs(m.g(xl+delta)-m.g(xl)-m.g(xr+delta)+m.g(xr)))
}

// centering is a quarter of the largest second difference over the
// alpha-bit cells.
func (m *errorModel) centering(alpha int) float64 {
	beta := m.wIn - alpha
	width := math.Ldexp(1, beta) - 1
	e := 0.0
	for a := int64(0); a < int64(1)<<alpha; a++ {
		start := math.Ldexp(float64(a), beta)
		q := m.g(start) + m.g(start+width) - 2*m.g(start+width/2)
		e = math.Max(e, finite(math.Abs(q)/4))
	}
	return e
}

// guardBits is the number of extra table bits that keeps the rounding of
// m+1 tables within the budget left by mathError, shifted by slack.
func (m *errorModel) guardBits(tables int, mathError float64, slack SlackLevel) int {
	r := mathError / m.halfUlp
	g := int(math.Ceil(math.Log2(float64(tables+1) / (1 - r))))
	return max(0, g+int(slack))
}

// offsetWidth estimates the magnitude width of an offset table.
func (m *errorModel) offsetWidth(p, beta, guard, lsbOut int) int {
	delta := math.Ldexp(math.Ldexp(1, beta)-1, p)
	v := math.Ldexp(m.maxSlope*delta/2, guard-lsbOut)
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 63
	}
	return max(1, int(math.Ceil(math.Log2(v+1))))
}
