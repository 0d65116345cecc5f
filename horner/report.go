package horner

import (
	"fmt"
	"strings"
)

// Report prints the architecture parameters, one line per Horner step.
func (s *Schedule) Report() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Horner evaluation of degree %d on %d interval(s), lsbIn=%d lsbOut=%d, %d guard bit(s)\n",
		s.Degree, s.Intervals(), s.LSBIn, s.LSBOut, s.GuardBits)
	fmt.Fprintf(&sb, "  S%d = a%d: SMSB=%3d SLSB=%3d", s.Degree, s.Degree, s.Stages[s.Degree].SumMSB, s.Stages[s.Degree].SumLSB)
	if s.Stages[s.Degree].IsZero {
		sb.WriteString(" (zero)")
	}
	sb.WriteString("\n")
	for i := s.Degree - 1; i >= 0; i-- {
		st := s.Stages[i]
		wy, ws := s.MultSize(i)
		fmt.Fprintf(&sb, "  Horner step %d: YLSB=%3d SSgn=%2d SMSB=%3d SLSB=%3d\t Mult size %dx%d",
			i, st.InputTruncationLSB, st.SumSign, st.SumMSB, st.SumLSB, wy, ws)
		if st.IsZero {
			sb.WriteString(" (zero coefficient)")
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "  approximation error <= %s, evaluation error <= %s, total <= %s",
		s.ApproxErrorBound.Text('g', 6), s.EvalError.Text('g', 6), s.TotalError.Text('g', 6))
	return sb.String()
}
