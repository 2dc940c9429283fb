package extractors

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

// Trend directions reported by the Mann-Kendall test.
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendNone       = "no trend"
)

// TrendResult captures a Mann-Kendall test outcome.
type TrendResult struct {
	Trend string
	H     bool
	P     float64
	Z     float64
	S     float64
	VarS  float64
}

// TrendDetector runs the original Mann-Kendall monotonic trend test.
type TrendDetector struct {
	Alpha float64
}

// NewTrendDetector creates a detector rejecting "no trend" at alpha. A
// non-positive alpha defaults to 0.05.
func NewTrendDetector(alpha float64) *TrendDetector {
	if alpha <= 0 || alpha >= 1 {
		alpha = 0.05
	}
	return &TrendDetector{Alpha: alpha}
}

// Detect tests values for a monotonic trend. NaN samples are ignored.
func (d *TrendDetector) Detect(values []float64) TrendResult {
	x := dropNaN(values)
	n := len(x)
	if n < 3 {
		return TrendResult{Trend: TrendNone, P: 1}
	}

	s := 0.0
	for k := 0; k < n-1; k++ {
		for j := k + 1; j < n; j++ {
			s += sign(x[j] - x[k])
		}
	}

	nf := float64(n)
	varS := (nf * (nf - 1) * (2*nf + 5)) / 18
	for _, tp := range tieGroups(x) {
		t := float64(tp)
		varS -= t * (t - 1) * (2*t + 5) / 18
	}

	z := 0.0
	if varS > 0 {
		switch {
		case s > 0:
			z = (s - 1) / math.Sqrt(varS)
		case s < 0:
			z = (s + 1) / math.Sqrt(varS)
		}
	}

	p := 2 * (1 - distuv.UnitNormal.CDF(math.Abs(z)))
	h := math.Abs(z) > distuv.UnitNormal.Quantile(1-d.Alpha/2)

	res := TrendResult{Trend: TrendNone, H: h, P: p, Z: z, S: s, VarS: varS}
	if h {
		if z > 0 {
			res.Trend = TrendIncreasing
		} else {
			res.Trend = TrendDecreasing
		}
	}
	return res
}

// tieGroups returns the sizes of groups of equal values larger than one.
func tieGroups(x []float64) []int {
	sorted := append([]float64(nil), x...)
	sort.Float64s(sorted)
	var groups []int
	run := 1
	for i := 1; i <= len(sorted); i++ {
		if i < len(sorted) && sorted[i] == sorted[i-1] {
			run++
			continue
		}
		if run > 1 {
			groups = append(groups, run)
		}
		run = 1
	}
	return groups
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func dropNaN(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}
