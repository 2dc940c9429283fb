package extractors

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Monotonicity reports whether every first difference of values is strictly
// positive (up) or strictly negative (down). NaN samples are skipped and at
// least two valid samples are required.
func Monotonicity(values []float64) (up, down bool) {
	x := dropNaN(values)
	if len(x) < 2 {
		return false, false
	}
	up, down = true, true
	for i := 1; i < len(x); i++ {
		d := x[i] - x[i-1]
		if d <= 0 {
			up = false
		}
		if d >= 0 {
			down = false
		}
	}
	return up, down
}

// LinearityDetector flags series that track their sample index closely. It
// is a correlation heuristic, not a regression fit.
type LinearityDetector struct {
	Threshold float64
}

// NewLinearityDetector creates a detector; a non-positive threshold defaults to 0.95.
func NewLinearityDetector(threshold float64) *LinearityDetector {
	if threshold <= 0 {
		threshold = 0.95
	}
	return &LinearityDetector{Threshold: threshold}
}

// Correlation returns the Pearson correlation between values and 0..n-1.
func (d *LinearityDetector) Correlation(values []float64) float64 {
	if len(values) < 2 {
		return math.NaN()
	}
	index := make([]float64, len(values))
	for i := range index {
		index[i] = float64(i)
	}
	return stat.Correlation(index, values, nil)
}

// Detect reports whether the index correlation exceeds the threshold.
func (d *LinearityDetector) Detect(values []float64) bool {
	return d.Correlation(values) > d.Threshold
}
