package extractors

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"sort"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

// ErrNoPeriods is returned when none of the candidate periods fits the series.
var ErrNoPeriods = errors.New("no seasonal period fits the series")

// Decomposition splits a series into trend, per-period seasonal and residual parts.
type Decomposition struct {
	Periods  []int
	Seasonal [][]float64
	Trend    []float64
	Resid    []float64
}

// Decomposer is the seasonal-trend decomposition primitive.
type Decomposer interface {
	Decompose(values []float64, periods []int) (Decomposition, error)
}

// ValidPeriods keeps the periods shorter than half the series, shortest first.
func ValidPeriods(n int, periods []int) []int {
	out := make([]int, 0, len(periods))
	for _, p := range periods {
		if p >= 2 && float64(p) < float64(n)/2 {
			out = append(out, p)
		}
	}
	sort.Ints(out)
	return out
}

// MultiSeasonalDecomposer estimates one seasonal component per period by
// repeated moving-average detrending and phase averaging, refining every
// component against the others for a fixed number of passes.
type MultiSeasonalDecomposer struct {
	Passes int
}

// NewMultiSeasonalDecomposer creates a decomposer with two refinement passes.
func NewMultiSeasonalDecomposer() *MultiSeasonalDecomposer {
	return &MultiSeasonalDecomposer{Passes: 2}
}

// Decompose implements Decomposer. values must not contain NaN.
func (d *MultiSeasonalDecomposer) Decompose(values []float64, periods []int) (Decomposition, error) {
	n := len(values)
	periods = ValidPeriods(n, periods)
	if len(periods) == 0 {
		return Decomposition{}, ErrNoPeriods
	}
	for _, v := range values {
		if math.IsNaN(v) {
			return Decomposition{}, fmt.Errorf("decompose: series contains NaN")
		}
	}

	passes := d.Passes
	if passes <= 0 {
		passes = 1
	}

	seasonal := make([][]float64, len(periods))
	for i := range seasonal {
		seasonal[i] = make([]float64, n)
	}
	deseason := append([]float64(nil), values...)
	for pass := 0; pass < passes; pass++ {
		for i, p := range periods {
			floats.Add(deseason, seasonal[i])
			seasonal[i] = seasonalComponent(deseason, p)
			floats.Sub(deseason, seasonal[i])
		}
	}

	trend := centeredMovingAverage(deseason, periods[len(periods)-1])
	resid := append([]float64(nil), deseason...)
	floats.Sub(resid, trend)

	return Decomposition{Periods: periods, Seasonal: seasonal, Trend: trend, Resid: resid}, nil
}

func seasonalComponent(values []float64, period int) []float64 {
	trend := centeredMovingAverage(values, period)
	sums := make([]float64, period)
	counts := make([]float64, period)
	for i, v := range values {
		sums[i%period] += v - trend[i]
		counts[i%period]++
	}
	for j := range sums {
		if counts[j] > 0 {
			sums[j] /= counts[j]
		}
	}
	offset := floats.Sum(sums) / float64(period)
	out := make([]float64, len(values))
	for i := range out {
		out[i] = sums[i%period] - offset
	}
	return out
}

// centeredMovingAverage smooths values over window samples; even windows use
// the 2xN weighting. Near the edges the kernel is truncated and renormalised.
func centeredMovingAverage(values []float64, window int) []float64 {
	var weights []float64
	if window%2 == 1 {
		weights = make([]float64, window)
		for i := range weights {
			weights[i] = 1
		}
	} else {
		weights = make([]float64, window+1)
		for i := range weights {
			weights[i] = 1
		}
		weights[0], weights[window] = 0.5, 0.5
	}
	half := len(weights) / 2

	out := make([]float64, len(values))
	for i := range values {
		sum, wsum := 0.0, 0.0
		for k, w := range weights {
			j := i + k - half
			if j < 0 || j >= len(values) {
				continue
			}
			sum += w * values[j]
			wsum += w
		}
		out[i] = sum / wsum
	}
	return out
}

// AmplitudeSpectrum returns (2/N)|FFT(values)| over the first N/2 frequencies.
func AmplitudeSpectrum(values []float64) []float64 {
	n := len(values)
	if n < 2 {
		return nil
	}
	fft := fourier.NewFFT(n)
	coeffs := fft.Coefficients(nil, values)
	amp := make([]float64, n/2)
	for k := range amp {
		amp[k] = 2.0 / float64(n) * cmplx.Abs(coeffs[k])
	}
	return amp
}

// SeasonalityResult reports the peak ratio per decomposed period.
type SeasonalityResult struct {
	Seasonal bool
	Periods  []int
	Ratios   []float64
}

// SeasonalityDetector compares the spectral peak of each seasonal component
// with the median amplitude of the original series.
type SeasonalityDetector struct {
	Threshold  float64
	decomposer Decomposer
}

// NewSeasonalityDetector creates a detector; a nil decomposer selects the
// multi-seasonal default and a non-positive threshold defaults to 5.0.
func NewSeasonalityDetector(threshold float64, decomposer Decomposer) *SeasonalityDetector {
	if threshold <= 0 {
		threshold = 5.0
	}
	if decomposer == nil {
		decomposer = NewMultiSeasonalDecomposer()
	}
	return &SeasonalityDetector{Threshold: threshold, decomposer: decomposer}
}

// Detect decomposes values over periods and checks every seasonal component.
// ErrNoPeriods is returned when no period fits.
func (d *SeasonalityDetector) Detect(values []float64, periods []int) (SeasonalityResult, error) {
	decomp, err := d.decomposer.Decompose(values, periods)
	if err != nil {
		return SeasonalityResult{}, err
	}

	res := SeasonalityResult{Periods: decomp.Periods, Ratios: make([]float64, len(decomp.Seasonal))}
	if floats.Max(values) == floats.Min(values) {
		return res, nil
	}

	med := median(AmplitudeSpectrum(values))
	for i, component := range decomp.Seasonal {
		peak := floats.Max(AmplitudeSpectrum(component))
		var ratio float64
		if med == 0 {
			if peak > 0 {
				ratio = math.Inf(1)
			}
		} else {
			ratio = math.Abs(peak-med) / med
		}
		res.Ratios[i] = ratio
		if ratio > d.Threshold {
			res.Seasonal = true
		}
	}
	return res, nil
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
