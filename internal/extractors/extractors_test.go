package extractors

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noisySine(n int, amplitude, period float64, seed uint64) []float64 {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	out := make([]float64, n)
	for i := range out {
		out[i] = 10 + amplitude*math.Sin(2*math.Pi*float64(i)/period) + rng.NormFloat64()
	}
	return out
}

func TestTrendDetectorIncreasing(t *testing.T) {
	values := make([]float64, 50)
	for i := range values {
		values[i] = float64(i) + 0.3*math.Sin(float64(i))
	}
	res := NewTrendDetector(0.05).Detect(values)
	assert.True(t, res.H)
	assert.Equal(t, TrendIncreasing, res.Trend)
	assert.Less(t, res.P, 0.05)
}

func TestTrendDetectorKnownStatistic(t *testing.T) {
	// S = 9 with one tied pair; var = (5*4*15 - 2*1*9) / 18.
	res := NewTrendDetector(0.05).Detect([]float64{1, 2, 2, 4, 5})
	assert.Equal(t, 9.0, res.S)
	assert.InDelta(t, (300.0-18.0)/18.0, res.VarS, 1e-12)
	assert.InDelta(t, 8/math.Sqrt(res.VarS), res.Z, 1e-12)
}

func TestTrendDetectorNoTrend(t *testing.T) {
	values := make([]float64, 120)
	for i := range values {
		values[i] = 3 * math.Sin(2*math.Pi*float64(i)/12)
	}
	res := NewTrendDetector(0).Detect(values)
	assert.False(t, res.H)
	assert.Equal(t, TrendNone, res.Trend)

	short := NewTrendDetector(0.05).Detect([]float64{1, 2})
	assert.Equal(t, TrendNone, short.Trend)
}

func TestMonotonicityIsAllOrNothing(t *testing.T) {
	up, down := Monotonicity([]float64{1, 2, 3, 4})
	assert.True(t, up)
	assert.False(t, down)

	up, down = Monotonicity([]float64{4, 3, 2, 1})
	assert.False(t, up)
	assert.True(t, down)

	up, down = Monotonicity([]float64{1, 2, 2, 3})
	assert.False(t, up)
	assert.False(t, down)

	up, down = Monotonicity([]float64{1})
	assert.False(t, up || down)
}

func TestMonotonicityNeverBothFlags(t *testing.T) {
	rng := rand.New(rand.NewPCG(11, 12))
	for trial := 0; trial < 50; trial++ {
		values := make([]float64, 20)
		acc := 0.0
		for i := range values {
			acc += rng.Float64() + 1e-6
			values[i] = acc
		}
		up, down := Monotonicity(values)
		require.True(t, up)
		require.False(t, down)

		for i, j := 0, len(values)-1; i < j; i, j = i+1, j-1 {
			values[i], values[j] = values[j], values[i]
		}
		up, down = Monotonicity(values)
		require.False(t, up)
		require.True(t, down)
	}
}

func TestLinearityDetector(t *testing.T) {
	d := NewLinearityDetector(0)
	line := make([]float64, 30)
	for i := range line {
		line[i] = 2*float64(i) + 1
	}
	assert.True(t, d.Detect(line))
	assert.InDelta(t, 1.0, d.Correlation(line), 1e-12)

	assert.False(t, d.Detect(noisySine(60, 5, 7, 9)))

	flat := []float64{3, 3, 3, 3}
	assert.False(t, d.Detect(flat))
}

func TestValidPeriods(t *testing.T) {
	assert.Equal(t, []int{7, 30}, ValidPeriods(140, []int{365, 30, 7}))
	assert.Empty(t, ValidPeriods(10, []int{12}))
}

func TestAmplitudeSpectrumPeak(t *testing.T) {
	n := 64
	values := make([]float64, n)
	for i := range values {
		values[i] = 3 * math.Sin(2*math.Pi*4*float64(i)/float64(n))
	}
	amp := AmplitudeSpectrum(values)
	require.Len(t, amp, n/2)
	assert.InDelta(t, 3.0, amp[4], 1e-9)
	assert.InDelta(t, 0.0, amp[5], 1e-9)
}

func TestDecomposerRecoversWeeklyComponent(t *testing.T) {
	n := 140
	values := make([]float64, n)
	for i := range values {
		values[i] = 0.05*float64(i) + 4*math.Sin(2*math.Pi*float64(i)/7)
	}
	decomp, err := NewMultiSeasonalDecomposer().Decompose(values, []int{7, 30, 365})
	require.NoError(t, err)
	require.Equal(t, []int{7, 30}, decomp.Periods)

	for i := 20; i < n-20; i++ {
		assert.InDelta(t, 4*math.Sin(2*math.Pi*float64(i)/7), decomp.Seasonal[0][i], 0.2)
	}

	_, err = NewMultiSeasonalDecomposer().Decompose(values[:10], []int{12})
	assert.ErrorIs(t, err, ErrNoPeriods)
}

func TestSeasonalityDetectorWeeklySine(t *testing.T) {
	d := NewSeasonalityDetector(5.0, nil)
	periods := []int{7, 30, 365}

	strong, err := d.Detect(noisySine(140, 10, 7, 42), periods)
	require.NoError(t, err)
	assert.True(t, strong.Seasonal, "ratios %v", strong.Ratios)

	weak, err := d.Detect(noisySine(140, 0.2, 7, 42), periods)
	require.NoError(t, err)
	assert.False(t, weak.Seasonal, "ratios %v", weak.Ratios)
}

func TestSeasonalityDetectorConstantSeries(t *testing.T) {
	values := make([]float64, 60)
	for i := range values {
		values[i] = 5
	}
	res, err := NewSeasonalityDetector(0, nil).Detect(values, []int{12})
	require.NoError(t, err)
	assert.False(t, res.Seasonal)
}
