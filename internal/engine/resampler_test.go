package engine

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-prep/internal/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestResampleMonthEndFillsGap(t *testing.T) {
	index := []time.Time{date(2020, 1, 31), date(2020, 2, 29), date(2020, 3, 31), date(2020, 5, 31)}
	cols := map[string][]float64{"x": {1, 2, 3, 5}}

	frame, err := NewResampler(nil).Resample(index, []string{"x"}, cols, models.IntervalAuto)
	require.NoError(t, err)
	assert.Equal(t, models.IntervalMonthly, frame.Interval)
	assert.Equal(t, models.AnchorMonthEnd, frame.Anchor)
	assert.Equal(t, []time.Time{date(2020, 1, 31), date(2020, 2, 29), date(2020, 3, 31), date(2020, 4, 30), date(2020, 5, 31)}, frame.Index)
	assert.InDeltaSlice(t, []float64{1, 2, 3, 4, 5}, frame.Column("x"), 1e-12)
}

func TestResampleMidMonthSnapsToMonthStart(t *testing.T) {
	index := []time.Time{date(2020, 1, 15), date(2020, 2, 15), date(2020, 3, 15)}
	cols := map[string][]float64{"x": {1, 2, 3}}

	frame, err := NewResampler(nil).Resample(index, []string{"x"}, cols, models.IntervalAuto)
	require.NoError(t, err)
	assert.Equal(t, models.IntervalMonthly, frame.Interval)
	assert.Equal(t, models.AnchorMonthStart, frame.Anchor)
	assert.Equal(t, []time.Time{date(2020, 1, 1), date(2020, 2, 1), date(2020, 3, 1)}, frame.Index)
	assert.InDeltaSlice(t, []float64{1, 2, 3}, frame.Column("x"), 1e-12)
}

func TestResampleDailyAveragesDuplicates(t *testing.T) {
	index := []time.Time{date(2021, 1, 1), date(2021, 1, 1), date(2021, 1, 2), date(2021, 1, 4)}
	cols := map[string][]float64{"x": {1, 3, 4, 8}, "y": {math.NaN(), 5, 5, 5}}

	frame, err := NewResampler(nil).Resample(index, []string{"x", "y"}, cols, models.IntervalAuto)
	require.NoError(t, err)
	assert.Equal(t, models.IntervalDaily, frame.Interval)
	require.Equal(t, 4, frame.Len())
	assert.InDeltaSlice(t, []float64{2, 4, 6, 8}, frame.Column("x"), 1e-12)
	assert.InDeltaSlice(t, []float64{5, 5, 5, 5}, frame.Column("y"), 1e-12)
}

func TestResampleWeeklyAnchorsOnMajorityWeekday(t *testing.T) {
	// 2023-01-01 is a Sunday.
	index := []time.Time{date(2023, 1, 1), date(2023, 1, 8), date(2023, 1, 15), date(2023, 1, 29)}
	cols := map[string][]float64{"x": {10, 20, 30, 50}}

	frame, err := NewResampler(nil).Resample(index, []string{"x"}, cols, models.IntervalAuto)
	require.NoError(t, err)
	assert.Equal(t, models.IntervalWeekly, frame.Interval)
	assert.Equal(t, models.Anchor("W-SUN"), frame.Anchor)
	require.Equal(t, 5, frame.Len())
	assert.Equal(t, date(2023, 1, 22), frame.Index[3])
	assert.InDelta(t, 40, frame.Column("x")[3], 1e-12)
}

func TestResampleExplicitIntervalDropsOffGridRows(t *testing.T) {
	// Two weeks of daily data starting Monday 2024-01-01; every weekday ties,
	// so the grid anchors on Monday.
	index := make([]time.Time, 14)
	vals := make([]float64, 14)
	for i := range index {
		index[i] = date(2024, 1, 1+i)
		vals[i] = float64(i)
	}

	frame, err := NewResampler(nil).Resample(index, []string{"x"}, map[string][]float64{"x": vals}, models.IntervalWeekly)
	require.NoError(t, err)
	assert.Equal(t, models.Anchor("W-MON"), frame.Anchor)
	assert.Equal(t, []time.Time{date(2024, 1, 1), date(2024, 1, 8)}, frame.Index)
	assert.InDeltaSlice(t, []float64{0, 7}, frame.Column("x"), 1e-12)
}

func TestResampleHourlyFillsEdges(t *testing.T) {
	base := time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC)
	index := []time.Time{base, base.Add(time.Hour), base.Add(2 * time.Hour), base.Add(3 * time.Hour)}
	cols := map[string][]float64{"x": {math.NaN(), 2, 4, math.NaN()}}

	frame, err := NewResampler(nil).Resample(index, []string{"x"}, cols, models.IntervalAuto)
	require.NoError(t, err)
	assert.Equal(t, models.IntervalHourly, frame.Interval)
	assert.InDeltaSlice(t, []float64{2, 2, 4, 4}, frame.Column("x"), 1e-12)
}

func TestResampleUnsupportedKeepsTimestamps(t *testing.T) {
	base := time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC)
	index := []time.Time{base, base.Add(10 * time.Minute), base.Add(30 * time.Minute)}
	cols := map[string][]float64{"x": {1, math.NaN(), 3}}

	frame, err := NewResampler(nil).Resample(index, []string{"x"}, cols, models.IntervalAuto)
	require.NoError(t, err)
	assert.Equal(t, models.IntervalUnsupported, frame.Interval)
	assert.Equal(t, index, frame.Index)
	assert.InDeltaSlice(t, []float64{1, 2, 3}, frame.Column("x"), 1e-12)
}

func TestResampleRejectsRaggedColumns(t *testing.T) {
	_, err := NewResampler(nil).Resample([]time.Time{date(2020, 1, 1)}, []string{"x"}, map[string][]float64{"x": {1, 2}}, models.IntervalAuto)
	require.Error(t, err)
}

func TestInterpolateLinear(t *testing.T) {
	vals := []float64{math.NaN(), 1, math.NaN(), math.NaN(), 4, math.NaN()}
	interpolateLinear(vals)
	assert.InDeltaSlice(t, []float64{1, 1, 2, 3, 4, 4}, vals, 1e-12)

	empty := []float64{math.NaN(), math.NaN()}
	interpolateLinear(empty)
	assert.True(t, math.IsNaN(empty[0]) && math.IsNaN(empty[1]))
}
