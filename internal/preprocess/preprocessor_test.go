package preprocess

import (
	"math"
	"testing"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-prep/internal/dataset"
	"github.com/miradorstack/mirador-prep/internal/models"
	"github.com/miradorstack/mirador-prep/internal/utils"
)

type fakeAnalyzer struct {
	report models.Report
	calls  int
}

func (f *fakeAnalyzer) Analyze(dataframe.DataFrame) (models.Report, error) {
	f.calls++
	return f.report, nil
}

func tabularFrames() (dataframe.DataFrame, dataframe.DataFrame) {
	train := dataframe.New(
		dataset.FloatSeries("x", []float64{1, math.NaN(), 3, 4, 100}),
		dataset.FloatSeries("y", []float64{5, 4, 3, 2, 1}),
		dataset.StringSeries("colour", []string{"red", "blue", "red", "blue", "red"}),
		dataset.FloatSeries("target", []float64{10, 20, 30, 40, 50}),
	)
	valid := dataframe.New(
		dataset.FloatSeries("x", []float64{math.NaN(), 2}),
		dataset.FloatSeries("y", []float64{9, 0}),
		dataset.StringSeries("colour", []string{"green", "blue"}),
		dataset.FloatSeries("target", []float64{60, 70}),
	)
	return train, valid
}

func TestNewRejectsBadOptions(t *testing.T) {
	cases := []Options{
		{"scaling": {}},
		{"clipping": {"q_mid": 0.5}},
		{"clipping": {"q_l": 2}},
		{"imputation": {"strategy": "mode"}},
		{"label_encoding": {"unknown_value": "abc"}},
	}
	for _, opts := range cases {
		_, err := New(nil, nil, "date", opts)
		require.Error(t, err, "%v", opts)
		assert.True(t, utils.IsConfigError(err), "%v", opts)
	}
}

func TestCheckDataTabular(t *testing.T) {
	train, valid := tabularFrames()
	all, err := dataset.Concat(train, valid)
	require.NoError(t, err)

	p, err := New(nil, nil, "date", nil)
	require.NoError(t, err)
	require.NoError(t, p.CheckData(all, false))

	state := p.Preprocessors()
	assert.Equal(t, []string{"x"}, state[TransformImputation]["columns"])
	assert.Equal(t, []string{"x", "y", "target"}, state[TransformClipping]["columns"])
	assert.Equal(t, []string{"colour"}, state[TransformLabelEncoding]["columns"])
	assert.NotContains(t, state, TransformToDatetime)
	assert.NotContains(t, state, TransformStandardization)
}

func TestApplyFitsOnTrainAndSparesTarget(t *testing.T) {
	train, valid := tabularFrames()
	p, err := New(nil, nil, "date", Options{"imputation": {"strategy": "mean"}})
	require.NoError(t, err)
	require.NoError(t, p.CheckData(train, false))

	outTrain, outValid, err := p.Apply(train, valid, "target")
	require.NoError(t, err)

	// mean of observed train x is 27; the clipping upper bound comes from train.
	x := dataset.Floats(outValid, "x")
	assert.False(t, math.IsNaN(x[0]))
	assert.InDelta(t, 27, x[0], 1e-9)
	assert.Less(t, dataset.Floats(outTrain, "x")[4], 100.0)

	assert.Equal(t, dataset.Floats(train, "target"), dataset.Floats(outTrain, "target"))
	assert.Equal(t, dataset.Floats(valid, "target"), dataset.Floats(outValid, "target"))

	assert.Equal(t, series.Int, outTrain.Col("colour").Type())
	codes, err := outValid.Col("colour").Int()
	require.NoError(t, err)
	assert.Equal(t, []int{-1, 0}, codes)
}

func TestReplayedStateReproducesFrames(t *testing.T) {
	train, valid := tabularFrames()
	first, err := New(nil, nil, "date", nil)
	require.NoError(t, err)
	require.NoError(t, first.CheckData(train, false))
	wantTrain, wantValid, err := first.Apply(train, valid, "target")
	require.NoError(t, err)

	data, err := json.Marshal(first.Preprocessors())
	require.NoError(t, err)
	var state models.PreprocessorState
	require.NoError(t, json.Unmarshal(data, &state))

	second, err := New(nil, nil, "date", nil)
	require.NoError(t, err)
	second.SetPreprocessors(state)
	gotTrain, gotValid, err := second.Apply(train, valid, "target")
	require.NoError(t, err)

	assert.Equal(t, wantTrain.Records(), gotTrain.Records())
	assert.Equal(t, wantValid.Records(), gotValid.Records())
}

func timeSeriesFrame(n int) dataframe.DataFrame {
	dates := make([]string, n)
	ramp := make([]float64, n)
	for i := 0; i < n; i++ {
		dates[i] = time.Date(2021, 1, 1+i, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
		ramp[i] = 2*float64(i) + 1
	}
	return dataframe.New(
		dataset.StringSeries("date", dates),
		dataset.FloatSeries("ramp", ramp),
		dataset.FloatSeries("target", ramp),
	)
}

func TestCheckDataTimeSeriesUsesReport(t *testing.T) {
	report := models.NewReport()
	report.Add(models.FlagLinearity, "ramp")
	report.Add(models.FlagSeasonality, "ramp")
	analyzer := &fakeAnalyzer{report: report}

	p, err := New(nil, analyzer, "date", Options{"clipping": {"q_l": 0, "q_u": 1}})
	require.NoError(t, err)
	df := timeSeriesFrame(10)
	require.NoError(t, p.CheckData(df, true))
	assert.Equal(t, 1, analyzer.calls)

	state := p.Preprocessors()
	assert.Contains(t, state, TransformToDatetime)
	assert.Contains(t, state, TransformDetrending)
	assert.Contains(t, state, TransformCalendar)
	assert.NotContains(t, state, TransformImputation)

	train, valid := df.Subset([]int{0, 1, 2, 3, 4, 5, 6, 7}), df.Subset([]int{8, 9})
	outTrain, outValid, err := p.Apply(train, valid, "target")
	require.NoError(t, err)

	assert.Equal(t, "2021-01-01T00:00:00Z", outTrain.Col("date").Records()[0])
	for _, v := range dataset.Floats(outValid, "ramp_detrend") {
		assert.InDelta(t, 0, v, 1e-9)
	}
	assert.False(t, dataset.HasColumn(outTrain, "target_detrend"))

	months, err := outValid.Col("month").Int()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1}, months)
	// 2021-01-09 is a Saturday.
	dow, err := outValid.Col("dayofweek").Int()
	require.NoError(t, err)
	assert.Equal(t, 5, dow[0])
}

func TestCheckDataTimeSeriesNeedsDate(t *testing.T) {
	p, err := New(nil, &fakeAnalyzer{}, "when", nil)
	require.NoError(t, err)
	err = p.CheckData(timeSeriesFrame(5), true)
	assert.True(t, utils.IsConfigError(err))
}

func TestStandardizationOnRequest(t *testing.T) {
	train, valid := tabularFrames()
	p, err := New(nil, nil, "date", Options{"standardization": {}, "clipping": {"q_l": 0, "q_u": 1}})
	require.NoError(t, err)
	require.NoError(t, p.CheckData(train, false))
	outTrain, _, err := p.Apply(train, valid, "target")
	require.NoError(t, err)

	y := dataset.Floats(outTrain, "y")
	var sum float64
	for _, v := range y {
		sum += v
	}
	assert.InDelta(t, 0, sum, 1e-9)
	assert.Equal(t, dataset.Floats(train, "target"), dataset.Floats(outTrain, "target"))
}

func TestApplyRejectsUnknownStateKey(t *testing.T) {
	p, err := New(nil, nil, "date", nil)
	require.NoError(t, err)
	p.SetPreprocessors(models.PreprocessorState{"pca": {}})
	train, valid := tabularFrames()
	_, _, err = p.Apply(train, valid, "target")
	assert.True(t, utils.IsConfigError(err))
}
