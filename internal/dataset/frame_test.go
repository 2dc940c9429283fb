package dataset

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-prep/internal/utils"
)

const sampleCSV = `date,temp,store,sales
2024-01-01,1.5,3,10.0
2024-01-02,NA,3,11.0
2024-01-03,2.5,4,12.5
2024-01-04,3.5,4,13.0
2024-01-05,4.5,5,NA
`

func TestReadCSVDetectsColumnKinds(t *testing.T) {
	df, err := ReadCSV(strings.NewReader(sampleCSV), "date")
	require.NoError(t, err)

	assert.Equal(t, []string{"temp", "sales"}, FloatColumns(df))
	assert.Equal(t, []string{"temp", "store", "sales"}, NumericColumns(df, "date"))
	assert.Equal(t, []string{"date"}, StringColumns(df))
	assert.True(t, HasMissing(df, "temp"))
	assert.False(t, HasMissing(df, "store"))
	assert.True(t, math.IsNaN(Floats(df, "sales")[4]))

	times, err := Times(df, "date")
	require.NoError(t, err)
	assert.Equal(t, 2, times[1].Day())
}

func TestSplitIsSeededAndDisjoint(t *testing.T) {
	df, err := ReadCSV(strings.NewReader(sampleCSV), "date")
	require.NoError(t, err)

	train, valid, err := Split(df, 0.25, 7)
	require.NoError(t, err)
	assert.Equal(t, 3, train.Nrow())
	assert.Equal(t, 2, valid.Nrow())

	seen := map[string]bool{}
	for _, d := range append(train.Col("date").Records(), valid.Col("date").Records()...) {
		assert.False(t, seen[d], "row %s appears twice", d)
		seen[d] = true
	}

	train2, valid2, err := Split(df, 0.25, 7)
	require.NoError(t, err)
	assert.Equal(t, train.Col("date").Records(), train2.Col("date").Records())
	assert.Equal(t, valid.Col("date").Records(), valid2.Col("date").Records())
}

func TestSplitRejectsBadRatio(t *testing.T) {
	df, err := ReadCSV(strings.NewReader(sampleCSV), "date")
	require.NoError(t, err)
	_, _, err = Split(df, 1.5, 0)
	require.Error(t, err)
	assert.True(t, utils.IsConfigError(err))
}

func TestConcatAndSelect(t *testing.T) {
	df, err := ReadCSV(strings.NewReader(sampleCSV), "date")
	require.NoError(t, err)
	train, valid, err := Split(df, 0.4, 1)
	require.NoError(t, err)

	all, err := Concat(train, valid)
	require.NoError(t, err)
	assert.Equal(t, df.Nrow(), all.Nrow())

	sel, err := Select(all, []string{"sales", "date"})
	require.NoError(t, err)
	assert.Equal(t, []string{"sales", "date"}, sel.Names())

	_, err = Select(all, []string{"missing"})
	require.Error(t, err)
}

func TestReplaceAppendsAndOverwrites(t *testing.T) {
	df, err := ReadCSV(strings.NewReader(sampleCSV), "date")
	require.NoError(t, err)

	df, err = Replace(df, FloatSeries("temp", []float64{0, 0, 0, 0, 0}))
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0, 0, 0}, Floats(df, "temp"))

	df, err = Replace(df, IntSeries("month", []int{1, 1, 1, 1, 1}))
	require.NoError(t, err)
	assert.True(t, HasColumn(df, "month"))
}
