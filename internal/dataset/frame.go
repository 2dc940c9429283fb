// Package dataset holds the frame helpers shared by the characterizer, the
// collinearity reducer and the preprocessing collaborator. Frames are gota
// DataFrames; float columns are continuous, everything else is categorical.
package dataset

import (
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/miradorstack/mirador-prep/internal/utils"
)

// NaNValues are the cell spellings read as missing.
var NaNValues = []string{"NA", "NaN", "nan", "N/A", "null", ""}

// LoadCSV reads path into a DataFrame, keeping dateColumn as text.
func LoadCSV(path, dateColumn string) (dataframe.DataFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	return ReadCSV(f, dateColumn)
}

// ReadCSV parses CSV from r, keeping dateColumn as text.
func ReadCSV(r io.Reader, dateColumn string) (dataframe.DataFrame, error) {
	opts := []dataframe.LoadOption{
		dataframe.HasHeader(true),
		dataframe.DetectTypes(true),
		dataframe.NaNValues(NaNValues),
	}
	if dateColumn != "" {
		opts = append(opts, dataframe.WithTypes(map[string]series.Type{dateColumn: series.String}))
	}
	df := dataframe.ReadCSV(r, opts...)
	if df.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("parse dataset: %w", df.Err)
	}
	return df, nil
}

// WriteCSV writes df to path, creating or truncating it.
func WriteCSV(df dataframe.DataFrame, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := df.WriteCSV(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// HasColumn reports whether df has a column called name.
func HasColumn(df dataframe.DataFrame, name string) bool {
	if name == "" {
		return false
	}
	for _, n := range df.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// FloatColumns lists the continuous columns of df in column order.
func FloatColumns(df dataframe.DataFrame, exclude ...string) []string {
	return columnsOf(df, func(t series.Type) bool { return t == series.Float }, exclude)
}

// NumericColumns lists the float, int and bool columns of df in column order.
func NumericColumns(df dataframe.DataFrame, exclude ...string) []string {
	return columnsOf(df, func(t series.Type) bool { return t != series.String }, exclude)
}

// StringColumns lists the text columns of df in column order.
func StringColumns(df dataframe.DataFrame, exclude ...string) []string {
	return columnsOf(df, func(t series.Type) bool { return t == series.String }, exclude)
}

func columnsOf(df dataframe.DataFrame, keep func(series.Type) bool, exclude []string) []string {
	skip := make(map[string]struct{}, len(exclude))
	for _, e := range exclude {
		skip[e] = struct{}{}
	}
	names := df.Names()
	types := df.Types()
	out := make([]string, 0, len(names))
	for i, name := range names {
		if _, ok := skip[name]; ok {
			continue
		}
		if keep(types[i]) {
			out = append(out, name)
		}
	}
	return out
}

// Floats returns column name as float64 values; missing cells are NaN.
func Floats(df dataframe.DataFrame, name string) []float64 {
	return df.Col(name).Float()
}

// HasMissing reports whether any cell of column name is missing.
func HasMissing(df dataframe.DataFrame, name string) bool {
	col := df.Col(name)
	if col.Type() == series.String {
		for _, nan := range col.IsNaN() {
			if nan {
				return true
			}
		}
		return false
	}
	for _, v := range col.Float() {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

// Times parses column name as timestamps.
func Times(df dataframe.DataFrame, name string) ([]time.Time, error) {
	records := df.Col(name).Records()
	out := make([]time.Time, len(records))
	for i, rec := range records {
		t, err := utils.ParseTimestamp(rec)
		if err != nil {
			return nil, fmt.Errorf("column %s row %d: %w", name, i, err)
		}
		out[i] = t
	}
	return out, nil
}

// Select restricts df to cols, in that order.
func Select(df dataframe.DataFrame, cols []string) (dataframe.DataFrame, error) {
	out := df.Select(cols)
	if out.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("select columns %v: %w", cols, out.Err)
	}
	return out, nil
}

// Concat stacks the rows of b under a. Both must share the same columns.
func Concat(a, b dataframe.DataFrame) (dataframe.DataFrame, error) {
	out := a.RBind(b)
	if out.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("concat frames: %w", out.Err)
	}
	return out, nil
}

// Split shuffles the rows of df with seed and holds out ceil(testSize*n) rows
// for validation.
func Split(df dataframe.DataFrame, testSize float64, seed int64) (train, valid dataframe.DataFrame, err error) {
	if testSize <= 0 || testSize >= 1 {
		return train, valid, utils.NewConfigError("split", "test size must be in (0, 1), got %g", testSize)
	}
	n := df.Nrow()
	nTest := int(math.Ceil(testSize * float64(n)))
	nTrain := n - nTest
	if nTest == 0 || nTrain == 0 {
		return train, valid, fmt.Errorf("split %d rows with test size %g leaves an empty side", n, testSize)
	}

	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
	perm := rng.Perm(n)

	valid = df.Subset(perm[:nTest])
	train = df.Subset(perm[nTest:])
	if valid.Err != nil {
		return train, valid, fmt.Errorf("subset validation rows: %w", valid.Err)
	}
	if train.Err != nil {
		return train, valid, fmt.Errorf("subset training rows: %w", train.Err)
	}
	return train, valid, nil
}

// FloatSeries builds a float column.
func FloatSeries(name string, values []float64) series.Series {
	return series.New(values, series.Float, name)
}

// IntSeries builds an int column.
func IntSeries(name string, values []int) series.Series {
	return series.New(values, series.Int, name)
}

// StringSeries builds a text column.
func StringSeries(name string, values []string) series.Series {
	return series.New(values, series.String, name)
}

// Replace swaps column s.Name in df, or appends it when absent.
func Replace(df dataframe.DataFrame, s series.Series) (dataframe.DataFrame, error) {
	out := df.Mutate(s)
	if out.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("mutate column %s: %w", s.Name, out.Err)
	}
	return out, nil
}
