package preprocess

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/spf13/cast"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/miradorstack/mirador-prep/internal/dataset"
	"github.com/miradorstack/mirador-prep/internal/utils"
)

// Transform names; they are also the keys of the persisted state.
const (
	TransformToDatetime      = "todatetime"
	TransformImputation      = "imputation"
	TransformClipping        = "clipping"
	TransformStandardization = "standardization"
	TransformLabelEncoding   = "label_encoding"
	TransformDetrending      = "detrending"
	TransformCalendar        = "calendar"
)

const keyColumns = "columns"

var applyOrder = []string{
	TransformToDatetime,
	TransformImputation,
	TransformClipping,
	TransformStandardization,
	TransformLabelEncoding,
	TransformDetrending,
	TransformCalendar,
}

type transformContext struct {
	dateColumn string
	target     string
}

type option struct {
	def    any
	coerce func(any) (any, error)
}

type transform struct {
	options map[string]option
	// fitKey holds the fitted parameters; empty for stateless transforms.
	fitKey string
	fit    func(env transformContext, train dataframe.DataFrame, params map[string]any) error
	apply  func(env transformContext, df dataframe.DataFrame, params map[string]any) (dataframe.DataFrame, error)
}

var registry = map[string]transform{
	TransformToDatetime: {apply: applyToDatetime},
	TransformImputation: {
		options: map[string]option{"strategy": {def: "median", coerce: oneOf("median", "mean")}},
		fitKey:  "fill",
		fit:     fitImputation,
		apply:   applyImputation,
	},
	TransformClipping: {
		options: map[string]option{
			"q_l": {def: 0.01, coerce: unitInterval},
			"q_u": {def: 0.99, coerce: unitInterval},
		},
		fitKey: "bounds",
		fit:    fitClipping,
		apply:  applyClipping,
	},
	TransformStandardization: {
		fitKey: "stats",
		fit:    fitStandardization,
		apply:  applyStandardization,
	},
	TransformLabelEncoding: {
		options: map[string]option{"unknown_value": {def: -1, coerce: toInt}},
		fitKey:  "mapping",
		fit:     fitLabelEncoding,
		apply:   applyLabelEncoding,
	},
	TransformDetrending: {
		fitKey: "coef",
		fit:    fitDetrending,
		apply:  applyDetrending,
	},
	TransformCalendar: {apply: applyCalendar},
}

func oneOf(choices ...string) func(any) (any, error) {
	return func(v any) (any, error) {
		s, err := cast.ToStringE(v)
		if err != nil {
			return nil, err
		}
		for _, c := range choices {
			if s == c {
				return s, nil
			}
		}
		return nil, fmt.Errorf("must be one of %v, got %q", choices, s)
	}
}

func unitInterval(v any) (any, error) {
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return nil, err
	}
	if f < 0 || f > 1 {
		return nil, fmt.Errorf("must be in [0, 1], got %g", f)
	}
	return f, nil
}

func toInt(v any) (any, error) {
	return cast.ToIntE(v)
}

// columnsOf returns the configured columns except target.
func columnsOf(env transformContext, params map[string]any) []string {
	var out []string
	for _, name := range cast.ToStringSlice(params[keyColumns]) {
		if name != env.target {
			out = append(out, name)
		}
	}
	return out
}

func requireColumns(df dataframe.DataFrame, cols ...string) error {
	for _, name := range cols {
		if !dataset.HasColumn(df, name) {
			return fmt.Errorf("column %q not in frame", name)
		}
	}
	return nil
}

func observed(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

func floatMap(v any) (map[string]float64, error) {
	raw, err := cast.ToStringMapE(v)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(raw))
	for k, x := range raw {
		if out[k], err = cast.ToFloat64E(x); err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
	}
	return out, nil
}

func pairMap(v any) (map[string][2]float64, error) {
	raw, err := cast.ToStringMapE(v)
	if err != nil {
		return nil, err
	}
	out := make(map[string][2]float64, len(raw))
	for k, x := range raw {
		items, err := cast.ToSliceE(x)
		if err != nil || len(items) != 2 {
			return nil, fmt.Errorf("%s: expected a pair, got %v", k, x)
		}
		var pair [2]float64
		for i, item := range items {
			if pair[i], err = cast.ToFloat64E(item); err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
		}
		out[k] = pair
	}
	return out, nil
}

func applyToDatetime(env transformContext, df dataframe.DataFrame, _ map[string]any) (dataframe.DataFrame, error) {
	if err := requireColumns(df, env.dateColumn); err != nil {
		return df, err
	}
	times, err := dataset.Times(df, env.dateColumn)
	if err != nil {
		return df, err
	}
	out := make([]string, len(times))
	for i, t := range times {
		out[i] = t.Format(time.RFC3339)
	}
	return dataset.Replace(df, dataset.StringSeries(env.dateColumn, out))
}

func fitImputation(env transformContext, train dataframe.DataFrame, params map[string]any) error {
	cols := columnsOf(env, params)
	if err := requireColumns(train, cols...); err != nil {
		return err
	}
	strategy := cast.ToString(params["strategy"])
	fill := make(map[string]any, len(cols))
	for _, name := range cols {
		values := observed(dataset.Floats(train, name))
		switch {
		case len(values) == 0:
			fill[name] = 0.0
		case strategy == "mean":
			fill[name] = stat.Mean(values, nil)
		default:
			fill[name] = median(values)
		}
	}
	params["fill"] = fill
	return nil
}

func applyImputation(env transformContext, df dataframe.DataFrame, params map[string]any) (dataframe.DataFrame, error) {
	fill, err := floatMap(params["fill"])
	if err != nil {
		return df, fmt.Errorf("decode fill values: %w", err)
	}
	for _, name := range columnsOf(env, params) {
		v, ok := fill[name]
		if !ok {
			continue
		}
		if err := requireColumns(df, name); err != nil {
			return df, err
		}
		values := dataset.Floats(df, name)
		for i := range values {
			if math.IsNaN(values[i]) {
				values[i] = v
			}
		}
		if df, err = dataset.Replace(df, dataset.FloatSeries(name, values)); err != nil {
			return df, err
		}
	}
	return df, nil
}

func fitClipping(env transformContext, train dataframe.DataFrame, params map[string]any) error {
	cols := columnsOf(env, params)
	if err := requireColumns(train, cols...); err != nil {
		return err
	}
	lo, hi := cast.ToFloat64(params["q_l"]), cast.ToFloat64(params["q_u"])
	if lo > hi {
		return utils.NewConfigError("fit clipping", "q_l %g exceeds q_u %g", lo, hi)
	}
	bounds := make(map[string]any, len(cols))
	for _, name := range cols {
		values := observed(dataset.Floats(train, name))
		if len(values) == 0 {
			continue
		}
		sort.Float64s(values)
		bounds[name] = []any{quantile(values, lo), quantile(values, hi)}
	}
	params["bounds"] = bounds
	return nil
}

func applyClipping(env transformContext, df dataframe.DataFrame, params map[string]any) (dataframe.DataFrame, error) {
	bounds, err := pairMap(params["bounds"])
	if err != nil {
		return df, fmt.Errorf("decode clipping bounds: %w", err)
	}
	for _, name := range columnsOf(env, params) {
		b, ok := bounds[name]
		if !ok {
			continue
		}
		if err := requireColumns(df, name); err != nil {
			return df, err
		}
		values := dataset.Floats(df, name)
		for i, v := range values {
			if !math.IsNaN(v) {
				values[i] = math.Min(math.Max(v, b[0]), b[1])
			}
		}
		if df, err = dataset.Replace(df, dataset.FloatSeries(name, values)); err != nil {
			return df, err
		}
	}
	return df, nil
}

func fitStandardization(env transformContext, train dataframe.DataFrame, params map[string]any) error {
	cols := columnsOf(env, params)
	if err := requireColumns(train, cols...); err != nil {
		return err
	}
	stats := make(map[string]any, len(cols))
	for _, name := range cols {
		values := observed(dataset.Floats(train, name))
		if len(values) < 2 {
			continue
		}
		mean, std := stat.MeanStdDev(values, nil)
		if std == 0 {
			std = 1
		}
		stats[name] = []any{mean, std}
	}
	params["stats"] = stats
	return nil
}

func applyStandardization(env transformContext, df dataframe.DataFrame, params map[string]any) (dataframe.DataFrame, error) {
	stats, err := pairMap(params["stats"])
	if err != nil {
		return df, fmt.Errorf("decode standardization stats: %w", err)
	}
	for _, name := range columnsOf(env, params) {
		s, ok := stats[name]
		if !ok {
			continue
		}
		if err := requireColumns(df, name); err != nil {
			return df, err
		}
		values := dataset.Floats(df, name)
		floats.AddConst(-s[0], values)
		floats.Scale(1/s[1], values)
		if df, err = dataset.Replace(df, dataset.FloatSeries(name, values)); err != nil {
			return df, err
		}
	}
	return df, nil
}

func fitLabelEncoding(env transformContext, train dataframe.DataFrame, params map[string]any) error {
	cols := columnsOf(env, params)
	if err := requireColumns(train, cols...); err != nil {
		return err
	}
	mapping := make(map[string]any, len(cols))
	for _, name := range cols {
		col := train.Col(name)
		missing := col.IsNaN()
		seen := make(map[string]struct{})
		for i, rec := range col.Records() {
			if !missing[i] {
				seen[rec] = struct{}{}
			}
		}
		levels := make([]string, 0, len(seen))
		for level := range seen {
			levels = append(levels, level)
		}
		sort.Strings(levels)
		codes := make(map[string]any, len(levels))
		for code, level := range levels {
			codes[level] = code
		}
		mapping[name] = codes
	}
	params["mapping"] = mapping
	return nil
}

func applyLabelEncoding(env transformContext, df dataframe.DataFrame, params map[string]any) (dataframe.DataFrame, error) {
	mapping, err := cast.ToStringMapE(params["mapping"])
	if err != nil {
		return df, fmt.Errorf("decode label mapping: %w", err)
	}
	unknown := cast.ToInt(params["unknown_value"])
	for _, name := range columnsOf(env, params) {
		raw, ok := mapping[name]
		if !ok {
			continue
		}
		codes, err := cast.ToStringMapIntE(raw)
		if err != nil {
			return df, fmt.Errorf("decode label mapping of %s: %w", name, err)
		}
		if err := requireColumns(df, name); err != nil {
			return df, err
		}
		col := df.Col(name)
		missing := col.IsNaN()
		out := make([]int, col.Len())
		for i, rec := range col.Records() {
			code, ok := codes[rec]
			if missing[i] || !ok {
				code = unknown
			}
			out[i] = code
		}
		if df, err = dataset.Replace(df, dataset.IntSeries(name, out)); err != nil {
			return df, err
		}
	}
	return df, nil
}

func fitDetrending(env transformContext, train dataframe.DataFrame, params map[string]any) error {
	cols := columnsOf(env, params)
	if err := requireColumns(train, cols...); err != nil {
		return err
	}
	days, err := epochDays(train, env.dateColumn)
	if err != nil {
		return err
	}
	coef := make(map[string]any, len(cols))
	for _, name := range cols {
		var xs, ys []float64
		for i, v := range dataset.Floats(train, name) {
			if !math.IsNaN(v) {
				xs = append(xs, days[i])
				ys = append(ys, v)
			}
		}
		if len(xs) < 2 {
			continue
		}
		alpha, beta := stat.LinearRegression(xs, ys, nil, false)
		if math.IsNaN(alpha) || math.IsNaN(beta) {
			continue
		}
		coef[name] = []any{alpha, beta}
	}
	params["coef"] = coef
	return nil
}

func applyDetrending(env transformContext, df dataframe.DataFrame, params map[string]any) (dataframe.DataFrame, error) {
	coef, err := pairMap(params["coef"])
	if err != nil {
		return df, fmt.Errorf("decode detrending coefficients: %w", err)
	}
	days, err := epochDays(df, env.dateColumn)
	if err != nil {
		return df, err
	}
	for _, name := range columnsOf(env, params) {
		c, ok := coef[name]
		if !ok {
			continue
		}
		if err := requireColumns(df, name); err != nil {
			return df, err
		}
		values := dataset.Floats(df, name)
		for i := range values {
			values[i] -= c[0] + c[1]*days[i]
		}
		if df, err = dataset.Replace(df, dataset.FloatSeries(name+"_detrend", values)); err != nil {
			return df, err
		}
	}
	return df, nil
}

func applyCalendar(env transformContext, df dataframe.DataFrame, _ map[string]any) (dataframe.DataFrame, error) {
	if err := requireColumns(df, env.dateColumn); err != nil {
		return df, err
	}
	times, err := dataset.Times(df, env.dateColumn)
	if err != nil {
		return df, err
	}
	dow := make([]int, len(times))
	month := make([]int, len(times))
	doy := make([]int, len(times))
	for i, t := range times {
		dow[i] = (int(t.Weekday()) + 6) % 7
		month[i] = int(t.Month())
		doy[i] = t.YearDay()
	}
	for _, s := range []series.Series{
		dataset.IntSeries("dayofweek", dow),
		dataset.IntSeries("month", month),
		dataset.IntSeries("dayofyear", doy),
	} {
		if df, err = dataset.Replace(df, s); err != nil {
			return df, err
		}
	}
	return df, nil
}

func epochDays(df dataframe.DataFrame, dateColumn string) ([]float64, error) {
	if err := requireColumns(df, dateColumn); err != nil {
		return nil, err
	}
	times, err := dataset.Times(df, dateColumn)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(times))
	for i, t := range times {
		out[i] = utils.DaysSinceEpoch(t)
	}
	return out, nil
}

// quantile of sorted values with linear interpolation.
func quantile(sorted []float64, p float64) float64 {
	switch {
	case p <= 0:
		return sorted[0]
	case p >= 1:
		return sorted[len(sorted)-1]
	}
	return stat.Quantile(p, stat.LinInterp, sorted, nil)
}

// median of values; values is reordered.
func median(values []float64) float64 {
	sort.Float64s(values)
	mid := len(values) / 2
	if len(values)%2 == 1 {
		return values[mid]
	}
	return (values[mid-1] + values[mid]) / 2
}
