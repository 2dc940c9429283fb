package engine

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/go-gota/gota/dataframe"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/miradorstack/mirador-prep/internal/dataset"
	"github.com/miradorstack/mirador-prep/internal/metrics"
	"github.com/miradorstack/mirador-prep/internal/utils"
)

// Default collinearity thresholds.
const (
	CorrLowerBound = 0.1
	CorrUpperBound = 0.9
	VIFThreshold   = 10.0
)

// Strategy names a collinearity reduction method.
type Strategy string

const (
	StrategyVIF         Strategy = "vif"
	StrategyCorrelation Strategy = "correlation"
)

// ParseStrategy validates a strategy name; the empty string selects VIF.
func ParseStrategy(value string) (Strategy, error) {
	switch Strategy(value) {
	case "", StrategyVIF:
		return StrategyVIF, nil
	case StrategyCorrelation:
		return StrategyCorrelation, nil
	}
	return "", utils.NewConfigError("parse strategy", "selection strategy must be 'vif' or 'correlation', got %q", value)
}

// VIFFunc computes the variance inflation factor of every column against
// the others. columns[j] holds the values of feature j.
type VIFFunc func(columns [][]float64) []float64

// Reducer removes redundant features from a train/validation pair. Both
// frames always keep the same columns.
type Reducer struct {
	logger     *slog.Logger
	vif        VIFFunc
	lowerBound float64
	upperBound float64
	vifLimit   float64
}

// NewReducer constructs a Reducer; a nil vif selects VarianceInflation.
func NewReducer(logger *slog.Logger, vif VIFFunc) *Reducer {
	logger = utils.OrDiscard(logger)
	if vif == nil {
		vif = VarianceInflation
	}
	return &Reducer{
		logger:     logger,
		vif:        vif,
		lowerBound: CorrLowerBound,
		upperBound: CorrUpperBound,
		vifLimit:   VIFThreshold,
	}
}

// RemoveFeatures dispatches to the reduction named by strategy.
func (r *Reducer) RemoveFeatures(strategy Strategy, train, valid dataframe.DataFrame, target, dateColumn string) (dataframe.DataFrame, dataframe.DataFrame, error) {
	switch strategy {
	case StrategyCorrelation:
		return r.CorrBasedRemoval(train, valid, target, dateColumn)
	case StrategyVIF, "":
		return r.VIFBasedRemoval(train, valid, target, dateColumn)
	}
	return train, valid, utils.NewConfigError("remove features", "unknown selection strategy %q", strategy)
}

// CorrBasedRemoval drops features weakly correlated with target, then
// resolves strongly correlated feature pairs by dropping the member less
// correlated with target.
func (r *Reducer) CorrBasedRemoval(train, valid dataframe.DataFrame, target, dateColumn string) (dataframe.DataFrame, dataframe.DataFrame, error) {
	all, err := dataset.Concat(train, valid)
	if err != nil {
		return train, valid, fmt.Errorf("correlation removal: %w", err)
	}
	if !dataset.HasColumn(all, target) {
		return train, valid, utils.NewConfigError("correlation removal", "target column %q not in dataset", target)
	}

	names := dataset.NumericColumns(all, dateColumn)
	columns := make([][]float64, len(names))
	for i, name := range names {
		columns[i] = dataset.Floats(all, name)
	}
	kept := pruneByCorrelation(names, CorrelationMatrix(columns), target, r.lowerBound, r.upperBound)
	r.logger.Info("correlation based removal",
		slog.Int("features_before", len(names)-1),
		slog.Int("features_after", len(kept)-1))

	cols := append(append([]string(nil), kept...), dataset.StringColumns(all, target, dateColumn)...)
	if dataset.HasColumn(all, dateColumn) {
		cols = append(cols, dateColumn)
	}
	return selectBoth(train, valid, cols)
}

// pruneByCorrelation returns the surviving names, target included, in input
// order. corr is the pairwise correlation matrix over names. A NaN
// correlation with target counts as weak; pairs are visited in order and the
// first resolution wins.
func pruneByCorrelation(names []string, corr [][]float64, target string, lower, upper float64) []string {
	ti := -1
	for i, name := range names {
		if name == target {
			ti = i
		}
	}
	if ti < 0 {
		return append([]string(nil), names...)
	}

	dropped := make([]bool, len(names))
	candidates := make([]int, 0, len(names))
	for i := range names {
		if i == ti {
			continue
		}
		r := corr[i][ti]
		if math.IsNaN(r) || math.Abs(r) < lower {
			dropped[i] = true
			continue
		}
		candidates = append(candidates, i)
	}

	for a := 0; a < len(candidates); a++ {
		for b := a + 1; b < len(candidates); b++ {
			i, j := candidates[a], candidates[b]
			if dropped[i] || dropped[j] || !(math.Abs(corr[i][j]) > upper) {
				continue
			}
			if math.Abs(corr[i][ti]) <= math.Abs(corr[j][ti]) {
				dropped[i] = true
			} else {
				dropped[j] = true
			}
		}
	}

	out := make([]string, 0, len(names))
	for i, name := range names {
		if !dropped[i] {
			out = append(out, name)
		}
	}
	return out
}

// CorrelationMatrix returns pairwise Pearson correlations over the rows
// where both columns are observed. Pairs with fewer than two such rows, or a
// constant side, are NaN.
func CorrelationMatrix(columns [][]float64) [][]float64 {
	k := len(columns)
	out := make([][]float64, k)
	for i := range out {
		out[i] = make([]float64, k)
	}
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			c := pairwiseCorrelation(columns[i], columns[j])
			out[i][j], out[j][i] = c, c
		}
	}
	return out
}

func pairwiseCorrelation(x, y []float64) float64 {
	xs := make([]float64, 0, len(x))
	ys := make([]float64, 0, len(y))
	for i := range x {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			continue
		}
		xs = append(xs, x[i])
		ys = append(ys, y[i])
	}
	if len(xs) < 2 || floats.Max(xs) == floats.Min(xs) || floats.Max(ys) == floats.Min(ys) {
		return math.NaN()
	}
	return stat.Correlation(xs, ys, nil)
}

// VIFBasedRemoval eliminates the feature with the largest variance inflation
// factor while it reaches the limit. Target, date and text columns are never
// candidates and pass through unchanged.
func (r *Reducer) VIFBasedRemoval(train, valid dataframe.DataFrame, target, dateColumn string) (dataframe.DataFrame, dataframe.DataFrame, error) {
	all, err := dataset.Concat(train, valid)
	if err != nil {
		return train, valid, fmt.Errorf("vif removal: %w", err)
	}

	names := dataset.NumericColumns(all, target, dateColumn)
	columns := completeRows(all, names)
	kept := names
	if len(names) > 1 && len(columns[0]) == 0 {
		r.logger.Warn("no complete rows for variance inflation, keeping all features", slog.Int("features", len(names)))
	} else {
		var iterations int
		kept, iterations = EliminateByVIF(names, columns, r.vif, r.vifLimit)
		metrics.ObserveVIFIterations(iterations)
		r.logger.Info("vif based removal",
			slog.Int("features_before", len(names)),
			slog.Int("features_after", len(kept)),
			slog.Int("iterations", iterations))
	}

	cols := append(append([]string(nil), kept...), dataset.StringColumns(all, target, dateColumn)...)
	if dataset.HasColumn(all, dateColumn) {
		cols = append(cols, dateColumn)
	}
	if dataset.HasColumn(all, target) {
		cols = append(cols, target)
	}
	return selectBoth(train, valid, cols)
}

// completeRows extracts names as columns, dropping every row with a missing
// value in any of them.
func completeRows(df dataframe.DataFrame, names []string) [][]float64 {
	raw := make([][]float64, len(names))
	for i, name := range names {
		raw[i] = dataset.Floats(df, name)
	}
	out := make([][]float64, len(names))
	for row := 0; row < df.Nrow(); row++ {
		complete := true
		for _, col := range raw {
			if math.IsNaN(col[row]) {
				complete = false
				break
			}
		}
		if !complete {
			continue
		}
		for i, col := range raw {
			out[i] = append(out[i], col[row])
		}
	}
	for i := range out {
		if out[i] == nil {
			out[i] = []float64{}
		}
	}
	return out
}

// EliminateByVIF repeatedly drops the feature with the largest VIF (NaN
// counts as +Inf, the first maximum wins) while that VIF is at least limit
// and more than one feature remains. Removing a regressor can only lower the
// other VIFs, so the loop stops without recomputing once the remaining stale
// values are all below limit. It returns the kept names and the number of
// vif evaluations.
func EliminateByVIF(names []string, columns [][]float64, vif VIFFunc, limit float64) ([]string, int) {
	active := make([]int, len(names))
	for i := range active {
		active[i] = i
	}
	subset := func() [][]float64 {
		out := make([][]float64, len(active))
		for i, idx := range active {
			out[i] = columns[idx]
		}
		return out
	}

	iterations := 0
	var vifs []float64
	for len(active) > 1 {
		if vifs == nil {
			vifs = vif(subset())
			iterations++
		}
		at, peak := argmaxVIF(vifs)
		if peak < limit {
			break
		}
		active = append(active[:at], active[at+1:]...)
		vifs = append(vifs[:at], vifs[at+1:]...)
		if _, stale := argmaxVIF(vifs); stale < limit {
			break
		}
		vifs = nil
	}

	kept := make([]string, len(active))
	for i, idx := range active {
		kept[i] = names[idx]
	}
	return kept, iterations
}

func argmaxVIF(vifs []float64) (int, float64) {
	at, peak := -1, math.Inf(-1)
	for i, v := range vifs {
		if math.IsNaN(v) {
			v = math.Inf(1)
		}
		if v > peak {
			at, peak = i, v
		}
	}
	return at, peak
}

// VarianceInflation regresses every raw column on the other raw columns by
// SVD least squares, without an intercept, and returns Σy²/SSR. An all-zero
// column or an exact linear dependence yields +Inf.
func VarianceInflation(columns [][]float64) []float64 {
	k := len(columns)
	out := make([]float64, k)
	if k == 0 {
		return out
	}
	n := len(columns[0])

	for i := 0; i < k; i++ {
		y := columns[i]
		total := floats.Dot(y, y)
		if n == 0 || total == 0 {
			out[i] = math.Inf(1)
			continue
		}
		if k == 1 {
			out[i] = 1
			continue
		}

		x := mat.NewDense(n, k-1, nil)
		for col, j := 0, 0; j < k; j++ {
			if j == i {
				continue
			}
			x.SetCol(col, columns[j])
			col++
		}

		var svd mat.SVD
		if !svd.Factorize(x, mat.SVDThin) {
			out[i] = math.Inf(1)
			continue
		}
		rank := svd.Rank(1e-10)
		if rank == 0 {
			out[i] = 1
			continue
		}
		var beta mat.VecDense
		svd.SolveVecTo(&beta, mat.NewVecDense(n, append([]float64(nil), y...)), rank)
		var fitted mat.VecDense
		fitted.MulVec(x, &beta)

		resid := make([]float64, n)
		floats.SubTo(resid, y, fitted.RawVector().Data)
		ratio := floats.Dot(resid, resid) / total
		if ratio <= 1e-12 {
			out[i] = math.Inf(1)
			continue
		}
		out[i] = 1 / ratio
	}
	return out
}

func selectBoth(train, valid dataframe.DataFrame, cols []string) (dataframe.DataFrame, dataframe.DataFrame, error) {
	outTrain, err := dataset.Select(train, cols)
	if err != nil {
		return train, valid, err
	}
	outValid, err := dataset.Select(valid, cols)
	if err != nil {
		return train, valid, err
	}
	return outTrain, outValid, nil
}
