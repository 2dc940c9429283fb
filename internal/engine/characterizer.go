package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/go-gota/gota/dataframe"

	"github.com/miradorstack/mirador-prep/internal/dataset"
	"github.com/miradorstack/mirador-prep/internal/extractors"
	"github.com/miradorstack/mirador-prep/internal/metrics"
	"github.com/miradorstack/mirador-prep/internal/models"
	"github.com/miradorstack/mirador-prep/internal/utils"
)

// CharacterizerConfig fixes how a dataset is read as a time series.
type CharacterizerConfig struct {
	DateColumn   string
	IsTimeSeries bool
	// Interval forces the sampling granularity; IntervalAuto infers it.
	Interval models.Interval
}

// Characterizer flags trend, seasonality, monotonicity, linearity and
// missingness on the continuous features of a dataset.
type Characterizer struct {
	logger      *slog.Logger
	cfg         CharacterizerConfig
	resampler   *Resampler
	trend       *extractors.TrendDetector
	linearity   *extractors.LinearityDetector
	seasonality *extractors.SeasonalityDetector
}

// NewCharacterizer wires a Characterizer. Nil detectors take their defaults.
func NewCharacterizer(
	logger *slog.Logger,
	cfg CharacterizerConfig,
	resampler *Resampler,
	trend *extractors.TrendDetector,
	linearity *extractors.LinearityDetector,
	seasonality *extractors.SeasonalityDetector,
) *Characterizer {
	logger = utils.OrDiscard(logger)
	if resampler == nil {
		resampler = NewResampler(logger)
	}
	if trend == nil {
		trend = extractors.NewTrendDetector(0.05)
	}
	if linearity == nil {
		linearity = extractors.NewLinearityDetector(0.95)
	}
	if seasonality == nil {
		seasonality = extractors.NewSeasonalityDetector(5.0, nil)
	}
	return &Characterizer{
		logger:      logger,
		cfg:         cfg,
		resampler:   resampler,
		trend:       trend,
		linearity:   linearity,
		seasonality: seasonality,
	}
}

// Analyze characterizes df. A frame that is not a time series yields an empty
// report; a time series without its date column is a configuration error.
func (c *Characterizer) Analyze(df dataframe.DataFrame) (models.Report, error) {
	report := models.NewReport()
	if !c.cfg.IsTimeSeries {
		return report, nil
	}
	if c.cfg.DateColumn == "" || !dataset.HasColumn(df, c.cfg.DateColumn) {
		return report, utils.NewConfigError("characterize",
			"time series analysis needs date column %q in the dataset", c.cfg.DateColumn)
	}

	targets := dataset.FloatColumns(df, c.cfg.DateColumn)
	report.Targets = targets
	c.logger.Info("auto analysis targets", slog.Any("features", targets))

	for _, name := range targets {
		if dataset.HasMissing(df, name) {
			report.Add(models.FlagMissing, name)
		}
	}

	index, err := dataset.Times(df, c.cfg.DateColumn)
	if err != nil {
		return report, fmt.Errorf("characterize: parse dates: %w", err)
	}
	columns := make(map[string][]float64, len(targets))
	for _, name := range targets {
		columns[name] = dataset.Floats(df, name)
	}

	frame, err := c.resampler.Resample(index, targets, columns, c.cfg.Interval)
	if err != nil {
		return report, fmt.Errorf("characterize: %w", err)
	}
	report.Interval = frame.Interval
	report.Anchor = frame.Anchor
	c.logger.Info("characterizing features",
		slog.String("interval", string(frame.Interval)),
		slog.Int("samples", frame.Len()))

	periods := frame.Interval.SeasonalPeriods()
	for _, name := range targets {
		values := frame.Column(name)
		if allNaN(values) {
			c.logger.Warn("feature has no observed values, skipping", slog.String("feature", name))
			continue
		}

		if res := c.trend.Detect(values); res.H {
			report.Add(models.FlagTrend, name)
		}
		up, down := extractors.Monotonicity(values)
		if up {
			report.Add(models.FlagUpMonotonicity, name)
		}
		if down {
			report.Add(models.FlagDownMonotonicity, name)
		}
		if c.linearity.Detect(values) {
			report.Add(models.FlagLinearity, name)
		}

		if frame.Interval == models.IntervalUnsupported {
			continue
		}
		season, err := c.seasonality.Detect(values, periods)
		switch {
		case errors.Is(err, extractors.ErrNoPeriods):
			c.logger.Warn("series too short for seasonality detection",
				slog.String("feature", name), slog.Int("samples", len(values)))
		case err != nil:
			c.logger.Warn("seasonality detection failed", slog.String("feature", name), slog.Any("error", err))
		case season.Seasonal:
			report.Add(models.FlagSeasonality, name)
		}
	}
	if frame.Interval == models.IntervalUnsupported {
		c.logger.Warn("seasonality detection skipped for unsupported interval")
	}

	metrics.ObserveReport(report)
	return report, nil
}

func allNaN(values []float64) bool {
	for _, v := range values {
		if !math.IsNaN(v) {
			return false
		}
	}
	return true
}
