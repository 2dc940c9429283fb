// Package preprocess is the default CSV-backed preprocessing collaborator.
// It chooses transforms from the characterization report, fits them on the
// training rows and keeps the fitted parameters as JSON-friendly state so a
// decision log can replay them.
package preprocess

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/go-gota/gota/dataframe"

	"github.com/miradorstack/mirador-prep/internal/dataset"
	"github.com/miradorstack/mirador-prep/internal/models"
	"github.com/miradorstack/mirador-prep/internal/utils"
)

// Analyzer characterizes a dataset.
type Analyzer interface {
	Analyze(df dataframe.DataFrame) (models.Report, error)
}

// Options configures transforms, keyed by transform name then option key.
type Options map[string]map[string]any

// Preprocessor implements the engine collaborator contract.
type Preprocessor struct {
	logger     *slog.Logger
	analyzer   Analyzer
	dateColumn string
	options    map[string]map[string]any
	requested  Options
	state      models.PreprocessorState
	report     models.Report
}

// New validates options and constructs a Preprocessor. An unknown transform
// or option key, or an option value of the wrong kind, is a configuration
// error.
func New(logger *slog.Logger, analyzer Analyzer, dateColumn string, options Options) (*Preprocessor, error) {
	resolved := make(map[string]map[string]any, len(registry))
	for name, t := range registry {
		params := make(map[string]any, len(t.options))
		for key, opt := range t.options {
			params[key] = opt.def
		}
		resolved[name] = params
	}
	for name, given := range options {
		t, ok := registry[name]
		if !ok {
			return nil, utils.NewConfigError("preprocess options", "unknown transform %q (known: %v)", name, transformNames())
		}
		for key, value := range given {
			opt, ok := t.options[key]
			if !ok {
				return nil, utils.NewConfigError("preprocess options", "transform %q has no option %q", name, key)
			}
			v, err := opt.coerce(value)
			if err != nil {
				return nil, utils.NewConfigError("preprocess options", "transform %q option %q: %v", name, key, err)
			}
			resolved[name][key] = v
		}
	}

	return &Preprocessor{
		logger:     utils.OrDiscard(logger),
		analyzer:   analyzer,
		dateColumn: dateColumn,
		options:    resolved,
		requested:  options,
		state:      models.PreprocessorState{},
		report:     models.NewReport(),
	}, nil
}

// LoadDataset reads a CSV dataset.
func (p *Preprocessor) LoadDataset(path string) (dataframe.DataFrame, error) {
	df, err := dataset.LoadCSV(path, p.dateColumn)
	if err != nil {
		return df, err
	}
	p.logger.Debug("dataset loaded", slog.String("path", path), slog.Int("rows", df.Nrow()), slog.Int("columns", df.Ncol()))
	return df, nil
}

// CheckData chooses the transforms for df and resets the fitted state.
func (p *Preprocessor) CheckData(df dataframe.DataFrame, isTimeSeries bool) error {
	state := models.PreprocessorState{}
	report := models.NewReport()
	continuous := dataset.FloatColumns(df, p.dateColumn)

	if isTimeSeries {
		if p.dateColumn == "" || !dataset.HasColumn(df, p.dateColumn) {
			return utils.NewConfigError("check data", "time series mode needs date column %q in the dataset", p.dateColumn)
		}
		if p.analyzer != nil {
			var err error
			if report, err = p.analyzer.Analyze(df); err != nil {
				return err
			}
		}
		state[TransformToDatetime] = p.params(TransformToDatetime, nil)
	}

	missing := report.Flags[models.FlagMissing]
	if !isTimeSeries || p.analyzer == nil {
		missing = nil
		for _, name := range continuous {
			if dataset.HasMissing(df, name) {
				missing = append(missing, name)
			}
		}
	}
	if len(missing) > 0 {
		state[TransformImputation] = p.params(TransformImputation, missing)
	}
	if len(continuous) > 0 {
		state[TransformClipping] = p.params(TransformClipping, continuous)
	}
	if text := dataset.StringColumns(df, p.dateColumn); len(text) > 0 {
		state[TransformLabelEncoding] = p.params(TransformLabelEncoding, text)
	}
	if _, ok := p.requested[TransformStandardization]; ok && len(continuous) > 0 {
		state[TransformStandardization] = p.params(TransformStandardization, continuous)
	}
	if isTimeSeries {
		if linear := report.Flags[models.FlagLinearity]; len(linear) > 0 {
			state[TransformDetrending] = p.params(TransformDetrending, linear)
		}
		if report.Any(models.FlagSeasonality) {
			state[TransformCalendar] = p.params(TransformCalendar, nil)
		}
	}

	p.state = state
	p.report = report
	names := make([]string, 0, len(state))
	for name := range state {
		names = append(names, name)
	}
	sort.Strings(names)
	p.logger.Info("preprocessors selected", slog.Any("transforms", names))
	return nil
}

func (p *Preprocessor) params(name string, columns []string) map[string]any {
	out := make(map[string]any, len(p.options[name])+1)
	for k, v := range p.options[name] {
		out[k] = v
	}
	if columns != nil {
		out[keyColumns] = append([]string(nil), columns...)
	}
	return out
}

// Report returns the characterization report of the last CheckData.
func (p *Preprocessor) Report() models.Report {
	return p.report
}

// SetPreprocessors replaces the transform state.
func (p *Preprocessor) SetPreprocessors(state models.PreprocessorState) {
	p.state = state.Clone()
}

// Preprocessors returns a copy of the transform state, fitted parameters
// included once Apply has run.
func (p *Preprocessor) Preprocessors() models.PreprocessorState {
	return p.state.Clone()
}

// Apply fits every unfitted transform on train and applies all of them to
// both frames in a fixed order. The target column is never transformed.
func (p *Preprocessor) Apply(train, valid dataframe.DataFrame, target string) (dataframe.DataFrame, dataframe.DataFrame, error) {
	for name := range p.state {
		if _, ok := registry[name]; !ok {
			return train, valid, utils.NewConfigError("apply preprocessors", "unknown transform %q in state", name)
		}
	}
	for _, name := range applyOrder {
		params, ok := p.state[name]
		if !ok {
			continue
		}
		if params == nil {
			params = map[string]any{}
			p.state[name] = params
		}
		t := registry[name]
		env := transformContext{dateColumn: p.dateColumn, target: target}

		if t.fit != nil && !fitted(params, t.fitKey) {
			if err := t.fit(env, train, params); err != nil {
				return train, valid, fmt.Errorf("fit %s: %w", name, err)
			}
		}
		var err error
		if train, err = t.apply(env, train, params); err != nil {
			return train, valid, fmt.Errorf("apply %s to train: %w", name, err)
		}
		if valid, err = t.apply(env, valid, params); err != nil {
			return train, valid, fmt.Errorf("apply %s to valid: %w", name, err)
		}
		p.logger.Debug("transform applied", slog.String("transform", name))
	}
	return train, valid, nil
}

func fitted(params map[string]any, key string) bool {
	if key == "" {
		return true
	}
	_, ok := params[key]
	return ok
}

func transformNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
