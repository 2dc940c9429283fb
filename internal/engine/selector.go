package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/google/uuid"

	"github.com/miradorstack/mirador-prep/internal/dataset"
	"github.com/miradorstack/mirador-prep/internal/metrics"
	"github.com/miradorstack/mirador-prep/internal/models"
	"github.com/miradorstack/mirador-prep/internal/utils"
)

// Collaborator loads, checks and transforms datasets. Its fitted state is
// opaque to the selector and round-trips through the decision log.
type Collaborator interface {
	LoadDataset(path string) (dataframe.DataFrame, error)
	CheckData(df dataframe.DataFrame, isTimeSeries bool) error
	SetPreprocessors(state models.PreprocessorState)
	Preprocessors() models.PreprocessorState
	Apply(train, valid dataframe.DataFrame, target string) (dataframe.DataFrame, dataframe.DataFrame, error)
}

// DecisionStore persists the decision log of one dataset.
type DecisionStore interface {
	Load() (models.DecisionLog, error)
	Save(log models.DecisionLog) error
	Path() string
}

// RunRecorder journals completed runs.
type RunRecorder interface {
	RecordRun(ctx context.Context, rec models.RunRecord) error
}

// Mode is either Fresh or Replay.
type Mode interface {
	Name() string
}

// Fresh recomputes preprocessing and feature selection from scratch.
type Fresh struct{}

// Name implements Mode.
func (Fresh) Name() string { return "fresh" }

// Replay reuses the transforms and feature list of a previous run.
type Replay struct {
	Log models.DecisionLog
}

// Name implements Mode.
func (Replay) Name() string { return "replay" }

// ResolveMode selects Replay when log carries a feature list.
func ResolveMode(log models.DecisionLog) Mode {
	if log.Empty() {
		return Fresh{}
	}
	return Replay{Log: log}
}

// SelectionRequest carries the run-time parameters of one selection.
type SelectionRequest struct {
	DatasetPath    string
	Target         string
	DateColumn     string
	IsTimeSeries   bool
	AutoPreprocess bool
	TestSize       float64
	Seed           int64
	Strategy       Strategy
	SaveDir        string
}

// SelectionResult is the final frame pair and its provenance.
type SelectionResult struct {
	RunID        string
	Mode         string
	Train        dataframe.DataFrame
	Valid        dataframe.DataFrame
	Features     []string
	Original     int
	Preprocessed int
	Selected     int
}

// Selector runs the split, preprocess and feature selection flow.
type Selector struct {
	logger  *slog.Logger
	collab  Collaborator
	reducer *Reducer
	store   DecisionStore
	journal RunRecorder
	now     func() time.Time
}

// NewSelector constructs a Selector. store and journal are optional.
func NewSelector(logger *slog.Logger, collab Collaborator, reducer *Reducer, store DecisionStore, journal RunRecorder) *Selector {
	logger = utils.OrDiscard(logger)
	if reducer == nil {
		reducer = NewReducer(logger, nil)
	}
	return &Selector{
		logger:  logger,
		collab:  collab,
		reducer: reducer,
		store:   store,
		journal: journal,
		now:     time.Now,
	}
}

// Generate loads the prior decision log, resolves the mode and runs the
// selection. A missing or unreadable log means a fresh run.
func (s *Selector) Generate(ctx context.Context, req SelectionRequest) (SelectionResult, error) {
	if err := validateRequest(req); err != nil {
		return SelectionResult{}, err
	}
	mode := Mode(Fresh{})
	if req.AutoPreprocess && s.store != nil {
		log, err := s.store.Load()
		switch {
		case err == nil:
			mode = ResolveMode(log)
		case errors.Is(err, utils.ErrNotFound):
			s.logger.Debug("no decision log, running fresh", slog.String("path", s.store.Path()))
		default:
			s.logger.Warn("decision log unreadable, running fresh", slog.String("path", s.store.Path()), slog.Any("error", err))
		}
	}
	return s.Run(ctx, req, mode)
}

// Run executes the selection in mode.
func (s *Selector) Run(ctx context.Context, req SelectionRequest, mode Mode) (SelectionResult, error) {
	if err := validateRequest(req); err != nil {
		return SelectionResult{}, err
	}
	if s.collab == nil {
		return SelectionResult{}, fmt.Errorf("preprocessing collaborator not configured")
	}

	start := s.now()
	var (
		res SelectionResult
		err error
	)
	if req.AutoPreprocess {
		res, err = s.auto(ctx, req, mode)
	} else {
		mode = Fresh{}
		res, err = s.manual(req)
	}
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
	}
	metrics.ObserveRun(s.now().Sub(start), mode.Name(), outcome)
	if err != nil {
		return SelectionResult{}, err
	}

	res.Mode = mode.Name()
	if err := s.save(req.SaveDir, res); err != nil {
		return SelectionResult{}, err
	}
	return res, nil
}

func (s *Selector) auto(ctx context.Context, req SelectionRequest, mode Mode) (SelectionResult, error) {
	df, err := s.collab.LoadDataset(req.DatasetPath)
	if err != nil {
		return SelectionResult{}, fmt.Errorf("load dataset: %w", err)
	}
	if !dataset.HasColumn(df, req.Target) {
		return SelectionResult{}, utils.NewConfigError("select features", "target column %q not in dataset", req.Target)
	}
	res := SelectionResult{Original: df.Ncol() - 1}
	s.logger.Info("original dataset", slog.Int("n_features", res.Original))

	replay, isReplay := mode.(Replay)
	if isReplay && len(replay.Log.Preprocessors) > 0 {
		s.collab.SetPreprocessors(replay.Log.Preprocessors.Clone())
	} else if err := s.collab.CheckData(df, req.IsTimeSeries); err != nil {
		return SelectionResult{}, fmt.Errorf("check data: %w", err)
	}

	train, valid, err := dataset.Split(df, req.TestSize, req.Seed)
	if err != nil {
		return SelectionResult{}, err
	}
	train, valid, err = s.collab.Apply(train, valid, req.Target)
	if err != nil {
		return SelectionResult{}, fmt.Errorf("apply preprocessors: %w", err)
	}
	res.Preprocessed = train.Ncol() - 1
	s.logger.Info("preprocessed dataset", slog.Int("n_features", res.Preprocessed))

	if isReplay {
		train, valid, err = restrict(train, valid, replay.Log.Features)
	} else {
		train, valid, err = s.reducer.RemoveFeatures(req.Strategy, train, valid, req.Target, req.DateColumn)
	}
	if err != nil {
		return SelectionResult{}, fmt.Errorf("remove features: %w", err)
	}
	res.Train, res.Valid = train, valid
	res.Features = train.Names()
	res.Selected = len(res.Features) - 1
	s.logger.Info("selected features", slog.Int("n_features", res.Selected), slog.String("mode", mode.Name()))
	metrics.SetFeatureCounts(res.Original, res.Preprocessed, res.Selected)

	res.RunID = uuid.NewString()
	logPath := ""
	if s.store != nil {
		logPath = s.store.Path()
		decision := models.DecisionLog{Preprocessors: s.collab.Preprocessors(), Features: res.Features}
		if err := s.store.Save(decision); err != nil {
			return SelectionResult{}, fmt.Errorf("persist decision log: %w", err)
		}
	}
	if s.journal != nil {
		rec := models.RunRecord{
			ID:           res.RunID,
			DatasetPath:  req.DatasetPath,
			LogPath:      logPath,
			Mode:         mode.Name(),
			Strategy:     string(req.Strategy),
			Original:     res.Original,
			Preprocessed: res.Preprocessed,
			Selected:     res.Selected,
			Features:     res.Features,
			CreatedAt:    s.now().UTC(),
		}
		if err := s.journal.RecordRun(ctx, rec); err != nil {
			s.logger.Warn("run journal write failed", slog.String("run_id", res.RunID), slog.Any("error", err))
		}
	}
	return res, nil
}

func (s *Selector) manual(req SelectionRequest) (SelectionResult, error) {
	df, err := s.collab.LoadDataset(req.DatasetPath)
	if err != nil {
		return SelectionResult{}, fmt.Errorf("load dataset: %w", err)
	}
	res := SelectionResult{Original: df.Ncol() - 1}

	train, valid, err := dataset.Split(df, req.TestSize, req.Seed)
	if err != nil {
		return SelectionResult{}, err
	}
	if req.IsTimeSeries {
		s.collab.SetPreprocessors(models.PreprocessorState{"todatetime": {}})
		train, valid, err = s.collab.Apply(train, valid, req.Target)
		if err != nil {
			return SelectionResult{}, fmt.Errorf("apply preprocessors: %w", err)
		}
	}
	res.Train, res.Valid = train, valid
	res.Features = train.Names()
	res.Preprocessed = len(res.Features) - 1
	res.Selected = res.Preprocessed
	res.RunID = uuid.NewString()
	return res, nil
}

func (s *Selector) save(dir string, res SelectionResult) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create save dir: %w", err)
	}
	if err := dataset.WriteCSV(res.Train, filepath.Join(dir, "train.csv")); err != nil {
		return err
	}
	if err := dataset.WriteCSV(res.Valid, filepath.Join(dir, "valid.csv")); err != nil {
		return err
	}
	s.logger.Info("saved frames", slog.String("dir", dir))
	return nil
}

func restrict(train, valid dataframe.DataFrame, features []string) (dataframe.DataFrame, dataframe.DataFrame, error) {
	for _, name := range features {
		if !dataset.HasColumn(train, name) {
			return train, valid, fmt.Errorf("replayed feature %q not in preprocessed data", name)
		}
	}
	return selectBoth(train, valid, features)
}

func validateRequest(req SelectionRequest) error {
	if req.Target == "" {
		return utils.NewConfigError("select features", "target column is required")
	}
	if req.TestSize <= 0 || req.TestSize >= 1 {
		return utils.NewConfigError("select features", "test size must be in (0, 1), got %g", req.TestSize)
	}
	if _, err := ParseStrategy(string(req.Strategy)); err != nil {
		return err
	}
	if req.IsTimeSeries && req.DateColumn == "" {
		return utils.NewConfigError("select features", "time series mode needs a date column")
	}
	return nil
}
