package main

import (
	"context"
	"fmt"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-prep/internal/config"
	"github.com/miradorstack/mirador-prep/internal/dataset"
	"github.com/miradorstack/mirador-prep/internal/engine"
	"github.com/miradorstack/mirador-prep/internal/models"
	"github.com/miradorstack/mirador-prep/internal/preprocess"
	"github.com/miradorstack/mirador-prep/internal/repo"
)

func newCharacterizer(cfg *config.Config, logger *slog.Logger) *engine.Characterizer {
	// Interval was validated with the rest of the config.
	interval, _ := models.ParseInterval(cfg.Dataset.Interval)
	return engine.NewCharacterizer(logger, engine.CharacterizerConfig{
		DateColumn:   cfg.Dataset.DateColumn,
		IsTimeSeries: cfg.Dataset.TimeSeries,
		Interval:     interval,
	}, nil, nil, nil, nil)
}

func newAnalyzeCmd(flags *runFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Characterize the continuous features of a time series and print the flag report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			reg := newRegistry(logger)
			defer flushMetrics(cfg, reg, logger)

			df, err := dataset.LoadCSV(cfg.Dataset.Path, cfg.Dataset.DateColumn)
			if err != nil {
				return err
			}
			report, err := newCharacterizer(cfg, logger).Analyze(df)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return fmt.Errorf("encode report: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func newSelectCmd(flags *runFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "select",
		Short: "Split, preprocess and reduce the dataset, persisting or replaying the decision log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			reg := newRegistry(logger)
			defer flushMetrics(cfg, reg, logger)

			collab, err := preprocess.New(logger, newCharacterizer(cfg, logger), cfg.Dataset.DateColumn, cfg.Preprocess.Options)
			if err != nil {
				return err
			}
			logPath := cfg.Selection.LogPath
			if logPath == "" {
				logPath = repo.DefaultLogPath(cfg.Dataset.Path)
			}
			store := repo.NewDecisionLogStore(logPath)

			var journal engine.RunRecorder
			if cfg.Journal.Path != "" {
				j, err := repo.OpenJournal(cfg.Journal.Path)
				if err != nil {
					logger.Warn("run journal unavailable", slog.String("path", cfg.Journal.Path), slog.Any("error", err))
				} else {
					defer j.Close()
					journal = j
				}
			}

			strategy, err := engine.ParseStrategy(cfg.Selection.Strategy)
			if err != nil {
				return err
			}
			selector := engine.NewSelector(logger, collab, engine.NewReducer(logger, nil), store, journal)

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Minute)
			defer cancel()
			res, err := selector.Generate(ctx, engine.SelectionRequest{
				DatasetPath:    cfg.Dataset.Path,
				Target:         cfg.Dataset.Target,
				DateColumn:     cfg.Dataset.DateColumn,
				IsTimeSeries:   cfg.Dataset.TimeSeries,
				AutoPreprocess: cfg.Selection.AutoPreprocess,
				TestSize:       cfg.Selection.TestSize,
				Seed:           cfg.Selection.Seed,
				Strategy:       strategy,
				SaveDir:        cfg.Selection.SaveDir,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s (%s)\n", res.RunID, res.Mode)
			fmt.Fprintf(out, "features: %d original, %d preprocessed, %d selected\n", res.Original, res.Preprocessed, res.Selected)
			fmt.Fprintf(out, "train %d rows, validation %d rows\n", res.Train.Nrow(), res.Valid.Nrow())
			for _, name := range res.Features {
				fmt.Fprintf(out, "  %s\n", name)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.logPath, "log-path", "", "Decision log path (default: dataset path with .json extension)")
	f.BoolVar(&flags.noAuto, "no-auto", false, "Skip automatic preprocessing and feature selection")
	f.Float64Var(&flags.testSize, "test-size", 0.2, "Validation share of the rows")
	f.Int64Var(&flags.seed, "seed", 42, "Shuffle seed")
	f.StringVar(&flags.strategy, "strategy", "vif", "Collinearity reduction strategy (vif, correlation)")
	f.StringVar(&flags.saveDir, "save-dir", "", "Directory for train.csv and valid.csv")
	f.StringVar(&flags.journalPath, "journal", "", "SQLite run journal path")
	f.StringVar(&flags.metricsTextfile, "metrics-textfile", "", "Prometheus textfile output path")
	return cmd
}

func newHistoryCmd(flags *runFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List journaled selection runs of the dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			if cfg.Journal.Path == "" {
				return fmt.Errorf("no run journal configured (--journal or journal.path)")
			}
			j, err := repo.OpenJournal(cfg.Journal.Path)
			if err != nil {
				return err
			}
			defer j.Close()

			runs, err := j.Runs(cmd.Context(), cfg.Dataset.Path, limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tCREATED\tMODE\tSTRATEGY\tSELECTED")
			for _, run := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", run.ID, run.CreatedAt.Format(time.RFC3339), run.Mode, run.Strategy, run.Selected)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&flags.journalPath, "journal", "", "SQLite run journal path")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list")
	return cmd
}

