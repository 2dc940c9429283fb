package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-prep/internal/config"
	"github.com/miradorstack/mirador-prep/internal/metrics"
	"github.com/miradorstack/mirador-prep/internal/utils"
)

// runFlags mirrors the config fields that can be overridden per invocation.
type runFlags struct {
	configPath      string
	dataset         string
	target          string
	dateColumn      string
	timeSeries      bool
	interval        string
	logPath         string
	noAuto          bool
	testSize        float64
	seed            int64
	strategy        string
	saveDir         string
	journalPath     string
	metricsTextfile string
}

func main() {
	_ = godotenv.Load() // .env is optional

	flags := &runFlags{}
	root := &cobra.Command{
		Use:           "prep-engine",
		Short:         "Feature characterization and reproducible feature selection",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "Path to YAML configuration file")
	pf.StringVar(&flags.dataset, "dataset", "", "Path to the CSV dataset")
	pf.StringVar(&flags.target, "target", "", "Target column name")
	pf.StringVar(&flags.dateColumn, "date-column", "", "Date column name")
	pf.BoolVar(&flags.timeSeries, "time-series", false, "Treat the dataset as a time series")
	pf.StringVar(&flags.interval, "interval", "", "Sampling interval (monthly, weekly, daily, hourly); empty infers it")

	root.AddCommand(newAnalyzeCmd(flags))
	root.AddCommand(newSelectCmd(flags))
	root.AddCommand(newHistoryCmd(flags))

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if utils.IsConfigError(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies the flags that were set.
func loadConfig(cmd *cobra.Command, flags *runFlags) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, nil, err
	}
	changed := cmd.Flags().Changed
	if changed("dataset") {
		cfg.Dataset.Path = flags.dataset
	}
	if changed("target") {
		cfg.Dataset.Target = flags.target
	}
	if changed("date-column") {
		cfg.Dataset.DateColumn = flags.dateColumn
	}
	if changed("time-series") {
		cfg.Dataset.TimeSeries = flags.timeSeries
	}
	if changed("interval") {
		cfg.Dataset.Interval = flags.interval
	}
	if changed("log-path") {
		cfg.Selection.LogPath = flags.logPath
	}
	if changed("no-auto") {
		cfg.Selection.AutoPreprocess = !flags.noAuto
	}
	if changed("test-size") {
		cfg.Selection.TestSize = flags.testSize
	}
	if changed("seed") {
		cfg.Selection.Seed = flags.seed
	}
	if changed("strategy") {
		cfg.Selection.Strategy = flags.strategy
	}
	if changed("save-dir") {
		cfg.Selection.SaveDir = flags.saveDir
	}
	if changed("journal") {
		cfg.Journal.Path = flags.journalPath
	}
	if changed("metrics-textfile") {
		cfg.Metrics.TextfilePath = flags.metricsTextfile
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	if cfg.Dataset.Path == "" {
		return nil, nil, utils.NewConfigError("load config", "dataset path is required (--dataset or dataset.path)")
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	return cfg, logger, nil
}

// flushMetrics writes the textfile when configured; failures are logged only.
func flushMetrics(cfg *config.Config, reg *prometheus.Registry, logger *slog.Logger) {
	if cfg.Metrics.TextfilePath == "" {
		return
	}
	if err := metrics.WriteTextfile(cfg.Metrics.TextfilePath, reg); err != nil {
		logger.Warn("metrics textfile write failed", slog.String("path", cfg.Metrics.TextfilePath), slog.Any("error", err))
	}
}

func newRegistry(logger *slog.Logger) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		logger.Warn("failed to register metrics", slog.Any("error", err))
	}
	return reg
}
