package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-prep/internal/models"
	"github.com/miradorstack/mirador-prep/internal/utils"
)

// Config captures the settings of a characterization or selection run.
type Config struct {
	Dataset    DatasetConfig    `yaml:"dataset"`
	Selection  SelectionConfig  `yaml:"selection"`
	Preprocess PreprocessConfig `yaml:"preprocess"`
	Logging    LoggingConfig    `yaml:"logging"`
	Journal    JournalConfig    `yaml:"journal"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// DatasetConfig describes the input frame.
type DatasetConfig struct {
	Path       string `yaml:"path"`
	Target     string `yaml:"target"`
	DateColumn string `yaml:"dateColumn"`
	TimeSeries bool   `yaml:"timeSeries"`
	// Interval is monthly, weekly, daily or hourly; empty infers it.
	Interval string `yaml:"interval"`
}

// SelectionConfig controls the split and feature selection.
type SelectionConfig struct {
	AutoPreprocess bool    `yaml:"autoPreprocess"`
	LogPath        string  `yaml:"logPath"`
	TestSize       float64 `yaml:"testSize"`
	Seed           int64   `yaml:"seed"`
	Strategy       string  `yaml:"strategy"`
	SaveDir        string  `yaml:"saveDir"`
}

// PreprocessConfig holds per-transform options, keyed by transform name.
type PreprocessConfig struct {
	Options map[string]map[string]any `yaml:"options"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// JournalConfig enables the SQLite run journal when Path is set.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// MetricsConfig enables the Prometheus textfile dump when TextfilePath is set.
type MetricsConfig struct {
	TextfilePath string `yaml:"textfilePath"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("PREP_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// Validate reports the first configuration error.
func (c *Config) Validate() error {
	if _, err := models.ParseInterval(c.Dataset.Interval); err != nil {
		return err
	}
	if c.Selection.TestSize <= 0 || c.Selection.TestSize >= 1 {
		return utils.NewConfigError("validate config", "selection.testSize must be in (0, 1), got %g", c.Selection.TestSize)
	}
	switch c.Selection.Strategy {
	case "", "vif", "correlation":
	default:
		return utils.NewConfigError("validate config", "selection.strategy must be 'vif' or 'correlation', got %q", c.Selection.Strategy)
	}
	if c.Dataset.TimeSeries && c.Dataset.DateColumn == "" {
		return utils.NewConfigError("validate config", "dataset.dateColumn is required for time series")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Dataset: DatasetConfig{
			Target:     "target",
			DateColumn: "date",
		},
		Selection: SelectionConfig{
			AutoPreprocess: true,
			TestSize:       0.2,
			Seed:           42,
			Strategy:       "vif",
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PREP_DATASET_PATH"); v != "" {
		cfg.Dataset.Path = v
	}
	if v := os.Getenv("PREP_TARGET"); v != "" {
		cfg.Dataset.Target = v
	}
	if v := os.Getenv("PREP_DATE_COLUMN"); v != "" {
		cfg.Dataset.DateColumn = v
	}
	if v := os.Getenv("PREP_TIME_SERIES"); v != "" {
		cfg.Dataset.TimeSeries = parseBool(v)
	}
	if v := os.Getenv("PREP_INTERVAL"); v != "" {
		cfg.Dataset.Interval = v
	}
	if v := os.Getenv("PREP_AUTO_PREPROCESS"); v != "" {
		cfg.Selection.AutoPreprocess = parseBool(v)
	}
	if v := os.Getenv("PREP_LOG_PATH"); v != "" {
		cfg.Selection.LogPath = v
	}
	if v := os.Getenv("PREP_TEST_SIZE"); v != "" {
		if size, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Selection.TestSize = size
		}
	}
	if v := os.Getenv("PREP_SEED"); v != "" {
		if seed, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Selection.Seed = seed
		}
	}
	if v := os.Getenv("PREP_STRATEGY"); v != "" {
		cfg.Selection.Strategy = v
	}
	if v := os.Getenv("PREP_SAVE_DIR"); v != "" {
		cfg.Selection.SaveDir = v
	}
	if v := os.Getenv("PREP_JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}
	if v := os.Getenv("PREP_METRICS_TEXTFILE"); v != "" {
		cfg.Metrics.TextfilePath = v
	}
	if v := os.Getenv("PREP_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PREP_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
}

func parseBool(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}
