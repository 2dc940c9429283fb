package repo

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"

	"github.com/miradorstack/mirador-prep/internal/models"
	"github.com/miradorstack/mirador-prep/internal/utils"
)

// DefaultLogPath places the decision log next to the dataset, replacing its
// extension with .json.
func DefaultLogPath(datasetPath string) string {
	return strings.TrimSuffix(datasetPath, filepath.Ext(datasetPath)) + ".json"
}

// DecisionLogStore keeps one decision log as a JSON file.
type DecisionLogStore struct {
	path string
}

// NewDecisionLogStore constructs a store for path.
func NewDecisionLogStore(path string) *DecisionLogStore {
	return &DecisionLogStore{path: path}
}

// Path returns the file location.
func (s *DecisionLogStore) Path() string {
	return s.path
}

// Load reads the log. A missing file yields utils.ErrNotFound; unreadable or
// malformed content is returned as an error and the caller treats it as no
// prior decisions.
func (s *DecisionLogStore) Load() (models.DecisionLog, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return models.DecisionLog{}, fmt.Errorf("decision log %s: %w", s.path, utils.ErrNotFound)
	}
	if err != nil {
		return models.DecisionLog{}, fmt.Errorf("read decision log: %w", err)
	}

	var log models.DecisionLog
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&log); err != nil {
		return models.DecisionLog{}, fmt.Errorf("decode decision log %s: %w", s.path, err)
	}
	return log, nil
}

// Save replaces the log with log. The file is written to a temporary
// sibling first and renamed into place.
func (s *DecisionLogStore) Save(log models.DecisionLog) error {
	if log.Preprocessors == nil {
		log.Preprocessors = models.PreprocessorState{}
	}
	if log.Features == nil {
		log.Features = []string{}
	}
	data, err := json.MarshalIndent(log, "", "  ")
	if err != nil {
		return fmt.Errorf("encode decision log: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create decision log dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp decision log: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write decision log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close decision log: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace decision log: %w", err)
	}
	return nil
}
