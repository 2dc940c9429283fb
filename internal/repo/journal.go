package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"github.com/miradorstack/mirador-prep/internal/models"
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS selection_runs (
	run_id               TEXT PRIMARY KEY,
	dataset_path         TEXT NOT NULL,
	log_path             TEXT,
	mode                 TEXT NOT NULL,
	strategy             TEXT,
	n_original           INTEGER NOT NULL,
	n_preprocessed       INTEGER NOT NULL,
	n_selected           INTEGER NOT NULL,
	features_json        TEXT NOT NULL,
	created_at           TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_selection_runs_dataset ON selection_runs(dataset_path, created_at);
`

// Journal records selection runs in SQLite.
type Journal struct {
	db *sql.DB
}

// OpenJournal opens a SQLite database and runs migrations.
func OpenJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(journalSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// RecordRun inserts rec.
func (j *Journal) RecordRun(ctx context.Context, rec models.RunRecord) error {
	features, err := json.Marshal(rec.Features)
	if err != nil {
		return fmt.Errorf("encode features: %w", err)
	}
	_, err = j.db.ExecContext(ctx,
		`INSERT INTO selection_runs
			(run_id, dataset_path, log_path, mode, strategy, n_original, n_preprocessed, n_selected, features_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.DatasetPath, rec.LogPath, rec.Mode, rec.Strategy,
		rec.Original, rec.Preprocessed, rec.Selected, string(features),
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", rec.ID, err)
	}
	return nil
}

// Runs returns up to limit runs for datasetPath, newest first.
func (j *Journal) Runs(ctx context.Context, datasetPath string, limit int) ([]models.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT run_id, dataset_path, log_path, mode, strategy, n_original, n_preprocessed, n_selected, features_json, created_at
		FROM selection_runs WHERE dataset_path = ? ORDER BY created_at DESC LIMIT ?`,
		datasetPath, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []models.RunRecord
	for rows.Next() {
		var (
			rec          models.RunRecord
			logPath      sql.NullString
			strategy     sql.NullString
			featuresJSON string
			createdAt    string
		)
		if err := rows.Scan(&rec.ID, &rec.DatasetPath, &logPath, &rec.Mode, &strategy,
			&rec.Original, &rec.Preprocessed, &rec.Selected, &featuresJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rec.LogPath = logPath.String
		rec.Strategy = strategy.String
		if err := json.Unmarshal([]byte(featuresJSON), &rec.Features); err != nil {
			return nil, fmt.Errorf("decode features of run %s: %w", rec.ID, err)
		}
		rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at of run %s: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
