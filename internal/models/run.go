package models

import "time"

// RunRecord is a journal entry describing one selection run.
type RunRecord struct {
	ID           string    `json:"id"`
	DatasetPath  string    `json:"dataset_path"`
	LogPath      string    `json:"log_path"`
	Mode         string    `json:"mode"`
	Strategy     string    `json:"strategy"`
	Original     int       `json:"n_features_original"`
	Preprocessed int       `json:"n_features_preprocessed"`
	Selected     int       `json:"n_features_selected"`
	Features     []string  `json:"features"`
	CreatedAt    time.Time `json:"created_at"`
}
