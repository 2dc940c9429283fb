package utils

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"
)

func TestParseTimestampLayouts(t *testing.T) {
	want := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	for _, value := range []string{"2024-03-05", "2024/03/05", "2024-03-05 00:00:00", "2024-03-05T00:00:00Z"} {
		got, err := ParseTimestamp(value)
		if err != nil {
			t.Fatalf("parse %q: %v", value, err)
		}
		if !got.Equal(want) {
			t.Fatalf("parse %q: expected %v, got %v", value, want, got)
		}
	}
	if _, err := ParseTimestamp("yesterday"); err == nil {
		t.Fatalf("expected error for unsupported layout")
	}
}

func TestConfigErrorMatchesSentinel(t *testing.T) {
	err := NewConfigError("interval", "unknown descriptor %q", "yearly")
	if !IsConfigError(err) {
		t.Fatalf("expected config error, got %v", err)
	}
	var appErr *AppError
	if !errors.As(err, &appErr) || appErr.Op != "interval" {
		t.Fatalf("expected AppError with op interval, got %v", err)
	}
	if IsConfigError(NewAppError("load", "boom", errors.New("io"))) {
		t.Fatalf("plain app error must not be a config error")
	}
}

func TestOrDiscardNil(t *testing.T) {
	logger := OrDiscard(nil)
	logger.Info("dropped")
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Fatalf("discard logger should not be enabled")
	}
}
