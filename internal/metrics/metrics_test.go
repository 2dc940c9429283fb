package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/miradorstack/mirador-prep/internal/models"
)

func TestRegisterIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}
}

func TestObserveRunNormalizesOutcome(t *testing.T) {
	before := testutil.ToFloat64(runsTotal.WithLabelValues("fresh", OutcomeSuccess))
	ObserveRun(time.Second, "fresh", "anything")
	after := testutil.ToFloat64(runsTotal.WithLabelValues("fresh", OutcomeSuccess))
	if after != before+1 {
		t.Fatalf("expected success counter to increase by one, got %v -> %v", before, after)
	}
}

func TestObserveReportCountsFlags(t *testing.T) {
	report := models.NewReport()
	report.Add(models.FlagTrend, "a")
	report.Add(models.FlagTrend, "b")
	ObserveReport(report)

	if got := testutil.ToFloat64(flaggedFeatures.WithLabelValues(string(models.FlagTrend))); got != 2 {
		t.Fatalf("expected 2 trend features, got %v", got)
	}
	if got := testutil.ToFloat64(flaggedFeatures.WithLabelValues(string(models.FlagSeasonality))); got != 0 {
		t.Fatalf("expected 0 seasonal features, got %v", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	SetFeatureCounts(10, 12, 4)

	path := filepath.Join(t.TempDir(), "prep.prom")
	if err := WriteTextfile(path, reg); err != nil {
		t.Fatalf("write textfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(data), `mirador_prep_features{stage="selected"} 4`) {
		t.Fatalf("selected feature gauge missing from textfile:\n%s", data)
	}
}
