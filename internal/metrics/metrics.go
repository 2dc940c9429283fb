package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/miradorstack/mirador-prep/internal/models"
)

const (
	// OutcomeSuccess labels selection runs that produced a frame pair.
	OutcomeSuccess = "success"
	// OutcomeError labels failed runs (configuration, data or persistence issues).
	OutcomeError = "error"
)

// Feature-count stages.
const (
	StageOriginal     = "original"
	StagePreprocessed = "preprocessed"
	StageSelected     = "selected"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_prep",
			Name:      "selection_runs_total",
			Help:      "Total number of feature selection runs, partitioned by mode and outcome.",
		},
		[]string{"mode", "outcome"},
	)

	runDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mirador_prep",
			Name:      "selection_run_seconds",
			Help:      "Feature selection run latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	featureCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "mirador_prep",
			Name:      "features",
			Help:      "Feature count of the last run at each stage.",
		},
		[]string{"stage"},
	)

	vifIterations = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mirador_prep",
			Name:      "vif_iterations",
			Help:      "Variance inflation evaluations per elimination.",
			Buckets:   prometheus.LinearBuckets(1, 2, 10),
		},
	)

	flaggedFeatures = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "mirador_prep",
			Name:      "flagged_features",
			Help:      "Features carrying each characterization flag in the last report.",
		},
		[]string{"flag"},
	)
)

// Register attaches mirador-prep collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		runsTotal,
		runDurationSeconds,
		featureCount,
		vifIterations,
		flaggedFeatures,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveRun records a selection run duration with its mode and outcome label.
func ObserveRun(duration time.Duration, mode, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	runsTotal.WithLabelValues(mode, label).Inc()
	if duration < 0 {
		duration = 0
	}
	runDurationSeconds.Observe(duration.Seconds())
}

// SetFeatureCounts publishes the feature counts of a run.
func SetFeatureCounts(original, preprocessed, selected int) {
	featureCount.WithLabelValues(StageOriginal).Set(float64(original))
	featureCount.WithLabelValues(StagePreprocessed).Set(float64(preprocessed))
	featureCount.WithLabelValues(StageSelected).Set(float64(selected))
}

// ObserveVIFIterations records how many VIF evaluations an elimination took.
func ObserveVIFIterations(n int) {
	vifIterations.Observe(float64(n))
}

// ObserveReport publishes per-flag feature counts of a characterization report.
func ObserveReport(report models.Report) {
	for _, flag := range models.AllFlags {
		flaggedFeatures.WithLabelValues(string(flag)).Set(float64(len(report.Flags[flag])))
	}
}

// WriteTextfile dumps the gathered metrics in the text exposition format,
// for node-exporter style collection of batch runs.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
