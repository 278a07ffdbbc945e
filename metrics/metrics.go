package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "covergate"
)

var (
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	runResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_results",
		Help:      "Result of test runs",
	}, []string{
		"run_id",
		"result",
	})

	casesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "cases_total",
		Help:      "Total number of executed test cases",
	}, []string{
		"run_id",
		"status",
	})

	coveragePercent = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "coverage_percent",
		Help:      "Aggregate coverage percentage per metric",
	}, []string{
		"run_id",
		"metric",
	})

	leakedHandles = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "leaked_handles",
		Help:      "Resources still open after teardown",
	}, []string{
		"run_id",
		"kind",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Wall-clock duration of test runs",
	}, []string{
		"run_id",
	})
)

// RecordError counts one occurrence of a labelled error.
func RecordError(label string) {
	errorsTotal.WithLabelValues(label).Inc()
}

// RecordRun emits the final counters for one run.
func RecordRun(runID, result string, passed, failed, timedOut int, wallClock time.Duration) {
	runResults.WithLabelValues(runID, result).Set(1)
	casesTotal.WithLabelValues(runID, "pass").Add(float64(passed))
	casesTotal.WithLabelValues(runID, "fail").Add(float64(failed))
	casesTotal.WithLabelValues(runID, "timeout").Add(float64(timedOut))
	runDuration.WithLabelValues(runID).Set(wallClock.Seconds())
}

// RecordCoverage emits one aggregate coverage percentage.
func RecordCoverage(runID, metric string, percent float64) {
	coveragePercent.WithLabelValues(runID, metric).Set(percent)
}

// RecordLeaks emits leaked-handle counts per kind.
func RecordLeaks(runID string, byKind map[string]int) {
	for kind, n := range byKind {
		leakedHandles.WithLabelValues(runID, kind).Set(float64(n))
	}
}
