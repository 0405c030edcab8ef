package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

const (
	MetricsNamespace = "testrun"
)

var (
	Debug bool = true

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	matrixCells = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "matrix_cells",
		Help:      "Number of matrix cells generated for the run",
	}, []string{
		"run_id",
	})

	executionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "executions_total",
		Help:      "Count of test executions",
	}, []string{
		"run_id",
		"mode",
		"result",
	})

	runResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_results",
		Help:      "Result of the whole run",
	}, []string{
		"run_id",
		"result",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of the whole run",
	}, []string{
		"run_id",
	})

	teardownFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "teardown_failures_total",
		Help:      "Count of artifact cleanup failures during session teardown",
	}, []string{
		"run_id",
	})
)

func RecordError(error string) {
	if Debug {
		log.Debug().
			Str("m", "errors_total").
			Str("error", error).
			Msg("metric inc")
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordMatrix records the size of the generated execution matrix.
func RecordMatrix(runID string, cells int) {
	matrixCells.WithLabelValues(runID).Set(float64(cells))
}

// RecordExecution counts one finished test execution.
func RecordExecution(runID, mode, result string) {
	if Debug {
		log.Debug().
			Str("m", "executions_total").
			Str("run_id", runID).
			Str("mode", mode).
			Str("result", result).
			Msg("metric inc")
	}
	executionsTotal.WithLabelValues(runID, mode, result).Inc()
}

// RecordRun records the outcome of the whole run.
func RecordRun(runID string, result string, duration time.Duration) {
	runResults.WithLabelValues(runID, result).Set(1)
	runDuration.WithLabelValues(runID).Set(duration.Seconds())
}

// RecordTeardownFailures counts cleanup actions that failed while draining
// the artifact registry.
func RecordTeardownFailures(runID string, count int) {
	teardownFailuresTotal.WithLabelValues(runID).Add(float64(count))
}
