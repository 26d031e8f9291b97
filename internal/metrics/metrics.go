package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Reconciliations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciliations_total",
			Help: "Total number of reconciled problems by verdict",
		},
		[]string{"status", "confidence"},
	)

	BackendQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_queries_total",
			Help: "Total number of backend queries by outcome",
		},
		[]string{"backend", "outcome"},
	)

	BackendQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backend_query_duration_seconds",
			Help:    "Duration of backend queries in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 45, 60},
		},
		[]string{"backend"},
	)

	HistorySaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "history_saves_total",
			Help: "Total number of history records saved by driver and outcome",
		},
		[]string{"driver", "outcome"},
	)
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// ObserveBackendQuery records one backend query.
func ObserveBackendQuery(backend string, err error, d time.Duration) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	BackendQueries.WithLabelValues(backend, outcome).Inc()
	BackendQueryDuration.WithLabelValues(backend).Observe(d.Seconds())
}

// ObserveReconciliation records a verdict.
func ObserveReconciliation(status, confidence string) {
	Reconciliations.WithLabelValues(status, confidence).Inc()
}

// ObserveHistorySave records a persistence attempt.
func ObserveHistorySave(driver string, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	HistorySaves.WithLabelValues(driver, outcome).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
