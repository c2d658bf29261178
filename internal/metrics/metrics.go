// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CompilesTotal counts query compilations by outcome (ok, error).
	CompilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querygraph_compiles_total",
			Help: "Total number of query compilations",
		},
		[]string{"outcome"},
	)

	// CompileDuration measures compile latency.
	CompileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "querygraph_compile_duration_seconds",
			Help:    "Duration of query compilation in seconds",
			Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1},
		},
	)

	// DiffsTotal counts repository diffs computed.
	DiffsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "querygraph_diffs_total",
		Help: "Total number of repository diffs computed",
	})

	// HistoryDecisions counts snapshot submissions by result
	// (admitted, editing, unchanged, error).
	HistoryDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querygraph_history_decisions_total",
			Help: "History snapshot submissions by result",
		},
		[]string{"result"},
	)

	// HistoryEntries tracks admitted entries per session.
	HistoryEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "querygraph_history_entries",
			Help: "Number of admitted history entries",
		},
		[]string{"session"},
	)

	// EmbeddingRequests counts embedding calls by outcome (ok, error).
	EmbeddingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querygraph_embedding_requests_total",
			Help: "Embedding service calls by outcome",
		},
		[]string{"outcome"},
	)

	// EmbeddingDuration measures embedding latency, from local models to remote APIs.
	EmbeddingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "querygraph_embedding_duration_seconds",
			Help:    "Duration of embedding calls in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	// HTTPRequestsTotal counts HTTP requests by method, route and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querygraph_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration measures HTTP handler latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querygraph_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Outcome maps an error to the "ok"/"error" label value.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
