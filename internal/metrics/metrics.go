package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UpstreamCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mikana_upstream_calls_total",
			Help: "Total calls to the forecast and model registry services",
		},
		[]string{"service", "endpoint", "status"},
	)

	UpstreamLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mikana_upstream_latency_seconds",
			Help:    "Upstream call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "endpoint"},
	)

	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mikana_prediction_submissions_total",
			Help: "Prediction submissions by page and outcome",
		},
		[]string{"page", "outcome"},
	)

	HistoricalLookupFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mikana_historical_lookup_failures_total",
			Help: "Historical lookups that degraded to zero rows",
		},
	)

	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mikana_uploads_total",
			Help: "Ingestion uploads by module and outcome",
		},
		[]string{"module", "outcome"},
	)

	ExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mikana_exports_total",
			Help: "Generated export artifacts by format and outcome",
		},
		[]string{"format", "outcome"},
	)

	ExportBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mikana_export_bytes",
			Help:    "Size of generated export artifacts",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		},
		[]string{"format"},
	)
)
