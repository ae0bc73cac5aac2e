// Package metrics provides Prometheus metrics for vizgate operations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vizgate_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vizgate_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Request gate decisions
	GateDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vizgate_gate_decisions_total",
			Help: "Total number of request gate decisions",
		},
		[]string{"mode", "outcome"}, // outcome: "allow", "unauthenticated", "forbidden", "error"
	)

	// Credential store metrics
	StoreQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vizgate_store_queries_total",
			Help: "Total number of credential store queries",
		},
		[]string{"backend", "operation"},
	)

	StoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vizgate_store_query_duration_seconds",
			Help:    "Credential store query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	PlatformCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vizgate_platform_cache_lookups_total",
			Help: "Platform lookups served by the auth code cache",
		},
		[]string{"result"},
	)

	NameChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vizgate_name_checks_total",
			Help: "Total number of name uniqueness checks",
		},
		[]string{"kind", "result"}, // result: "free", "taken", "invalid", "error"
	)

	// File helper metrics
	FileOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vizgate_file_operations_total",
			Help: "Total number of file operations",
		},
		[]string{"operation", "status"},
	)

	CompressionPasses = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vizgate_image_compression_passes",
			Help:    "Number of re-encode passes per compressed image",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13},
		},
	)

	ExportSinkOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vizgate_export_sink_ops_total",
			Help: "Total number of archive mirror operations",
		},
		[]string{"sink", "status"},
	)

	// Error metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vizgate_errors_total",
			Help: "Total number of errors by component",
		},
		[]string{"component", "error_type"},
	)
)
