package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "remask"

// Text processing latency: 50µs covers trivial inputs, 500ms the large
// multi-pattern worst case.
const (
	processingMin   = 0.00005
	processingMax   = 0.5
	processingCount = 12
)

var (
	// ProcessingDuration tracks engine latency per operation.
	ProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "processing_duration_seconds",
			Help:      "Time spent detecting, masking, and restoring text",
			Buckets:   prometheus.ExponentialBucketsRange(processingMin, processingMax, processingCount),
		},
		[]string{"operation"},
	)

	// RequestsTotal counts API requests by endpoint and status class.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of API requests",
		},
		[]string{"endpoint", "status"},
	)

	// SecretsMaskedTotal counts masked matches per category.
	SecretsMaskedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "secrets_masked_total",
			Help:      "Total number of secrets replaced by placeholders",
		},
		[]string{"category"},
	)

	// SessionsCreatedTotal counts stored restore maps.
	SessionsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Total number of restore sessions stored",
		},
	)

	// SessionsRestoredTotal counts restore calls that used a stored session.
	SessionsRestoredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_restored_total",
			Help:      "Total number of restore calls served from stored sessions",
		},
	)

	// RateLimitedTotal counts requests rejected by the per-client limiter.
	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Total number of requests rejected by rate limiting",
		},
	)

	// ErrorsTotal counts failures by subsystem.
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of errors by type",
		},
		[]string{"type"},
	)

	// ActivePatterns reports the current rule counts.
	ActivePatterns = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_patterns",
			Help:      "Number of active detection patterns",
		},
		[]string{"kind"},
	)

	// ConnectedClients reports live event stream connections.
	ConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_clients",
			Help:      "Number of connected event stream clients",
		},
	)
)

// Operation labels for ProcessingDuration
const (
	OperationDetect         = "detect"
	OperationMask           = "mask"
	OperationMaskRestorable = "mask_restorable"
	OperationRestore        = "restore"
)

// Kind labels for ActivePatterns
const (
	KindBuiltin = "builtin"
	KindCustom  = "custom"
)

// Error type labels for ErrorsTotal
const (
	ErrorTypeStore    = "store"
	ErrorTypeSessions = "sessions"
	ErrorTypeUpstream = "upstream"
)
