package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "siteguard"

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Current number of HTTP requests being processed",
		},
	)
)

// Conversation metrics
var (
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversation_turns_total",
			Help:      "Total number of conversation turns handled",
		},
		[]string{"message_type"},
	)
)

// Analysis metrics
var (
	ImagesAnalyzed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_analyzed_total",
			Help:      "Total number of images analyzed",
		},
		[]string{"status"},
	)

	AnalysisDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Image analysis latency distribution",
			Buckets:   []float64{.5, 1, 2.5, 5, 10, 15, 30},
		},
	)

	ViolationsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "violations_detected_total",
			Help:      "Total number of violations detected",
		},
		[]string{"severity"},
	)
)

// Report and delivery metrics
var (
	InspectionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inspections_created_total",
			Help:      "Total number of inspections created",
		},
	)

	ReportsComposed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_composed_total",
			Help:      "Total number of compliance reports composed",
		},
	)

	ReportDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_deliveries_total",
			Help:      "Total number of report delivery attempts",
		},
		[]string{"status"},
	)
)

// Authorization metrics
var (
	ClarificationsRequested = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clarifications_requested_total",
			Help:      "Total number of actions suspended on delegated authorization",
		},
	)

	ClarificationsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clarifications_resolved_total",
			Help:      "Total number of clarification resolutions",
		},
		[]string{"outcome"}, // "replayed" or "already_resolved"
	)
)

// Store metrics
var (
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Total number of persistence failures",
		},
		[]string{"operation"},
	)
)
