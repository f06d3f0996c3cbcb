package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Webhook request outcomes, by HTTP status returned.
	WebhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookrelay_webhooks_total",
			Help: "Total number of webhook requests by response status",
		},
		[]string{"status"},
	)

	WebhookBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hookrelay_webhook_bytes_total",
			Help: "Total bytes of webhook bodies received",
		},
	)

	EventsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookrelay_events_dispatched_total",
			Help: "Total number of verified events dispatched, by event type",
		},
		[]string{"event_type"},
	)

	DuplicateDeliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hookrelay_duplicate_deliveries_total",
			Help: "Total number of deliveries dropped as already seen",
		},
	)

	// Handler metrics
	HandlerRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookrelay_handler_runs_total",
			Help: "Total number of handler invocations by outcome",
		},
		[]string{"handler", "outcome"},
	)

	HandlerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hookrelay_handler_duration_seconds",
			Help:    "Duration of handler invocations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"handler"},
	)

	HandlersInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hookrelay_handlers_in_flight",
			Help: "Number of handler invocations launched and not yet finished",
		},
	)

	// HTTP metrics, labelled by chi route pattern
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookrelay_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hookrelay_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
)
