package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tubeshelf_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tubeshelf_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	RateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tubeshelf_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
		[]string{"route"},
	)

	// Upload quota
	UploadOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tubeshelf_upload_outcomes_total",
			Help: "Upload attempts by quota outcome",
		},
		[]string{"outcome", "plan"},
	)

	UsageResetsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tubeshelf_usage_resets_total",
			Help: "Profiles whose monthly upload usage was reset",
		},
	)

	// Sessions
	SessionEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tubeshelf_session_events_total",
			Help: "Session state changes by event",
		},
		[]string{"event"},
	)

	// Billing
	CheckoutSessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tubeshelf_checkout_sessions_total",
			Help: "Checkout session creation attempts",
		},
		[]string{"plan", "result"},
	)

	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tubeshelf_webhook_events_total",
			Help: "Stripe webhook events received",
		},
		[]string{"type"},
	)

	// Realtime
	ChangeEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tubeshelf_change_events_total",
			Help: "Database change notifications dispatched",
		},
		[]string{"table", "type"},
	)

	RealtimeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tubeshelf_realtime_connections",
			Help: "Open realtime websocket connections",
		},
	)
)
