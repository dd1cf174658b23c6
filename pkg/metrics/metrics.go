package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "messaging_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_messages_sent_total",
			Help: "Total messages persisted",
		},
		[]string{"channel_kind"},
	)

	ReadReceipts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "messaging_read_receipts_total",
			Help: "Total messages newly marked read",
		},
	)

	// Gateway metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "messaging_ws_connections",
			Help: "Currently open gateway connections",
		},
	)

	WSEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_ws_events_total",
			Help: "Inbound gateway events by type",
		},
		[]string{"event"},
	)

	Broadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_broadcasts_total",
			Help: "Envelopes fanned out to rooms",
		},
		[]string{"event"},
	)

	// Infrastructure metrics
	PublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "messaging_publish_failures_total",
			Help: "Event bus publishes that failed after a durable store write",
		},
	)

	SweepsMarkedOffline = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "messaging_sweeps_marked_offline_total",
			Help: "Users marked offline by the liveness sweep",
		},
	)
)
