// Package metrics holds the Prometheus collectors of the chat server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomchat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roomchat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Connection metrics
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "roomchat_connections_active",
			Help: "Websocket connections currently registered with the hub",
		},
	)

	ClientsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomchat_clients_dropped_total",
			Help: "Clients disconnected because their send buffer was full",
		},
	)

	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomchat_rate_limit_hits_total",
			Help: "Intents dropped by the per-connection rate limiter",
		},
	)

	// Broker metrics
	IntentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomchat_intents_total",
			Help: "Client intents handled by the broker",
		},
		[]string{"intent", "result"}, // result: "ok" or "rejected"
	)

	EmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomchat_emissions_total",
			Help: "Events dispatched to connections",
		},
		[]string{"event"},
	)

	// Storage metrics
	StorageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomchat_storage_failures_total",
			Help: "Failed storage follow-ups",
		},
		[]string{"operation"},
	)

	StorageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roomchat_storage_latency_seconds",
			Help:    "Storage follow-up latency",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .5},
		},
		[]string{"operation"},
	)
)
