package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// NotificationsCreated counts durable notification writes by kind.
	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinidesk_notifications_created_total",
			Help: "Total number of notifications written to the store",
		},
		[]string{"kind"},
	)

	// PushDeliveries counts live push attempts by event and result (delivered|dropped).
	PushDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinidesk_push_deliveries_total",
			Help: "Total number of websocket push deliveries",
		},
		[]string{"event", "result"},
	)

	// ConnectedClients tracks live websocket connections.
	ConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clinidesk_connected_clients",
			Help: "Number of registered websocket connections",
		},
	)

	// AuthAttempts records login attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinidesk_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clinidesk_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
