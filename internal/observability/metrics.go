package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EnrollmentsCommitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "biosync",
		Name:      "enrollments_committed_total",
		Help:      "Total enrollment commits by outcome (saved, saved_device_pending, failed)",
	}, []string{"outcome"})

	FingerprintsDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "biosync",
		Name:      "fingerprints_deleted_total",
		Help:      "Total fingerprint deletions by scope (one, all)",
	}, []string{"scope"})

	DeviceSyncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "biosync",
		Name:      "device_sync_duration_seconds",
		Help:      "Duration of device control channel exchanges",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"command", "outcome"})

	PersistenceAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "biosync",
		Name:      "persistence_attempts_total",
		Help:      "Fingerprint store attempts including retries",
	}, []string{"operation"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "biosync",
		Name:      "active_enrollment_sessions",
		Help:      "Number of live enrollment sessions",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "biosync",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	EventQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "biosync",
		Name:      "event_queue_depth",
		Help:      "Pending messages in the enrollment event stream",
	})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "biosync",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})

	AgentCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "biosync",
		Name:      "agent_commands_total",
		Help:      "Device agent commands processed by action",
	}, []string{"action"})
)
