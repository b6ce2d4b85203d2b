package editor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the service's Prometheus collectors.
type Metrics struct {
	ActiveConnections  prometheus.Gauge
	MessagesReceived   prometheus.Counter
	MessagesSent       prometheus.Counter
	OpsCommitted       prometheus.Counter
	CommitConflicts    prometheus.Counter
	LockTimeouts       prometheus.Counter
	SlowClientsDropped prometheus.Counter
}

// NewMetrics registers the collectors with reg and returns them.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "collab_active_connections",
			Help: "Currently open websocket connections.",
		}),
		MessagesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "collab_messages_received_total",
			Help: "Inbound frames received from clients.",
		}),
		MessagesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "collab_messages_sent_total",
			Help: "Outbound frames enqueued to clients.",
		}),
		OpsCommitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "collab_ops_committed_total",
			Help: "Operations committed to documents.",
		}),
		CommitConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "collab_commit_conflicts_total",
			Help: "Version-gate misses that triggered a write retry.",
		}),
		LockTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "collab_lock_timeouts_total",
			Help: "Writes that proceeded without the document lock.",
		}),
		SlowClientsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "collab_slow_clients_dropped_total",
			Help: "Connections dropped because their send buffer filled.",
		}),
	}
}
