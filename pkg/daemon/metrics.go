package daemon

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exported at /metrics.
type Metrics struct {
	EventsAppended    prometheus.Counter
	ActiveAssignments prometheus.Gauge
	ConnectedClients  prometheus.Gauge
}

// NewMetrics registers the daemon's collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsAppended: factory.NewCounter(prometheus.CounterOpts{
			Name: "loom_work_events_appended_total",
			Help: "Work events appended across all ancillary logs.",
		}),
		ActiveAssignments: factory.NewGauge(prometheus.GaugeOpts{
			Name: "loom_active_assignments",
			Help: "Assignments currently active.",
		}),
		ConnectedClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "loom_connected_clients",
			Help: "Clients connected to the realtime channel.",
		}),
	}
}
