package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "linkbroker"

// Link sources for LinksCompleted.
const (
	SourceBackend = "backend"
	SourcePairing = "pairing"
)

// Record kinds for SweptRecords.
const (
	KindSession = "session"
	KindPairing = "pairing"
)

// Metrics holds the broker's Prometheus collectors.
type Metrics struct {
	SessionsActive    prometheus.Gauge
	PairingsActive    prometheus.Gauge
	ConnectionsActive prometheus.Gauge
	LinksCompleted    *prometheus.CounterVec
	SweptRecords      *prometheus.CounterVec
	InboundMessages   *prometheus.CounterVec
	BackendFailures   prometheus.Counter
}

// New creates and registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of sessions held by the broker.",
		}),
		PairingsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pairing_codes_active",
			Help:      "Number of live pairing codes.",
		}),
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "Number of attached client connections.",
		}),
		LinksCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "links_completed_total",
			Help:      "Sessions that reached the linked state, by source.",
		}, []string{"source"}),
		SweptRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swept_records_total",
			Help:      "Records removed by the expiry sweeper, by kind.",
		}, []string{"kind"}),
		InboundMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "inbound_messages_total",
			Help:      "Client messages received, by type.",
		}, []string{"type"}),
		BackendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_failures_total",
			Help:      "Linking attempts that failed to start or to release.",
		}),
	}

	reg.MustRegister(
		m.SessionsActive,
		m.PairingsActive,
		m.ConnectionsActive,
		m.LinksCompleted,
		m.SweptRecords,
		m.InboundMessages,
		m.BackendFailures,
	)
	return m
}
