// Package metrics declares the Prometheus collectors shared across
// components: identity lookup timeouts, router queue drops and
// priority spills, and the persistence backlog gauge.
package metrics

import "github.com/prometheus/client_golang/prometheus"

type Registry struct {
	LookupTimeouts   prometheus.Counter
	RouterDrops      *prometheus.CounterVec
	PrioritySpills   *prometheus.CounterVec
	PersistenceBacklog prometheus.Gauge
}

func New(reg prometheus.Registerer) *Registry {
	m := &Registry{
		LookupTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hub",
			Subsystem: "identity",
			Name:      "lookup_timeouts_total",
			Help:      "Number of identity lookups that exceeded their deadline.",
		}),
		RouterDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hub",
			Subsystem: "router",
			Name:      "drops_total",
			Help:      "Number of messages dropped by the router due to a full subscriber queue.",
		}, []string{"channel"}),
		PrioritySpills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hub",
			Subsystem: "router",
			Name:      "priority_spills_total",
			Help:      "Number of priority messages that blocked waiting for queue space before being dropped.",
		}, []string{"channel"}),
		PersistenceBacklog: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hub",
			Subsystem: "persistence",
			Name:      "backlog_size",
			Help:      "Number of records pending durable-store retry.",
		}),
	}

	reg.MustRegister(m.LookupTimeouts, m.RouterDrops, m.PrioritySpills, m.PersistenceBacklog)
	return m
}

// IncLookupTimeout satisfies identity.Metrics.
func (m *Registry) IncLookupTimeout() {
	m.LookupTimeouts.Inc()
}

// IncRouterDrop satisfies router drop-hook wiring.
func (m *Registry) IncRouterDrop(channel string) {
	m.RouterDrops.WithLabelValues(channel).Inc()
}

func (m *Registry) IncPrioritySpill(channel string) {
	m.PrioritySpills.WithLabelValues(channel).Inc()
}

func (m *Registry) SetPersistenceBacklog(n int) {
	m.PersistenceBacklog.Set(float64(n))
}
