package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tenantdb"

// Metrics holds the router's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	provisions      *prometheus.CounterVec
	provisionTime   *prometheus.HistogramVec
	decommissions   prometheus.Counter
	teardownErrors  *prometheus.CounterVec
	dispatches      *prometheus.CounterVec
	relationChanges *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		provisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provisions_total",
			Help:      "Tenant provision attempts by kind and result.",
		}, []string{"kind", "result"}),
		provisionTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provision_duration_seconds",
			Help:      "Time to open a tenant connection and persistence context.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		decommissions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decommissions_total",
			Help:      "Tenants removed from the registry.",
		}),
		teardownErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "teardown_errors_total",
			Help:      "Close failures during decommission by step.",
		}, []string{"step"}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Persistence context lookups by source (selected, default) and result.",
		}, []string{"source", "result"}),
		relationChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relation_changes_total",
			Help:      "Relation mutations by operation.",
		}, []string{"op"}),
	}

	for _, c := range []prometheus.Collector{
		m.provisions, m.provisionTime, m.decommissions,
		m.teardownErrors, m.dispatches, m.relationChanges,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) Provisioned(kind string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.provisions.WithLabelValues(kind, result(err)).Inc()
	if err == nil {
		m.provisionTime.WithLabelValues(kind).Observe(d.Seconds())
	}
}

func (m *Metrics) Decommissioned() {
	if m == nil {
		return
	}
	m.decommissions.Inc()
}

func (m *Metrics) TeardownError(step string) {
	if m == nil {
		return
	}
	m.teardownErrors.WithLabelValues(step).Inc()
}

func (m *Metrics) Dispatched(source string, err error) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(source, result(err)).Inc()
}

func (m *Metrics) RelationChanged(op string) {
	if m == nil {
		return
	}
	m.relationChanges.WithLabelValues(op).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
