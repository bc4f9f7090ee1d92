package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitrymomot/tenantdb/pkg/pg"
)

// PoolStatser reports usage of every open tenant pool, keyed by tenant id.
type PoolStatser interface {
	PoolStats() map[string]pg.Stats
}

// PoolCollector exports tenant pool usage at scrape time.
type PoolCollector struct {
	source PoolStatser

	countDesc    *prometheus.Desc
	totalDesc    *prometheus.Desc
	idleDesc     *prometheus.Desc
	maxDesc      *prometheus.Desc
	acquiredDesc *prometheus.Desc
}

// NewPoolCollector creates a collector reading from source.
func NewPoolCollector(source PoolStatser) *PoolCollector {
	return &PoolCollector{
		source:       source,
		countDesc:    prometheus.NewDesc(namespace+"_tenant_pools", "Open tenant pools.", nil, nil),
		totalDesc:    prometheus.NewDesc(namespace+"_pool_conns_total", "Connections currently open per tenant pool.", []string{"tenant"}, nil),
		idleDesc:     prometheus.NewDesc(namespace+"_pool_conns_idle", "Idle connections per tenant pool.", []string{"tenant"}, nil),
		maxDesc:      prometheus.NewDesc(namespace+"_pool_conns_max", "Configured maximum connections per tenant pool.", []string{"tenant"}, nil),
		acquiredDesc: prometheus.NewDesc(namespace+"_pool_acquires_total", "Cumulative acquires per tenant pool.", []string{"tenant"}, nil),
	}
}

func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.countDesc
	ch <- c.totalDesc
	ch <- c.idleDesc
	ch <- c.maxDesc
	ch <- c.acquiredDesc
}

func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.source.PoolStats()
	ch <- prometheus.MustNewConstMetric(c.countDesc, prometheus.GaugeValue, float64(len(stats)))
	for id, s := range stats {
		ch <- prometheus.MustNewConstMetric(c.totalDesc, prometheus.GaugeValue, float64(s.TotalConns), id)
		ch <- prometheus.MustNewConstMetric(c.idleDesc, prometheus.GaugeValue, float64(s.IdleConns), id)
		ch <- prometheus.MustNewConstMetric(c.maxDesc, prometheus.GaugeValue, float64(s.MaxConns), id)
		ch <- prometheus.MustNewConstMetric(c.acquiredDesc, prometheus.CounterValue, float64(s.AcquireCount), id)
	}
}
