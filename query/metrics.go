package query

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the cache counters exported on /metrics.
type Metrics struct {
	Requests      *prometheus.CounterVec
	CacheHits     *prometheus.CounterVec
	SharedResults *prometheus.CounterVec
	Invalidations *prometheus.CounterVec
	Evictions     prometheus.Counter
}

// NewMetrics creates the counters and registers them with reg when reg is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bhadmin",
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Requests sent to the backend, by operation and outcome.",
		}, []string{"operation", "kind", "outcome"}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bhadmin",
			Subsystem: "query",
			Name:      "cache_hits_total",
			Help:      "Queries answered from a fresh cache entry.",
		}, []string{"operation"}),
		SharedResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bhadmin",
			Subsystem: "query",
			Name:      "shared_results_total",
			Help:      "Fetches that were served by an already in-flight request.",
		}, []string{"operation"}),
		Invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bhadmin",
			Subsystem: "query",
			Name:      "invalidations_total",
			Help:      "Cache entries marked stale by a mutation.",
		}, []string{"operation"}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bhadmin",
			Subsystem: "query",
			Name:      "evictions_total",
			Help:      "Unused cache entries removed after the keep-unused period.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Requests, m.CacheHits, m.SharedResults, m.Invalidations, m.Evictions)
	}
	return m
}
