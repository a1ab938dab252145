package server

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	Requests *prometheus.CounterVec
	Upstream *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bhadmin",
			Subsystem: "proxy",
			Name:      "requests_total",
			Help:      "Requests handled by the console API, by route and status.",
		}, []string{"route", "status"}),
		Upstream: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bhadmin",
			Subsystem: "proxy",
			Name:      "upstream_duration_seconds",
			Help:      "Time spent waiting for the remote backend.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
	for _, c := range []prometheus.Collector{m.Requests, m.Upstream} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register proxy metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) observeRequest(route string, status int) {
	m.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

func (m *Metrics) observeUpstream(route string, start time.Time) {
	m.Upstream.WithLabelValues(route).Observe(time.Since(start).Seconds())
}
