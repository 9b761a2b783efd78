package store

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exports store operation metrics in Prometheus format.
type Metrics struct {
	registry *prometheus.Registry

	opLatency *prometheus.HistogramVec
	opTotal   *prometheus.CounterVec

	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
}

func newMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{registry: registry}

	m.opLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "arbor",
			Subsystem: "store",
			Name:      "op_latency_seconds",
			Help:      "Store operation latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"entity", "op"},
	)

	m.opTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arbor",
			Subsystem: "store",
			Name:      "ops_total",
			Help:      "Total number of store operations",
		},
		[]string{"entity", "op", "status"},
	)

	m.cacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "arbor",
			Subsystem: "store",
			Name:      "conversation_cache_hits_total",
			Help:      "Conversation cache hits",
		},
	)

	m.cacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "arbor",
			Subsystem: "store",
			Name:      "conversation_cache_misses_total",
			Help:      "Conversation cache misses",
		},
	)

	registry.MustRegister(m.opLatency, m.opTotal, m.cacheHits, m.cacheMisses)
	return m
}

func (m *Metrics) record(entity, op string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.opTotal.WithLabelValues(entity, op, status).Inc()
	m.opLatency.WithLabelValues(entity, op).Observe(time.Since(start).Seconds())
}

// Registry returns the underlying registry, e.g. for merging into a larger
// metrics setup.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler serving the store metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
