package router

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the routing hot path.
type Metrics struct {
	RouteTotal   *prometheus.CounterVec
	RouteLatency prometheus.Histogram
	CacheHits    *prometheus.CounterVec
	Fallbacks    prometheus.Counter
}

// NewMetrics creates and registers all routing metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		RouteTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_route_requests_total",
				Help: "Total routing requests by decision",
			},
			[]string{"tier", "intent", "complexity"},
		),
		RouteLatency: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dispatch_route_latency_ms",
				Help:    "Routing decision latency in milliseconds",
				Buckets: []float64{10, 20, 50, 100, 200, 500},
			},
		),
		CacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_route_cache_total",
				Help: "Routing decision cache lookups",
			},
			[]string{"hit"},
		),
		Fallbacks: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "dispatch_route_fallback_total",
				Help: "Safe-default decisions returned after orchestration failure",
			},
		),
	}
}

// RecordDecision records a completed routing decision.
func (m *Metrics) RecordDecision(d DecisionLabels, latencyMs float64) {
	m.RouteTotal.WithLabelValues(d.Tier, d.Intent, d.Complexity).Inc()
	m.RouteLatency.Observe(latencyMs)
}

// RecordCacheLookup records a cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	label := "false"
	if hit {
		label = "true"
	}
	m.CacheHits.WithLabelValues(label).Inc()
}

// DecisionLabels are the metric label values of a decision.
type DecisionLabels struct {
	Tier       string
	Intent     string
	Complexity string
}
