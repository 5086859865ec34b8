package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/studio-suggest/internal/model"
)

const namespace = "studio_suggest"

// Metrics exports engine operation outcomes and queue gauges to
// Prometheus. It satisfies lifecycle.Observer.
type Metrics struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	queue      *prometheus.GaugeVec
	patterns   *prometheus.GaugeVec
	applyFail  prometheus.Gauge
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Engine operations by name and outcome.",
		}, []string{"op", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Engine operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		queue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "suggestions",
			Help:      "Suggestions by status at the last health check.",
		}, []string{"status"}),
		patterns: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "patterns",
			Help:      "Learned patterns by activation.",
		}, []string{"state"}),
		applyFail: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "apply_failure_ratio",
			Help:      "Share of apply attempts that failed.",
		}),
	}
	m.registry.MustRegister(m.operations, m.latency, m.queue, m.patterns, m.applyFail)
	return m
}

// Observe records one engine operation.
func (m *Metrics) Observe(op, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// SetSnapshot updates the queue gauges.
func (m *Metrics) SetSnapshot(snap *MetricsSnapshot) {
	if m == nil || snap == nil {
		return
	}
	for _, s := range model.AllStatuses {
		m.queue.WithLabelValues(string(s)).Set(float64(snap.ByStatus[s]))
	}
	m.patterns.WithLabelValues("active").Set(float64(snap.ActivePatterns))
	m.patterns.WithLabelValues("inactive").Set(float64(snap.Patterns - snap.ActivePatterns))
	m.applyFail.Set(snap.ApplyFailRate)
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
