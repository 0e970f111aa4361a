package metrics

import (
	"time"

	"mercator-hq/arbiter/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// EvaluatorMetrics tracks calls to the external policy evaluator.
//
// Metrics:
//   - arbiter_evaluator_requests_total: Evaluator calls by status
//   - arbiter_evaluator_duration_seconds: Evaluator round-trip latency
//   - arbiter_evaluator_errors_total: Evaluator failures by type
//   - arbiter_evaluator_healthy: Evaluator health (1=healthy, 0=unhealthy)
type EvaluatorMetrics struct {
	requestsTotal *prometheus.CounterVec
	duration      prometheus.Histogram
	errorsTotal   *prometheus.CounterVec
	healthy       prometheus.Gauge
}

// NewEvaluatorMetrics creates and registers evaluator metrics with the provided registry.
func NewEvaluatorMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *EvaluatorMetrics {
	em := &EvaluatorMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "evaluator_requests_total",
				Help:      "Total number of policy evaluator calls",
			},
			[]string{"status"},
		),

		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "evaluator_duration_seconds",
				Help:      "Policy evaluator round-trip time in seconds",
				Buckets:   cfg.DurationBuckets,
			},
		),

		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "evaluator_errors_total",
				Help:      "Total number of policy evaluator failures",
			},
			[]string{"type"},
		),

		healthy: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "evaluator_healthy",
				Help:      "Policy evaluator health status (1=healthy, 0=unhealthy)",
			},
		),
	}

	registry.MustRegister(
		em.requestsTotal,
		em.duration,
		em.errorsTotal,
		em.healthy,
	)

	return em
}

// RecordCall records one evaluator call.
func (em *EvaluatorMetrics) RecordCall(status string, duration time.Duration) {
	em.requestsTotal.WithLabelValues(status).Inc()
	em.duration.Observe(duration.Seconds())
}

// RecordError records an evaluator failure.
func (em *EvaluatorMetrics) RecordError(errorType string) {
	em.errorsTotal.WithLabelValues(errorType).Inc()
}

// UpdateHealth sets the health gauge.
func (em *EvaluatorMetrics) UpdateHealth(healthy bool) {
	if healthy {
		em.healthy.Set(1)
		return
	}
	em.healthy.Set(0)
}
