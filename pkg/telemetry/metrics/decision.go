package metrics

import (
	"time"

	"mercator-hq/arbiter/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// DecisionMetrics tracks decisions returned to callers.
//
// Metrics:
//   - arbiter_decisions_total: Decisions by outcome and source
//   - arbiter_decision_duration_seconds: End-to-end decision latency
//   - arbiter_precheck_denials_total: Pre-check denials by failed check
type DecisionMetrics struct {
	decisionsTotal   *prometheus.CounterVec
	decisionDuration *prometheus.HistogramVec
	precheckDenials  *prometheus.CounterVec
}

// NewDecisionMetrics creates and registers decision metrics with the provided registry.
func NewDecisionMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *DecisionMetrics {
	dm := &DecisionMetrics{
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "decisions_total",
				Help:      "Total number of policy decisions returned",
			},
			[]string{"outcome", "source"},
		),

		decisionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "decision_duration_seconds",
				Help:      "Time taken to produce a decision in seconds",
				Buckets:   cfg.DurationBuckets,
			},
			[]string{"source"},
		),

		precheckDenials: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "precheck_denials_total",
				Help:      "Total number of denials issued by mandatory pre-checks",
			},
			[]string{"check"},
		),
	}

	registry.MustRegister(
		dm.decisionsTotal,
		dm.decisionDuration,
		dm.precheckDenials,
	)

	return dm
}

// RecordDecision records one decision.
func (dm *DecisionMetrics) RecordDecision(outcome, source string, duration time.Duration) {
	dm.decisionsTotal.WithLabelValues(outcome, source).Inc()
	dm.decisionDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordPreCheckDenial records a pre-check denial.
func (dm *DecisionMetrics) RecordPreCheckDenial(check string) {
	dm.precheckDenials.WithLabelValues(check).Inc()
}
