package metrics

import (
	"mercator-hq/arbiter/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// PolicyMetrics tracks policy lifecycle and usage.
//
// Metrics:
//   - arbiter_policy_evaluations_total: Decisions each policy took part in, by outcome
//   - arbiter_policy_operations_total: Policy loads and removals by status
//   - arbiter_policies_loaded: Number of policies currently loaded
type PolicyMetrics struct {
	evaluationsTotal *prometheus.CounterVec
	operationsTotal  *prometheus.CounterVec
	loaded           prometheus.Gauge
}

// NewPolicyMetrics creates and registers policy metrics with the provided registry.
func NewPolicyMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *PolicyMetrics {
	pm := &PolicyMetrics{
		evaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "policy_evaluations_total",
				Help:      "Total number of decisions each policy was evaluated in",
			},
			[]string{"policy_id", "outcome"},
		),

		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "policy_operations_total",
				Help:      "Total number of policy load and remove operations",
			},
			[]string{"action", "status"},
		),

		loaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "policies_loaded",
				Help:      "Number of policies currently loaded into the evaluator",
			},
		),
	}

	registry.MustRegister(
		pm.evaluationsTotal,
		pm.operationsTotal,
		pm.loaded,
	)

	return pm
}

// RecordEvaluation records that a policy took part in a decision.
func (pm *PolicyMetrics) RecordEvaluation(policyID, outcome string) {
	pm.evaluationsTotal.WithLabelValues(policyID, outcome).Inc()
}

// RecordOperation records a policy load or removal.
func (pm *PolicyMetrics) RecordOperation(action string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	pm.operationsTotal.WithLabelValues(action, status).Inc()
}

// UpdateLoaded sets the loaded policy gauge.
func (pm *PolicyMetrics) UpdateLoaded(n int) {
	pm.loaded.Set(float64(n))
}
