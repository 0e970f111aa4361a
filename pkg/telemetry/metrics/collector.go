package metrics

import (
	"strconv"
	"sync"
	"time"

	"mercator-hq/arbiter/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// Cache names used as the "cache" label.
const (
	CacheDecision = "decision"
	CacheQuery    = "query"
)

// Collector is the main orchestrator for all Prometheus metrics in Arbiter.
// It manages metric registration and provides a unified interface for
// recording metrics across the decision path and the audit trail.
//
// A nil *Collector is valid and records nothing, so components can take an
// optional collector without guarding every call.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	decisionMetrics  *DecisionMetrics
	evaluatorMetrics *EvaluatorMetrics
	policyMetrics    *PolicyMetrics
	auditMetrics     *AuditMetrics
	cacheMetrics     *CacheMetrics

	// Cardinality tracking for policy identifiers
	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a new metrics collector with the specified configuration
// and Prometheus registry. If registry is nil, a fresh registry is created.
//
// Example:
//
//	cfg := &config.MetricsConfig{Enabled: true, Namespace: "arbiter"}
//	collector := metrics.NewCollector(cfg, nil)
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if len(cfg.DurationBuckets) == 0 {
		cfg.DurationBuckets = append([]float64(nil), config.DefaultDurationBuckets...)
	}

	c := &Collector{
		config:             cfg,
		registry:           registry,
		cardinalityLimiter: NewCardinalityLimiter(1000),
	}

	c.decisionMetrics = NewDecisionMetrics(cfg, registry)
	c.evaluatorMetrics = NewEvaluatorMetrics(cfg, registry)
	c.policyMetrics = NewPolicyMetrics(cfg, registry)
	c.auditMetrics = NewAuditMetrics(cfg, registry)
	c.cacheMetrics = NewCacheMetrics(cfg, registry)

	return c
}

func (c *Collector) enabled() bool {
	return c != nil && c.config.Enabled
}

// RecordDecision records a finished decision.
//
// Parameters:
//   - outcome: "allow", "deny" or "conditional"
//   - source: where the decision came from ("precheck", "cache", "evaluator", "fallback")
//   - duration: end-to-end time spent deciding
//   - policies: evaluated policy identifiers
func (c *Collector) RecordDecision(outcome, source string, duration time.Duration, policies []string) {
	if !c.enabled() {
		return
	}

	c.decisionMetrics.RecordDecision(outcome, source, duration)
	for _, id := range policies {
		if !c.cardinalityLimiter.Allow(id) {
			id = "other"
		}
		c.policyMetrics.RecordEvaluation(id, outcome)
	}
}

// RecordPreCheckDenial records a denial from a mandatory pre-check.
func (c *Collector) RecordPreCheckDenial(check string) {
	if !c.enabled() {
		return
	}
	c.decisionMetrics.RecordPreCheckDenial(check)
}

// RecordEvaluatorCall records one call to the external policy evaluator.
//
// Parameters:
//   - status: "success" or "error"
//   - duration: round-trip time including retries
func (c *Collector) RecordEvaluatorCall(status string, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.evaluatorMetrics.RecordCall(status, duration)
}

// RecordEvaluatorError records an evaluator failure by type
// (e.g., "timeout", "circuit_open", "transport", "invalid_response").
func (c *Collector) RecordEvaluatorError(errorType string) {
	if !c.enabled() {
		return
	}
	c.evaluatorMetrics.RecordError(errorType)
}

// UpdateEvaluatorHealth updates the evaluator health gauge (1=healthy, 0=unhealthy).
func (c *Collector) UpdateEvaluatorHealth(healthy bool) {
	if !c.enabled() {
		return
	}
	c.evaluatorMetrics.UpdateHealth(healthy)
}

// RecordPolicyOperation records a policy load or removal.
func (c *Collector) RecordPolicyOperation(action string, err error) {
	if !c.enabled() {
		return
	}
	c.policyMetrics.RecordOperation(action, err == nil)
}

// UpdateLoadedPolicies sets the number of policies currently loaded.
func (c *Collector) UpdateLoadedPolicies(n int) {
	if !c.enabled() {
		return
	}
	c.policyMetrics.UpdateLoaded(n)
}

// RecordLogWrite records decision logs written to storage.
func (c *Collector) RecordLogWrite(mode string, count int, err error) {
	if !c.enabled() {
		return
	}
	c.auditMetrics.RecordWrite(mode, count, err == nil)
}

// UpdateBufferedLogs sets the number of logs waiting for a batch flush.
func (c *Collector) UpdateBufferedLogs(n int) {
	if !c.enabled() {
		return
	}
	c.auditMetrics.UpdateBuffered(n)
}

// RecordQuery records an audit query.
func (c *Collector) RecordQuery(duration time.Duration, results int) {
	if !c.enabled() {
		return
	}
	c.auditMetrics.RecordQuery(duration, results)
}

// RecordPurge records logs removed from one retention tier.
func (c *Collector) RecordPurge(retentionYears int, deleted int64) {
	if !c.enabled() {
		return
	}
	c.auditMetrics.RecordPurge(strconv.Itoa(retentionYears), deleted)
}

// RecordReport records a generated compliance report.
func (c *Collector) RecordReport(reportType string) {
	if !c.enabled() {
		return
	}
	c.auditMetrics.RecordReport(reportType)
}

// RecordCacheHit records a cache hit.
func (c *Collector) RecordCacheHit(cacheName string) {
	if !c.enabled() {
		return
	}
	c.cacheMetrics.RecordHit(cacheName)
}

// RecordCacheMiss records a cache miss.
func (c *Collector) RecordCacheMiss(cacheName string) {
	if !c.enabled() {
		return
	}
	c.cacheMetrics.RecordMiss(cacheName)
}

// UpdateCacheSize updates the current size of a cache.
func (c *Collector) UpdateCacheSize(cacheName string, size int) {
	if !c.enabled() {
		return
	}
	c.cacheMetrics.UpdateSize(cacheName, size)
}

// SetCacheEvictions sets the eviction total reported by a cache that keeps
// its own counter.
func (c *Collector) SetCacheEvictions(cacheName string, total uint64) {
	if !c.enabled() {
		return
	}
	c.cacheMetrics.SetEvictions(cacheName, total)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label values.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether a label value may be used. It returns true if the
// value was seen before or the limit has not been reached.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	// Double-check after acquiring write lock
	if _, exists := cl.current[labelSet]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
