// Package metrics provides Prometheus metrics collection for Arbiter.
//
// # Metrics Categories
//
//   - Decision Metrics: decisions by outcome and source, decision latency, pre-check denials
//   - Evaluator Metrics: evaluator calls, latency, failures and health
//   - Policy Metrics: per-policy usage, load/remove operations, loaded policy count
//   - Audit Metrics: log writes, buffered logs, query latency, retention purges, reports
//   - Cache Metrics: hits, misses, entries and evictions for the decision and query caches
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//
//	collector.RecordDecision("deny", "precheck", 40*time.Microsecond, nil)
//	collector.RecordEvaluatorCall("success", 12*time.Millisecond)
//	collector.RecordPurge(7, 1520)
//
// A nil *Collector records nothing.
//
// # Prometheus Endpoint
//
// All metrics are exposed through Collector.Handler in standard Prometheus format:
//
//	# HELP arbiter_decisions_total Total number of policy decisions returned
//	# TYPE arbiter_decisions_total counter
//	arbiter_decisions_total{outcome="allow",source="evaluator"} 1234
//
// # Cardinality Management
//
// Policy identifiers are bounded by a CardinalityLimiter; identifiers beyond
// the limit are aggregated into "other".
package metrics
