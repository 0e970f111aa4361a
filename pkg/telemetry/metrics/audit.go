package metrics

import (
	"time"

	"mercator-hq/arbiter/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// AuditMetrics tracks the decision audit trail.
//
// Metrics:
//   - arbiter_audit_logs_written_total: Decision logs persisted by logger mode
//   - arbiter_audit_write_failures_total: Failed storage writes by logger mode
//   - arbiter_audit_buffered_logs: Logs waiting for a batch flush
//   - arbiter_audit_query_duration_seconds: Audit query latency
//   - arbiter_audit_query_results: Results returned per query
//   - arbiter_audit_purged_logs_total: Logs removed by retention tier
//   - arbiter_reports_generated_total: Compliance reports by type
type AuditMetrics struct {
	logsWritten   *prometheus.CounterVec
	writeFailures *prometheus.CounterVec
	buffered      prometheus.Gauge
	queryDuration prometheus.Histogram
	queryResults  prometheus.Histogram
	purged        *prometheus.CounterVec
	reports       *prometheus.CounterVec
}

// NewAuditMetrics creates and registers audit metrics with the provided registry.
func NewAuditMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *AuditMetrics {
	am := &AuditMetrics{
		logsWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "audit_logs_written_total",
				Help:      "Total number of decision logs persisted",
			},
			[]string{"mode"},
		),

		writeFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "audit_write_failures_total",
				Help:      "Total number of failed decision log writes",
			},
			[]string{"mode"},
		),

		buffered: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "audit_buffered_logs",
				Help:      "Decision logs buffered for the next batch flush",
			},
		),

		queryDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "audit_query_duration_seconds",
				Help:      "Audit query duration in seconds",
				Buckets:   cfg.DurationBuckets,
			},
		),

		queryResults: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "audit_query_results",
				Help:      "Number of decision logs returned per audit query",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 8), // 1 to 16K
			},
		),

		purged: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "audit_purged_logs_total",
				Help:      "Total number of decision logs removed by retention",
			},
			[]string{"retention_years"},
		),

		reports: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "reports_generated_total",
				Help:      "Total number of compliance reports generated",
			},
			[]string{"type"},
		),
	}

	registry.MustRegister(
		am.logsWritten,
		am.writeFailures,
		am.buffered,
		am.queryDuration,
		am.queryResults,
		am.purged,
		am.reports,
	)

	return am
}

// RecordWrite records a storage write of count logs.
func (am *AuditMetrics) RecordWrite(mode string, count int, success bool) {
	if !success {
		am.writeFailures.WithLabelValues(mode).Inc()
		return
	}
	am.logsWritten.WithLabelValues(mode).Add(float64(count))
}

// UpdateBuffered sets the buffered log gauge.
func (am *AuditMetrics) UpdateBuffered(n int) {
	am.buffered.Set(float64(n))
}

// RecordQuery records one audit query.
func (am *AuditMetrics) RecordQuery(duration time.Duration, results int) {
	am.queryDuration.Observe(duration.Seconds())
	am.queryResults.Observe(float64(results))
}

// RecordPurge records logs removed from a retention tier.
func (am *AuditMetrics) RecordPurge(tier string, deleted int64) {
	am.purged.WithLabelValues(tier).Add(float64(deleted))
}

// RecordReport records a generated report.
func (am *AuditMetrics) RecordReport(reportType string) {
	am.reports.WithLabelValues(reportType).Inc()
}
