package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"mercator-hq/arbiter/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func testConfig() *config.MetricsConfig {
	return &config.MetricsConfig{
		Enabled:         true,
		Namespace:       "test",
		DurationBuckets: []float64{0.001, 0.01, 0.1, 1},
	}
}

func TestCollector_NewCollector(t *testing.T) {
	cfg := testConfig()
	registry := prometheus.NewRegistry()

	collector := NewCollector(cfg, registry)

	if collector.Registry() != registry {
		t.Error("Collector registry not set correctly")
	}

	defaulted := NewCollector(&config.MetricsConfig{Enabled: true}, nil)
	if defaulted.config.Namespace != config.DefaultMetricsNamespace {
		t.Errorf("Namespace = %q, want default", defaulted.config.Namespace)
	}
	if len(defaulted.config.DurationBuckets) == 0 {
		t.Error("duration buckets should default")
	}
}

func TestCollector_RecordDecision(t *testing.T) {
	collector := NewCollector(testConfig(), nil)

	tests := []struct {
		outcome  string
		source   string
		policies []string
	}{
		{"allow", "evaluator", []string{"privacy", "payments"}},
		{"deny", "precheck", nil},
		{"allow", "cache", []string{"privacy"}},
	}

	for _, tt := range tests {
		collector.RecordDecision(tt.outcome, tt.source, time.Millisecond, tt.policies)
	}

	if got := testutil.ToFloat64(collector.decisionMetrics.decisionsTotal.WithLabelValues("deny", "precheck")); got != 1 {
		t.Errorf("deny/precheck = %f, want 1", got)
	}
	if got := testutil.ToFloat64(collector.policyMetrics.evaluationsTotal.WithLabelValues("privacy", "allow")); got != 2 {
		t.Errorf("privacy/allow = %f, want 2", got)
	}
	if got := testutil.CollectAndCount(collector.decisionMetrics.decisionDuration); got != 3 {
		t.Errorf("duration series = %d, want 3", got)
	}
}

func TestCollector_PolicyCardinality(t *testing.T) {
	collector := NewCollector(testConfig(), nil)
	collector.cardinalityLimiter = NewCardinalityLimiter(1)

	collector.RecordDecision("allow", "evaluator", time.Millisecond, []string{"first", "second"})

	if got := testutil.ToFloat64(collector.policyMetrics.evaluationsTotal.WithLabelValues("other", "allow")); got != 1 {
		t.Errorf("other = %f, want 1", got)
	}
}

func TestCollector_EvaluatorMetrics(t *testing.T) {
	collector := NewCollector(testConfig(), nil)

	collector.UpdateEvaluatorHealth(true)
	if got := testutil.ToFloat64(collector.evaluatorMetrics.healthy); got != 1 {
		t.Errorf("healthy = %f, want 1", got)
	}
	collector.UpdateEvaluatorHealth(false)
	if got := testutil.ToFloat64(collector.evaluatorMetrics.healthy); got != 0 {
		t.Errorf("healthy = %f, want 0", got)
	}

	collector.RecordEvaluatorCall("error", 5*time.Millisecond)
	collector.RecordEvaluatorError("circuit_open")
	if got := testutil.ToFloat64(collector.evaluatorMetrics.errorsTotal.WithLabelValues("circuit_open")); got != 1 {
		t.Errorf("circuit_open = %f, want 1", got)
	}
}

func TestCollector_AuditMetrics(t *testing.T) {
	collector := NewCollector(testConfig(), nil)

	collector.RecordLogWrite("batch", 25, nil)
	collector.RecordLogWrite("batch", 5, errors.New("disk full"))
	collector.UpdateBufferedLogs(12)
	collector.RecordPurge(7, 40)
	collector.RecordPurge(7, 2)
	collector.RecordReport("compliance_summary")
	collector.RecordQuery(3*time.Millisecond, 10)

	if got := testutil.ToFloat64(collector.auditMetrics.logsWritten.WithLabelValues("batch")); got != 25 {
		t.Errorf("written = %f, want 25", got)
	}
	if got := testutil.ToFloat64(collector.auditMetrics.writeFailures.WithLabelValues("batch")); got != 1 {
		t.Errorf("failures = %f, want 1", got)
	}
	if got := testutil.ToFloat64(collector.auditMetrics.buffered); got != 12 {
		t.Errorf("buffered = %f, want 12", got)
	}
	if got := testutil.ToFloat64(collector.auditMetrics.purged.WithLabelValues("7")); got != 42 {
		t.Errorf("purged = %f, want 42", got)
	}
}

func TestCollector_PolicyOperations(t *testing.T) {
	collector := NewCollector(testConfig(), nil)

	collector.RecordPolicyOperation("load", nil)
	collector.RecordPolicyOperation("load", errors.New("bad policy"))
	collector.UpdateLoadedPolicies(3)

	if got := testutil.ToFloat64(collector.policyMetrics.operationsTotal.WithLabelValues("load", "error")); got != 1 {
		t.Errorf("load/error = %f, want 1", got)
	}
	if got := testutil.ToFloat64(collector.policyMetrics.loaded); got != 3 {
		t.Errorf("loaded = %f, want 3", got)
	}
}

func TestCollector_CacheMetrics(t *testing.T) {
	collector := NewCollector(testConfig(), nil)

	collector.RecordCacheHit(CacheDecision)
	collector.RecordCacheHit(CacheDecision)
	collector.RecordCacheMiss(CacheQuery)
	collector.UpdateCacheSize(CacheDecision, 42)

	if got := testutil.ToFloat64(collector.cacheMetrics.hitsTotal.WithLabelValues(CacheDecision)); got != 2 {
		t.Errorf("hits = %f, want 2", got)
	}
	if got := testutil.ToFloat64(collector.cacheMetrics.entries.WithLabelValues(CacheDecision)); got != 42 {
		t.Errorf("entries = %f, want 42", got)
	}
}

func TestCacheMetrics_SetEvictions(t *testing.T) {
	collector := NewCollector(testConfig(), nil)

	steps := []struct {
		total uint64
		want  float64
	}{
		{5, 5},
		{5, 5},
		{8, 8},
		{2, 10}, // cache recreated
	}

	for _, s := range steps {
		collector.SetCacheEvictions(CacheDecision, s.total)
		if got := testutil.ToFloat64(collector.cacheMetrics.evictionsTotal.WithLabelValues(CacheDecision)); got != s.want {
			t.Errorf("after total %d: evictions = %f, want %f", s.total, got, s.want)
		}
	}
}

func TestCollector_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	collector := NewCollector(cfg, nil)

	collector.RecordDecision("allow", "cache", time.Millisecond, []string{"p"})
	if got := testutil.ToFloat64(collector.decisionMetrics.decisionsTotal.WithLabelValues("allow", "cache")); got != 0 {
		t.Errorf("disabled collector recorded %f", got)
	}

	var nilCollector *Collector
	nilCollector.RecordDecision("allow", "cache", time.Millisecond, nil)
	nilCollector.RecordPurge(7, 1)
}

func TestCardinalityLimiter(t *testing.T) {
	limiter := NewCardinalityLimiter(2)

	if !limiter.Allow("a") || !limiter.Allow("b") {
		t.Fatal("first two label sets should be allowed")
	}
	if limiter.Allow("c") {
		t.Error("third label set should be rejected")
	}
	if !limiter.Allow("a") {
		t.Error("existing label set should still be allowed")
	}
	if limiter.Count() != 2 {
		t.Errorf("Count() = %d, want 2", limiter.Count())
	}
}

func TestCollector_Handler(t *testing.T) {
	collector := NewCollector(testConfig(), nil)
	collector.RecordDecision("deny", "precheck", time.Millisecond, nil)

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `test_decisions_total{outcome="deny",source="precheck"} 1`) {
		t.Errorf("metrics output missing decision counter:\n%s", body)
	}
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector := NewCollector(testConfig(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				collector.RecordDecision("allow", "evaluator", time.Microsecond, []string{"privacy"})
				collector.RecordCacheHit(CacheDecision)
			}
		}()
	}
	wg.Wait()

	if got := testutil.ToFloat64(collector.decisionMetrics.decisionsTotal.WithLabelValues("allow", "evaluator")); got != 1000 {
		t.Errorf("decisions = %f, want 1000", got)
	}
}

func BenchmarkCollector_RecordDecision(b *testing.B) {
	collector := NewCollector(testConfig(), nil)
	policies := []string{"privacy", "payments"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		collector.RecordDecision("allow", "evaluator", time.Millisecond, policies)
	}
}
