package metrics

import (
	"sync"

	"mercator-hq/arbiter/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// CacheMetrics tracks cache performance metrics.
//
// Metrics:
//   - arbiter_cache_hits_total: Total cache hits by cache name
//   - arbiter_cache_misses_total: Total cache misses by cache name
//   - arbiter_cache_entries: Current number of entries in cache
//   - arbiter_cache_evictions_total: Total cache evictions
//
// The "decision" cache holds policy decisions; the "query" cache holds
// audit query pages.
type CacheMetrics struct {
	hitsTotal      *prometheus.CounterVec
	missesTotal    *prometheus.CounterVec
	entries        *prometheus.GaugeVec
	evictionsTotal *prometheus.CounterVec

	mu            sync.Mutex
	lastEvictions map[string]uint64
}

// NewCacheMetrics creates and registers cache metrics with the provided registry.
func NewCacheMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *CacheMetrics {
	cm := &CacheMetrics{
		hitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of cache hits",
			},
			[]string{"cache"},
		),

		missesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of cache misses",
			},
			[]string{"cache"},
		),

		entries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "cache_entries",
				Help:      "Current number of entries in cache",
			},
			[]string{"cache"},
		),

		evictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "cache_evictions_total",
				Help:      "Total number of cache evictions",
			},
			[]string{"cache"},
		),

		lastEvictions: make(map[string]uint64),
	}

	registry.MustRegister(
		cm.hitsTotal,
		cm.missesTotal,
		cm.entries,
		cm.evictionsTotal,
	)

	return cm
}

// RecordHit records a cache hit.
//
// Example:
//
//	cm.RecordHit("decision")
func (cm *CacheMetrics) RecordHit(cacheName string) {
	cm.hitsTotal.WithLabelValues(cacheName).Inc()
}

// RecordMiss records a cache miss.
func (cm *CacheMetrics) RecordMiss(cacheName string) {
	cm.missesTotal.WithLabelValues(cacheName).Inc()
}

// UpdateSize updates the current size of a cache.
func (cm *CacheMetrics) UpdateSize(cacheName string, size int) {
	cm.entries.WithLabelValues(cacheName).Set(float64(size))
}

// RecordEviction records a single cache eviction.
func (cm *CacheMetrics) RecordEviction(cacheName string) {
	cm.evictionsTotal.WithLabelValues(cacheName).Inc()
}

// SetEvictions advances the eviction counter to a cache's own running total.
// A total lower than the last one seen means the cache was recreated, and
// the whole new total is added.
func (cm *CacheMetrics) SetEvictions(cacheName string, total uint64) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	last := cm.lastEvictions[cacheName]
	delta := total - last
	if total < last {
		delta = total
	}
	cm.lastEvictions[cacheName] = total
	if delta > 0 {
		cm.evictionsTotal.WithLabelValues(cacheName).Add(float64(delta))
	}
}
