// Package cache provides a bounded, time-limited cache of policy decisions
// keyed by intent fingerprint and the ordered policy set.
package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/arbiter/pkg/decision"
)

// Default settings.
const (
	DefaultTTL        = 5 * time.Minute
	DefaultMaxEntries = 10000
)

// Config configures a DecisionCache.
type Config struct {
	// TTL is the default lifetime of an entry. Zero uses DefaultTTL.
	TTL time.Duration

	// MaxEntries bounds the cache; the least recently used entry is evicted
	// when it is full. Zero uses DefaultMaxEntries.
	MaxEntries int

	// CleanupInterval is how often expired entries are swept.
	// Zero derives it from TTL.
	CleanupInterval time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Key builds the cache key for a fingerprint evaluated against policies.
// Policy order is significant.
func Key(fingerprint string, policies []string) string {
	sum := sha256.Sum256([]byte(strings.Join(policies, "\x00")))
	return fingerprint + ":" + hex.EncodeToString(sum[:8])
}

type entry struct {
	key       string
	decision  *decision.PolicyDecision
	expiresAt time.Time
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Size      int    `json:"size"`
}

// DecisionCache is a thread-safe TTL and LRU cache of decisions. Values are
// copied on the way in and out so callers never share state.
type DecisionCache struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64

	stopCh    chan struct{}
	closeOnce sync.Once
}

// New creates a DecisionCache and starts its cleanup goroutine.
func New(config Config) *DecisionCache {
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = DefaultMaxEntries
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	interval := config.CleanupInterval
	if interval <= 0 {
		interval = config.TTL / 2
		if interval < 10*time.Second {
			interval = 10 * time.Second
		}
	}

	c := &DecisionCache{
		ttl:        config.TTL,
		maxEntries: config.MaxEntries,
		now:        config.Now,
		entries:    make(map[string]*list.Element),
		lru:        list.New(),
		stopCh:     make(chan struct{}),
	}
	go c.cleanupLoop(interval)
	return c
}

// Get returns a copy of the cached decision for key with CacheHit set.
func (c *DecisionCache) Get(key string) (*decision.PolicyDecision, bool) {
	c.mu.Lock()
	el, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		c.misses.Add(1)
		return nil, false
	}
	e := el.Value.(*entry)
	if !c.now().Before(e.expiresAt) {
		c.removeElement(el)
		c.mu.Unlock()
		c.misses.Add(1)
		return nil, false
	}
	c.lru.MoveToFront(el)
	out := e.decision.Clone()
	c.mu.Unlock()

	c.hits.Add(1)
	out.Performance.CacheHit = true
	return out, true
}

// Set stores a copy of d under key. A non-positive ttl uses the default.
func (c *DecisionCache) Set(key string, d *decision.PolicyDecision, ttl time.Duration) {
	if d == nil {
		return
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	stored := d.Clone()
	stored.Performance.CacheHit = false

	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(ttl)
	if el, ok := c.entries[key]; ok {
		e := el.Value.(*entry)
		e.decision = stored
		e.expiresAt = expiresAt
		c.lru.MoveToFront(el)
		return
	}

	for c.lru.Len() >= c.maxEntries {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		c.removeElement(oldest)
		c.evictions.Add(1)
	}

	c.entries[key] = c.lru.PushFront(&entry{key: key, decision: stored, expiresAt: expiresAt})
}

// Clear removes every entry. It is called after any policy change.
func (c *DecisionCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element)
	c.lru.Init()
}

// Len returns the number of entries, including expired ones not yet swept.
func (c *DecisionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Stats returns the cache counters.
func (c *DecisionCache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Size:      c.Len(),
	}
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (c *DecisionCache) Close() {
	c.closeOnce.Do(func() { close(c.stopCh) })
}

func (c *DecisionCache) removeElement(el *list.Element) {
	c.lru.Remove(el)
	delete(c.entries, el.Value.(*entry).key)
}

func (c *DecisionCache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.stopCh:
			return
		}
	}
}

func (c *DecisionCache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for el := c.lru.Back(); el != nil; {
		prev := el.Prev()
		if !now.Before(el.Value.(*entry).expiresAt) {
			c.removeElement(el)
		}
		el = prev
	}
}
