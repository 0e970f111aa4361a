package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"mercator-hq/arbiter/pkg/decision"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestCache(t *testing.T, maxEntries int) (*DecisionCache, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New(Config{TTL: time.Minute, MaxEntries: maxEntries, Now: clock.Now})
	t.Cleanup(c.Close)
	return c, clock
}

func allowDecision() *decision.PolicyDecision {
	return &decision.PolicyDecision{
		Decision:          decision.Allow,
		EvaluatedPolicies: []string{"payments"},
		Reason:            "policy allowed",
	}
}

// TestDecisionCache_HitAndMiss tests basic get/set behaviour.
func TestDecisionCache_HitAndMiss(t *testing.T) {
	c, _ := newTestCache(t, 10)
	key := Key("fp", []string{"payments"})

	if _, ok := c.Get(key); ok {
		t.Fatal("expected miss on empty cache")
	}

	c.Set(key, allowDecision(), 0)

	got, ok := c.Get(key)
	if !ok {
		t.Fatal("expected hit after Set")
	}
	if !got.Performance.CacheHit {
		t.Error("CacheHit not set on cached decision")
	}
	if got.Decision != decision.Allow {
		t.Errorf("Decision = %s, want allow", got.Decision)
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("stats = %+v, want 1 hit 1 miss", stats)
	}
}

// TestDecisionCache_Expiry tests that entries expire after their TTL.
func TestDecisionCache_Expiry(t *testing.T) {
	c, clock := newTestCache(t, 10)
	c.Set("a", allowDecision(), 0)
	c.Set("b", allowDecision(), 5*time.Minute)

	clock.Advance(2 * time.Minute)

	if _, ok := c.Get("a"); ok {
		t.Error("entry with default TTL should have expired")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("entry with longer TTL should still be present")
	}
}

// TestDecisionCache_LRUEviction tests that the least recently used entry is evicted.
func TestDecisionCache_LRUEviction(t *testing.T) {
	c, _ := newTestCache(t, 2)
	c.Set("a", allowDecision(), 0)
	c.Set("b", allowDecision(), 0)
	c.Get("a")
	c.Set("c", allowDecision(), 0)

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("a should survive as most recently used")
	}
	if c.Stats().Evictions != 1 {
		t.Errorf("Evictions = %d, want 1", c.Stats().Evictions)
	}
}

// TestDecisionCache_Clear tests that Clear forces misses.
func TestDecisionCache_Clear(t *testing.T) {
	c, _ := newTestCache(t, 10)
	c.Set("a", allowDecision(), 0)
	c.Clear()

	if _, ok := c.Get("a"); ok {
		t.Error("expected miss after Clear")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d after Clear", c.Len())
	}
}

// TestDecisionCache_ReturnsCopies tests that callers cannot corrupt cached values.
func TestDecisionCache_ReturnsCopies(t *testing.T) {
	c, _ := newTestCache(t, 10)
	d := allowDecision()
	c.Set("a", d, 0)
	d.EvaluatedPolicies[0] = "mutated-after-set"

	got, _ := c.Get("a")
	got.Reason = "mutated-after-get"

	again, _ := c.Get("a")
	if again.EvaluatedPolicies[0] != "payments" {
		t.Error("cache shares slice with caller on Set")
	}
	if again.Reason != "policy allowed" {
		t.Error("cache shares struct with caller on Get")
	}
}

// TestKey_PolicyOrderMatters tests key construction.
func TestKey_PolicyOrderMatters(t *testing.T) {
	if Key("fp", []string{"a", "b"}) == Key("fp", []string{"b", "a"}) {
		t.Error("policy order should change the key")
	}
	if Key("fp", []string{"a"}) != Key("fp", []string{"a"}) {
		t.Error("Key is not deterministic")
	}
	if Key("fp", []string{"ab"}) == Key("fp", []string{"a", "b"}) {
		t.Error("policy boundaries should be unambiguous")
	}
}

// TestDecisionCache_Concurrent tests concurrent access under the race detector.
func TestDecisionCache_Concurrent(t *testing.T) {
	c, _ := newTestCache(t, 50)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", (i+j)%80)
				c.Set(key, allowDecision(), 0)
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()

	if c.Len() > 50 {
		t.Errorf("Len() = %d exceeds MaxEntries", c.Len())
	}
}

func TestDecisionCache_RemoveExpired(t *testing.T) {
	c, clock := newTestCache(t, 10)
	c.Set("a", allowDecision(), 0)
	c.Set("b", allowDecision(), time.Hour)
	clock.Advance(2 * time.Minute)

	c.removeExpired()

	if c.Len() != 1 {
		t.Errorf("Len() = %d after sweep, want 1", c.Len())
	}
}
