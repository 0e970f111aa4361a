package secrets

import (
	"testing"
	"time"
)

func newTestCache(cfg CacheConfig, now *time.Time) *Cache {
	c := NewCache(cfg)
	c.now = func() time.Time { return *now }
	return c
}

func TestCache_Expiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newTestCache(CacheConfig{Enabled: true, TTL: time.Minute, MaxSize: 10}, &now)

	c.Set("audit_master_key", "env", "k1")
	if v, provider, ok := c.Get("audit_master_key"); !ok || v != "k1" || provider != "env" {
		t.Fatalf("Get() = %q, %q, %v; want k1, env, true", v, provider, ok)
	}

	now = now.Add(time.Minute)
	if _, _, ok := c.Get("audit_master_key"); ok {
		t.Error("entry should expire at TTL")
	}
}

func TestCache_Disabled(t *testing.T) {
	c := NewCache(CacheConfig{Enabled: false, TTL: time.Minute})
	c.Set("a", "env", "1")
	if _, _, ok := c.Get("a"); ok {
		t.Error("disabled cache should never hit")
	}
	if c.Size() != 0 {
		t.Errorf("Size() = %d, want 0", c.Size())
	}
}

func TestCache_EvictsSoonestExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newTestCache(CacheConfig{Enabled: true, TTL: time.Hour, MaxSize: 2}, &now)

	c.Set("a", "env", "1")
	now = now.Add(time.Second)
	c.Set("b", "env", "2")
	now = now.Add(time.Second)
	c.Set("c", "env", "3")

	if c.Size() != 2 {
		t.Fatalf("Size() = %d, want 2", c.Size())
	}
	if _, _, ok := c.Get("a"); ok {
		t.Error("oldest entry should have been evicted")
	}
	if _, _, ok := c.Get("c"); !ok {
		t.Error("newest entry missing")
	}
}

func TestCache_UpdateDoesNotEvict(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newTestCache(CacheConfig{Enabled: true, TTL: time.Hour, MaxSize: 2}, &now)

	c.Set("a", "env", "1")
	c.Set("b", "env", "2")
	c.Set("b", "env", "3")

	if _, _, ok := c.Get("a"); !ok {
		t.Error("updating an existing key evicted another entry")
	}
	if v, _, _ := c.Get("b"); v != "3" {
		t.Errorf("Get(b) = %q, want 3", v)
	}
}

func TestCache_EvictsExpiredFirst(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newTestCache(CacheConfig{Enabled: true, TTL: time.Minute, MaxSize: 2}, &now)

	c.Set("a", "env", "1")
	c.Set("b", "env", "2")
	now = now.Add(2 * time.Minute)
	c.Set("c", "env", "3")

	if c.Size() != 1 {
		t.Errorf("Size() = %d, want 1 after expired entries are dropped", c.Size())
	}
}

func TestCache_ForgetAndClear(t *testing.T) {
	c := NewCache(CacheConfig{Enabled: true, TTL: time.Hour})
	c.Set("a", "env", "1")
	c.Set("b", "file", "2")
	c.Set("c", "file", "3")

	if n := c.Forget("file"); n != 2 {
		t.Errorf("Forget(file) = %d, want 2", n)
	}
	if _, _, ok := c.Get("a"); !ok {
		t.Error("entry from another provider was forgotten")
	}
	c.Clear()
	if c.Size() != 0 {
		t.Errorf("Size() after Clear() = %d, want 0", c.Size())
	}
}
