package secrets

import (
	"sync"
	"time"
)

// CacheConfig configures the secret cache behavior.
type CacheConfig struct {
	Enabled bool          // Enable caching
	TTL     time.Duration // Time to live for cached secrets
	MaxSize int           // Maximum number of secrets to cache
}

// cachedSecret is a resolved value and the provider that supplied it.
type cachedSecret struct {
	value     string
	provider  string
	expiresAt time.Time
}

// Cache holds resolved secrets for a TTL. When full, expired entries are
// dropped first, then the entry closest to expiry.
type Cache struct {
	config  CacheConfig
	now     func() time.Time
	mu      sync.RWMutex
	secrets map[string]cachedSecret
}

// NewCache creates a new secret cache with the given configuration.
func NewCache(config CacheConfig) *Cache {
	return &Cache{
		config:  config,
		now:     time.Now,
		secrets: make(map[string]cachedSecret),
	}
}

// Get returns a live cached value and the provider it came from.
func (c *Cache) Get(name string) (value, provider string, ok bool) {
	if !c.config.Enabled {
		return "", "", false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	s, found := c.secrets[name]
	if !found || !c.now().Before(s.expiresAt) {
		return "", "", false
	}
	return s.value, s.provider, true
}

// Set caches value as resolved by provider.
func (c *Cache) Set(name, provider, value string) {
	if !c.config.Enabled {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.secrets[name]; !exists && c.config.MaxSize > 0 && len(c.secrets) >= c.config.MaxSize {
		c.makeRoomLocked(now)
	}
	c.secrets[name] = cachedSecret{
		value:     value,
		provider:  provider,
		expiresAt: now.Add(c.config.TTL),
	}
}

func (c *Cache) makeRoomLocked(now time.Time) {
	var (
		victim string
		soon   time.Time
	)
	for name, s := range c.secrets {
		if !now.Before(s.expiresAt) {
			delete(c.secrets, name)
			continue
		}
		if victim == "" || s.expiresAt.Before(soon) {
			victim, soon = name, s.expiresAt
		}
	}
	if len(c.secrets) >= c.config.MaxSize {
		delete(c.secrets, victim)
	}
}

// Forget drops every secret supplied by provider and reports how many
// were cached.
func (c *Cache) Forget(provider string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for name, s := range c.secrets {
		if s.provider == provider {
			delete(c.secrets, name)
			n++
		}
	}
	return n
}

// Clear removes all entries from the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.secrets)
}

// Size returns the current number of cached entries.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.secrets)
}
