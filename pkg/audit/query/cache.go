package query

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"mercator-hq/arbiter/pkg/audit"
)

// ResultCache is the secondary cache for query pages. Cached pages hold
// logs in their stored (signed and sealed) form; they are verified and
// opened again on every hit.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Clear(ctx context.Context) error
}

// cachedPage is the cached form of a query result.
type cachedPage struct {
	Logs  []*audit.DecisionLog `json:"logs"`
	Total int64                `json:"total"`
}

// cacheKey derives a stable key from a normalized query.
func cacheKey(q *audit.Query) string {
	data, _ := json.Marshal(q)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// MemoryResultCache is an in-process ResultCache.
type MemoryResultCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryResultCache creates an empty MemoryResultCache.
func NewMemoryResultCache() *MemoryResultCache {
	return &MemoryResultCache{entries: make(map[string]memoryEntry), now: time.Now}
}

// Get implements ResultCache.
func (c *MemoryResultCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set implements ResultCache.
func (c *MemoryResultCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{value: value, expiresAt: c.now().Add(ttl)}
	return nil
}

// Clear implements ResultCache.
func (c *MemoryResultCache) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]memoryEntry)
	return nil
}

// DefaultRedisPrefix namespaces cached query pages in Redis.
const DefaultRedisPrefix = "arbiter:audit:query:"

// RedisResultCache stores query pages in Redis so replicas share them.
type RedisResultCache struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisResultCache wraps client. An empty prefix uses DefaultRedisPrefix.
func NewRedisResultCache(client redis.UniversalClient, prefix string) *RedisResultCache {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisResultCache{client: client, prefix: prefix}
}

// Get implements ResultCache.
func (c *RedisResultCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return value, true, nil
}

// Set implements ResultCache.
func (c *RedisResultCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Clear implements ResultCache by deleting every key under the prefix.
func (c *RedisResultCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 500).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 500 {
			if err := c.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("redis del: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	if len(batch) > 0 {
		if err := c.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("redis del: %w", err)
		}
	}
	return nil
}
