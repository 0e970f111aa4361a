package query

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"mercator-hq/arbiter/pkg/audit"
	"mercator-hq/arbiter/pkg/audit/integrity"
)

// Config contains configuration for the query engine.
type Config struct {
	// Timeout bounds each query when the caller sets no deadline.
	// Default: 30 seconds
	Timeout time.Duration

	// CacheTTL is how long result pages stay cached. Results may be stale
	// by up to this long. Default: 30 seconds
	CacheTTL time.Duration
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() *Config {
	return &Config{
		Timeout:  30 * time.Second,
		CacheTTL: 30 * time.Second,
	}
}

// Pagination echoes the requested page and whether more results exist.
type Pagination struct {
	Offset   int  `json:"offset"`
	Limit    int  `json:"limit"`
	Returned int  `json:"returned"`
	HasMore  bool `json:"has_more"`
}

// Performance describes how a query was served.
type Performance struct {
	ElapsedMs float64 `json:"elapsed_ms"`
	CacheHit  bool    `json:"cache_hit"`
}

// Result is one page of decision logs.
type Result struct {
	Logs        []*audit.DecisionLog `json:"logs"`
	TotalCount  int64                `json:"total_count"`
	Pagination  Pagination           `json:"pagination"`
	Performance Performance          `json:"performance"`
}

// Engine serves audit queries. It is the only place sealed fields are
// opened.
type Engine struct {
	storage   audit.Storage
	protector *integrity.Protector
	cache     ResultCache
	config    *Config
	logger    *slog.Logger
}

// NewEngine creates an Engine. cache may be nil.
func NewEngine(storage audit.Storage, protector *integrity.Protector, cache ResultCache, config *Config) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = DefaultConfig().CacheTTL
	}
	return &Engine{
		storage:   storage,
		protector: protector,
		cache:     cache,
		config:    config,
		logger:    slog.Default().With("component", "audit.query"),
	}
}

// Query validates q and returns one page of verified, opened logs.
// A missing time range fails before storage is touched. An integrity
// violation on any returned log fails the whole query.
func (e *Engine) Query(ctx context.Context, q *audit.Query) (*Result, error) {
	if err := Validate(q); err != nil {
		return nil, err
	}
	normalized := *q
	ApplyDefaults(&normalized)

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	page, hit := e.cached(ctx, &normalized)
	if !hit {
		total, err := e.storage.Count(ctx, &normalized)
		if err != nil {
			return nil, err
		}
		logs, err := e.storage.Query(ctx, &normalized)
		if err != nil {
			return nil, err
		}
		page = &cachedPage{Logs: logs, Total: total}
		e.store(ctx, &normalized, page)
	}

	for _, log := range page.Logs {
		if err := e.protector.Reveal(log); err != nil {
			var iv *audit.IntegrityViolation
			if errors.As(err, &iv) {
				e.logger.Error("integrity violation detected", "log_id", iv.LogID)
			}
			return nil, err
		}
	}

	returned := len(page.Logs)
	return &Result{
		Logs:       page.Logs,
		TotalCount: page.Total,
		Pagination: Pagination{
			Offset:   normalized.Offset,
			Limit:    normalized.Limit,
			Returned: returned,
			HasMore:  int64(normalized.Offset+returned) < page.Total,
		},
		Performance: Performance{
			ElapsedMs: float64(time.Since(start).Microseconds()) / 1000,
			CacheHit:  hit,
		},
	}, nil
}

func (e *Engine) cached(ctx context.Context, q *audit.Query) (*cachedPage, bool) {
	if e.cache == nil {
		return nil, false
	}
	data, ok, err := e.cache.Get(ctx, cacheKey(q))
	if err != nil {
		e.logger.Warn("query cache read failed", "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var page cachedPage
	if err := json.Unmarshal(data, &page); err != nil {
		e.logger.Warn("discarding unreadable cached page", "error", err)
		return nil, false
	}
	return &page, true
}

// store caches the page in its sealed form, before Reveal opens it.
func (e *Engine) store(ctx context.Context, q *audit.Query, page *cachedPage) {
	if e.cache == nil {
		return
	}
	data, err := json.Marshal(page)
	if err != nil {
		e.logger.Warn("query cache encode failed", "error", err)
		return
	}
	if err := e.cache.Set(ctx, cacheKey(q), data, e.config.CacheTTL); err != nil {
		e.logger.Warn("query cache write failed", "error", err)
	}
}

// Get returns one verified, opened log.
func (e *Engine) Get(ctx context.Context, id string) (*audit.DecisionLog, error) {
	log, err := e.storage.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.protector.Reveal(log); err != nil {
		return nil, err
	}
	return log, nil
}

// Stream returns every matching log, verified and opened, for exports.
// Pagination in q is ignored.
func (e *Engine) Stream(ctx context.Context, q *audit.Query) (<-chan *audit.DecisionLog, <-chan error, error) {
	if err := Validate(q); err != nil {
		return nil, nil, err
	}
	normalized := *q
	normalized.Limit, normalized.Offset = 0, 0

	in, inErr, err := e.storage.QueryStream(ctx, &normalized)
	if err != nil {
		return nil, nil, err
	}

	out := make(chan *audit.DecisionLog, 100)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		for log := range in {
			if err := e.protector.Reveal(log); err != nil {
				errCh <- err
				for range in {
				}
				return
			}
			select {
			case out <- log:
			case <-ctx.Done():
				errCh <- ctx.Err()
				for range in {
				}
				return
			}
		}
		if err := <-inErr; err != nil {
			errCh <- err
		}
	}()
	return out, errCh, nil
}

// InvalidateCache drops every cached page.
func (e *Engine) InvalidateCache(ctx context.Context) error {
	if e.cache == nil {
		return nil
	}
	return e.cache.Clear(ctx)
}
