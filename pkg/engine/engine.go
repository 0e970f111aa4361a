package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/arbiter/pkg/audit"
	"mercator-hq/arbiter/pkg/audit/integrity"
	"mercator-hq/arbiter/pkg/audit/logger"
	"mercator-hq/arbiter/pkg/audit/query"
	"mercator-hq/arbiter/pkg/audit/retention"
	"mercator-hq/arbiter/pkg/decision/cache"
	"mercator-hq/arbiter/pkg/decision/precheck"
	"mercator-hq/arbiter/pkg/evaluator"
	"mercator-hq/arbiter/pkg/report"
	"mercator-hq/arbiter/pkg/telemetry/health"
	"mercator-hq/arbiter/pkg/telemetry/metrics"
)

// Health check names.
const (
	CheckStorage   = "storage"
	CheckEvaluator = "evaluator"
)

// DefaultBatchConcurrency bounds EvaluateIntents when unset.
const DefaultBatchConcurrency = 8

// Config contains the engine's tunables.
type Config struct {
	// Policies is the default ordered policy set evaluated per intent.
	Policies []string

	// Explain requests evaluator explanations by default.
	Explain bool

	// EvaluatorTimeout is the default per-evaluation timeout.
	EvaluatorTimeout time.Duration

	// CacheEnabled turns the decision cache on.
	CacheEnabled bool

	// Cache configures the decision cache.
	Cache cache.Config

	// PreCheck configures the pre-check gate.
	PreCheck precheck.Config

	// Logger configures the decision logger.
	Logger *logger.Config

	// Retention configures purging and its schedule.
	Retention *retention.Config

	// Query configures the audit query engine.
	Query *query.Config

	// Report configures report heuristics.
	Report report.Config

	// SaveReportSnapshots persists every generated report.
	SaveReportSnapshots bool

	// BatchConcurrency bounds parallel evaluations in EvaluateIntents.
	BatchConcurrency int

	// HealthCheckTimeout bounds each component health check.
	HealthCheckTimeout time.Duration
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		EvaluatorTimeout:    evaluator.DefaultTimeout,
		CacheEnabled:        true,
		PreCheck:            precheck.DefaultConfig(),
		Logger:              logger.DefaultConfig(),
		Retention:           retention.DefaultConfig(),
		Query:               query.DefaultConfig(),
		Report:              report.DefaultConfig(),
		SaveReportSnapshots: true,
		BatchConcurrency:    DefaultBatchConcurrency,
		HealthCheckTimeout:  5 * time.Second,
	}
}

// Dependencies are the engine's collaborators.
type Dependencies struct {
	// Evaluator is the external policy decision point. Required.
	Evaluator evaluator.Evaluator

	// Storage persists decision logs and the operations audit. Required.
	Storage audit.Backend

	// Protector signs and seals logs. Required.
	Protector *integrity.Protector

	// QueryCache is the optional secondary cache for audit query pages.
	QueryCache query.ResultCache

	// Metrics is optional.
	Metrics *metrics.Collector

	// Now overrides the clock.
	Now func() time.Time

	// NewID overrides the decision log id generator.
	NewID func() string
}

// Engine orchestrates decisions and exposes the audit trail.
type Engine struct {
	config    Config
	evaluator evaluator.Evaluator
	storage   audit.Backend
	gate      *precheck.Gate
	cache     *cache.DecisionCache // nil when caching is disabled
	logger    *logger.Logger
	queries   *query.Engine
	pruner    *retention.Pruner
	reports   *report.Generator
	health    *health.Checker
	metrics   *metrics.Collector
	now       func() time.Time
	log       *slog.Logger

	policyMu sync.Mutex
	loaded   map[string]string // policy id -> version

	stats counters

	closers   []io.Closer
	closeOnce sync.Once
	closeErr  error
}

type counters struct {
	evaluations       atomic.Int64
	allow             atomic.Int64
	deny              atomic.Int64
	conditional       atomic.Int64
	preCheckDenials   atomic.Int64
	evaluatorFailures atomic.Int64
	cancelled         atomic.Int64
	validationErrors  atomic.Int64
	logFailures       atomic.Int64
	totalEvalNanos    atomic.Int64
}

// New wires an Engine. Nothing is started; call Start to run the purge
// scheduler.
func New(config Config, deps Dependencies) (*Engine, error) {
	if deps.Evaluator == nil {
		return nil, errors.New("engine: evaluator is required")
	}
	if deps.Storage == nil {
		return nil, errors.New("engine: storage is required")
	}
	if deps.Protector == nil {
		return nil, errors.New("engine: protector is required")
	}

	def := DefaultConfig()
	if config.EvaluatorTimeout <= 0 {
		config.EvaluatorTimeout = def.EvaluatorTimeout
	}
	if config.BatchConcurrency <= 0 {
		config.BatchConcurrency = def.BatchConcurrency
	}
	if config.HealthCheckTimeout <= 0 {
		config.HealthCheckTimeout = def.HealthCheckTimeout
	}
	if config.Logger == nil {
		config.Logger = def.Logger
	}
	if config.Retention == nil {
		config.Retention = def.Retention
	}
	if config.Query == nil {
		config.Query = def.Query
	}
	if config.PreCheck.ApprovedJurisdiction == "" {
		config.PreCheck.ApprovedJurisdiction = def.PreCheck.ApprovedJurisdiction
	}

	now := deps.Now
	if now == nil {
		now = time.Now
	}

	var logOpts []logger.Option
	logOpts = append(logOpts, logger.WithClock(now))
	if deps.NewID != nil {
		logOpts = append(logOpts, logger.WithIDGenerator(deps.NewID))
	}
	decisionLogger, err := logger.New(deps.Storage, deps.Protector, config.Logger, logOpts...)
	if err != nil {
		return nil, fmt.Errorf("engine: create decision logger: %w", err)
	}

	// The logger and pruner share one retention policy so the tier written
	// on a log is the tier that purges it.
	config.Retention.Policy = config.Logger.Retention

	e := &Engine{
		config:    config,
		evaluator: deps.Evaluator,
		storage:   deps.Storage,
		gate:      precheck.NewGate(config.PreCheck),
		logger:    decisionLogger,
		queries:   query.NewEngine(deps.Storage, deps.Protector, deps.QueryCache, config.Query),
		pruner:    retention.NewPruner(deps.Storage, config.Retention),
		reports:   report.NewGenerator(config.Report),
		health:    health.New(config.HealthCheckTimeout),
		metrics:   deps.Metrics,
		now:       now,
		log:       slog.Default().With("component", "engine"),
		loaded:    make(map[string]string),
	}

	if config.CacheEnabled {
		cacheCfg := config.Cache
		if cacheCfg.Now == nil {
			cacheCfg.Now = now
		}
		e.cache = cache.New(cacheCfg)
	}

	e.pruner.SetClock(now)
	e.pruner.OnComplete(e.onPurge)

	e.health.RegisterCriticalCheck(CheckStorage, deps.Storage.Ping)
	e.health.RegisterCheck(CheckEvaluator, func(ctx context.Context) error {
		err := deps.Evaluator.Health(ctx)
		e.metrics.UpdateEvaluatorHealth(err == nil)
		return err
	})

	return e, nil
}

// Start runs the retention purge scheduler until ctx is done.
func (e *Engine) Start(ctx context.Context) error {
	return e.pruner.Start(ctx)
}

// AddCloser registers a resource released by Close after the logger's
// final flush, in reverse registration order.
func (e *Engine) AddCloser(c io.Closer) {
	e.closers = append(e.closers, c)
}

// Close stops the scheduler, flushes buffered decision logs and releases
// registered resources. A failed final flush is reported.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.pruner.Stop()

		var errs []error
		if err := e.logger.Close(); err != nil {
			errs = append(errs, err)
		}
		if e.cache != nil {
			e.cache.Close()
		}
		for i := len(e.closers) - 1; i >= 0; i-- {
			if err := e.closers[i].Close(); err != nil {
				errs = append(errs, err)
			}
		}
		e.closeErr = errors.Join(errs...)
	})
	return e.closeErr
}

// Flush writes buffered decision logs now.
func (e *Engine) Flush(ctx context.Context) error {
	return e.logger.Flush(ctx)
}

// DefaultPolicies returns the configured default policy set.
func (e *Engine) DefaultPolicies() []string {
	return append([]string(nil), e.config.Policies...)
}

// LoadedPolicies returns the ids of policies loaded through this engine.
func (e *Engine) LoadedPolicies() []string {
	e.policyMu.Lock()
	defer e.policyMu.Unlock()

	ids := make([]string, 0, len(e.loaded))
	for id := range e.loaded {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Health returns the engine's health checker for HTTP probes.
func (e *Engine) Health() *health.Checker {
	return e.health
}

// HealthCheck runs every component check. Storage is critical; an
// unreachable evaluator only degrades the service.
func (e *Engine) HealthCheck(ctx context.Context) health.HealthStatus {
	return e.health.Check(ctx)
}
