package engine

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"mercator-hq/arbiter/pkg/audit"
	"mercator-hq/arbiter/pkg/audit/integrity"
	"mercator-hq/arbiter/pkg/audit/logger"
	"mercator-hq/arbiter/pkg/audit/query"
	"mercator-hq/arbiter/pkg/audit/retention"
	"mercator-hq/arbiter/pkg/audit/storage"
	"mercator-hq/arbiter/pkg/config"
	"mercator-hq/arbiter/pkg/decision/cache"
	"mercator-hq/arbiter/pkg/decision/precheck"
	"mercator-hq/arbiter/pkg/evaluator"
	"mercator-hq/arbiter/pkg/report"
	"mercator-hq/arbiter/pkg/security/secrets"
	"mercator-hq/arbiter/pkg/telemetry/metrics"
)

// Secrets resolves named secrets and ${secret:name} references.
type Secrets interface {
	GetSecret(ctx context.Context, name string) (string, error)
	ResolveReferences(ctx context.Context, input string) (string, error)
}

var _ Secrets = (*secrets.Manager)(nil)

// ConfigFrom maps the service configuration onto engine settings.
func ConfigFrom(cfg *config.Config) Config {
	policy := audit.RetentionPolicy{
		StandardYears:   cfg.Retention.StandardYears,
		PrivacyYears:    cfg.Retention.PrivacyYears,
		IndigenousYears: cfg.Retention.IndigenousYears,
	}

	classifier := audit.DefaultClassifier()
	if cfg.Logger.LargeTransactionThreshold > 0 {
		classifier.LargeTransactionThreshold = cfg.Logger.LargeTransactionThreshold
	}

	return Config{
		Policies:         append([]string(nil), cfg.Evaluator.Policies...),
		Explain:          cfg.Evaluator.Explain,
		EvaluatorTimeout: cfg.Evaluator.Timeout,
		CacheEnabled:     cfg.Cache.Enabled,
		Cache: cache.Config{
			TTL:        cfg.Cache.TTL,
			MaxEntries: cfg.Cache.MaxEntries,
		},
		PreCheck: precheck.Config{
			EnforceResidency:     cfg.PreCheck.EnforceResidency,
			ApprovedJurisdiction: cfg.PreCheck.ApprovedJurisdiction,
		},
		Logger: &logger.Config{
			Mode:          logger.Mode(cfg.Logger.Mode),
			BatchSize:     cfg.Logger.BatchSize,
			FlushInterval: cfg.Logger.FlushInterval,
			MaxBuffered:   cfg.Logger.MaxBuffered,
			WriteTimeout:  cfg.Logger.WriteTimeout,
			Service:       audit.ServiceInfo{Name: cfg.Service.Name, Version: cfg.Service.Version},
			Retention:     policy,
			Classifier:    classifier,
		},
		Retention: &retention.Config{
			Policy:              policy,
			Schedule:            cfg.Retention.Schedule,
			ArchiveBeforeDelete: cfg.Retention.ArchiveBeforeDelete,
			ArchivePath:         cfg.Retention.ArchivePath,
		},
		Query: &query.Config{
			Timeout:  cfg.Query.Timeout,
			CacheTTL: cfg.Query.Cache.TTL,
		},
		Report: report.Config{
			Location:                 report.LoadLocation(cfg.Reports.Timezone),
			BusinessHourStart:        cfg.Reports.BusinessHourStart,
			BusinessHourEnd:          cfg.Reports.BusinessHourEnd,
			DenialRateThreshold:      cfg.Reports.DenialRateThreshold,
			AfterHoursRateThreshold:  cfg.Reports.AfterHoursRateThreshold,
			HighSensitivityThreshold: cfg.Reports.HighSensitivityThreshold,
			ApprovedJurisdiction:     cfg.PreCheck.ApprovedJurisdiction,
		},
		SaveReportSnapshots: cfg.Reports.SaveSnapshots,
		BatchConcurrency:    cfg.Server.BatchConcurrency,
		HealthCheckTimeout:  cfg.Telemetry.Health.CheckTimeout,
	}
}

// NewFromConfig builds the storage backend, integrity protector, evaluator
// client and query cache described by cfg and wires them into an Engine.
// Resources it opens are released by Engine.Close.
func NewFromConfig(ctx context.Context, cfg *config.Config, sec Secrets, collector *metrics.Collector) (*Engine, error) {
	var opened []interface{ Close() error }
	fail := func(err error) (*Engine, error) {
		for i := len(opened) - 1; i >= 0; i-- {
			_ = opened[i].Close()
		}
		return nil, err
	}

	backend, err := OpenStorage(ctx, cfg.Storage, sec)
	if err != nil {
		return fail(err)
	}
	opened = append(opened, backend)

	protector, err := integrity.NewProtector(ctx, integrity.SecretKeySource{
		Secrets: sec,
		Name:    cfg.Encryption.KeySecret,
	}, cfg.Encryption.Enabled)
	if err != nil {
		return fail(fmt.Errorf("load audit key: %w", err))
	}

	client, err := NewEvaluatorClient(ctx, cfg.Evaluator, sec)
	if err != nil {
		return fail(err)
	}

	resultCache, closer, err := OpenQueryCache(ctx, cfg.Query.Cache, sec)
	if err != nil {
		return fail(err)
	}
	if closer != nil {
		opened = append(opened, closer)
	}

	eng, err := New(ConfigFrom(cfg), Dependencies{
		Evaluator:  client,
		Storage:    backend,
		Protector:  protector,
		QueryCache: resultCache,
		Metrics:    collector,
	})
	if err != nil {
		return fail(err)
	}
	for _, c := range opened {
		eng.AddCloser(c)
	}
	return eng, nil
}

// OpenStorage opens the configured audit backend. The Postgres DSN is read
// from DSNSecret when set; otherwise ${secret:name} references in DSN are
// expanded.
func OpenStorage(ctx context.Context, cfg config.StorageConfig, sec Secrets) (audit.Backend, error) {
	switch cfg.Backend {
	case "memory":
		return storage.NewMemoryStorage(), nil

	case "sqlite":
		return storage.NewSQLiteStorage(&storage.SQLiteConfig{
			Path:         cfg.SQLite.Path,
			Driver:       cfg.SQLite.Driver,
			MaxOpenConns: cfg.SQLite.MaxOpenConns,
			MaxIdleConns: cfg.SQLite.MaxIdleConns,
			WALMode:      cfg.SQLite.WALMode,
			BusyTimeout:  cfg.SQLite.BusyTimeout,
		})

	case "postgres":
		dsn, err := resolve(ctx, sec, cfg.Postgres.DSNSecret, cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("resolve postgres dsn: %w", err)
		}
		return storage.NewPostgresStorage(ctx, &storage.PostgresConfig{
			DSN:             dsn,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		})
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}

// NewEvaluatorClient builds the HTTP evaluator client. A configured token
// secret is sent as a bearer token.
func NewEvaluatorClient(ctx context.Context, cfg config.EvaluatorConfig, sec Secrets) (*evaluator.HTTPClient, error) {
	headers := map[string]string{}
	if cfg.TokenSecret != "" {
		token, err := sec.GetSecret(ctx, cfg.TokenSecret)
		if err != nil {
			return nil, fmt.Errorf("load evaluator token: %w", err)
		}
		headers["Authorization"] = "Bearer " + token
	}

	return evaluator.NewHTTPClient(evaluator.Config{
		BaseURL:        cfg.URL,
		Query:          cfg.Query,
		Timeout:        cfg.Timeout,
		AttemptTimeout: cfg.AttemptTimeout,
		MaxRetries:     cfg.MaxRetries,
		BaseBackoff:    cfg.BaseBackoff,
		MaxBackoff:     cfg.MaxBackoff,
		RateLimit:      cfg.RateLimit,
		RateBurst:      cfg.RateBurst,
		Breaker: evaluator.BreakerConfig{
			MaxFailures: cfg.BreakerMaxFailures,
			Timeout:     cfg.BreakerTimeout,
		},
		Headers: headers,
	})
}

// OpenQueryCache builds the secondary query result cache. The returned
// closer is non-nil for backends holding connections.
func OpenQueryCache(ctx context.Context, cfg config.QueryCacheConfig, sec Secrets) (query.ResultCache, interface{ Close() error }, error) {
	switch cfg.Backend {
	case "", "none":
		return nil, nil, nil
	case "memory":
		return query.NewMemoryResultCache(), nil, nil
	case "redis":
		url, err := sec.ResolveReferences(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve redis url: %w", err)
		}
		opts, err := redis.ParseURL(url)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		return query.NewRedisResultCache(client, cfg.Prefix), client, nil
	}
	return nil, nil, fmt.Errorf("unknown query cache backend %q", cfg.Backend)
}

func resolve(ctx context.Context, sec Secrets, secretName, value string) (string, error) {
	if secretName != "" {
		return sec.GetSecret(ctx, secretName)
	}
	return sec.ResolveReferences(ctx, value)
}
