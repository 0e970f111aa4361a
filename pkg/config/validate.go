package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All validation errors are collected and
// returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateEvaluator(&cfg.Evaluator)...)
	errs = append(errs, validateCache(&cfg.Cache)...)
	errs = append(errs, validateRetention(&cfg.Retention)...)
	errs = append(errs, validateLogger(&cfg.Logger)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateEncryption(&cfg.Encryption)...)
	errs = append(errs, validateQuery(&cfg.Query)...)
	errs = append(errs, validateReports(&cfg.Reports)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)
	errs = append(errs, validateSecurity(&cfg.Security)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateServer(s *ServerConfig) []FieldError {
	var errs []FieldError
	if !strings.Contains(s.ListenAddress, ":") {
		errs = append(errs, FieldError{"server.listen_address", "must be in host:port format"})
	}
	if s.MaxBodyBytes < 0 {
		errs = append(errs, FieldError{"server.max_body_bytes", "must not be negative"})
	}
	if s.BatchConcurrency < 1 {
		errs = append(errs, FieldError{"server.batch_concurrency", "must be at least 1"})
	}
	return errs
}

func validateEvaluator(e *EvaluatorConfig) []FieldError {
	var errs []FieldError
	u, err := url.Parse(e.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, FieldError{"evaluator.url", "must be an http(s) URL"})
	}
	if e.Timeout <= 0 {
		errs = append(errs, FieldError{"evaluator.timeout", "must be positive"})
	}
	if e.AttemptTimeout < 0 || (e.Timeout > 0 && e.AttemptTimeout > e.Timeout) {
		errs = append(errs, FieldError{"evaluator.attempt_timeout", "must be between 0 and timeout"})
	}
	if e.MaxRetries < 0 {
		errs = append(errs, FieldError{"evaluator.max_retries", "must not be negative"})
	}
	if e.MaxBackoff < e.BaseBackoff {
		errs = append(errs, FieldError{"evaluator.max_backoff", "must be at least base_backoff"})
	}
	if e.RateLimit < 0 {
		errs = append(errs, FieldError{"evaluator.rate_limit", "must not be negative"})
	}
	seen := map[string]bool{}
	for i, p := range e.Policies {
		field := fmt.Sprintf("evaluator.policies[%d]", i)
		if strings.TrimSpace(p) == "" {
			errs = append(errs, FieldError{field, "must not be empty"})
		} else if seen[p] {
			errs = append(errs, FieldError{field, fmt.Sprintf("duplicate policy %q", p)})
		}
		seen[p] = true
	}
	return errs
}

func validateCache(c *CacheConfig) []FieldError {
	var errs []FieldError
	if c.TTL < 0 {
		errs = append(errs, FieldError{"cache.ttl", "must not be negative"})
	}
	if c.MaxEntries < 0 {
		errs = append(errs, FieldError{"cache.max_entries", "must not be negative"})
	}
	return errs
}

func validateRetention(r *RetentionConfig) []FieldError {
	var errs []FieldError
	if r.StandardYears <= 0 {
		errs = append(errs, FieldError{"retention.standard_years", "must be positive"})
	}
	if r.PrivacyYears < r.StandardYears {
		errs = append(errs, FieldError{"retention.privacy_years", "must be at least standard_years"})
	}
	if r.IndigenousYears < r.PrivacyYears {
		errs = append(errs, FieldError{"retention.indigenous_years", "must be at least privacy_years"})
	}
	if r.Schedule != "" {
		if _, err := cron.ParseStandard(r.Schedule); err != nil {
			errs = append(errs, FieldError{"retention.schedule", fmt.Sprintf("invalid cron expression: %v", err)})
		}
	}
	if r.ArchiveBeforeDelete && r.ArchivePath == "" {
		errs = append(errs, FieldError{"retention.archive_path", "required when archive_before_delete is true"})
	}
	return errs
}

func validateLogger(l *LoggerConfig) []FieldError {
	var errs []FieldError
	if l.Mode != "sync" && l.Mode != "batch" {
		errs = append(errs, FieldError{"logger.mode", `must be "sync" or "batch"`})
	}
	if l.BatchSize < 1 {
		errs = append(errs, FieldError{"logger.batch_size", "must be at least 1"})
	}
	if l.MaxBuffered < l.BatchSize {
		errs = append(errs, FieldError{"logger.max_buffered", "must be at least batch_size"})
	}
	if l.FlushInterval <= 0 {
		errs = append(errs, FieldError{"logger.flush_interval", "must be positive"})
	}
	if l.LargeTransactionThreshold <= 0 {
		errs = append(errs, FieldError{"logger.large_transaction_threshold", "must be positive"})
	}
	return errs
}

func validateStorage(s *StorageConfig) []FieldError {
	var errs []FieldError
	switch s.Backend {
	case "memory":
	case "sqlite":
		if s.SQLite.Path == "" {
			errs = append(errs, FieldError{"storage.sqlite.path", "required for sqlite backend"})
		}
		if s.SQLite.Driver != "sqlite3" && s.SQLite.Driver != "sqlite" {
			errs = append(errs, FieldError{"storage.sqlite.driver", `must be "sqlite3" or "sqlite"`})
		}
	case "postgres":
		if s.Postgres.DSN == "" && s.Postgres.DSNSecret == "" {
			errs = append(errs, FieldError{"storage.postgres.dsn", "dsn or dsn_secret required for postgres backend"})
		}
	default:
		errs = append(errs, FieldError{"storage.backend", `must be "sqlite", "postgres" or "memory"`})
	}
	return errs
}

func validateEncryption(e *EncryptionConfig) []FieldError {
	if e.KeySecret == "" {
		return []FieldError{{"encryption.key_secret", "must not be empty"}}
	}
	return nil
}

func validateQuery(q *QueryConfig) []FieldError {
	var errs []FieldError
	if q.Timeout <= 0 {
		errs = append(errs, FieldError{"query.timeout", "must be positive"})
	}
	switch q.Cache.Backend {
	case "memory", "none":
	case "redis":
		if q.Cache.RedisURL == "" {
			errs = append(errs, FieldError{"query.cache.redis_url", "required for redis cache"})
		}
	default:
		errs = append(errs, FieldError{"query.cache.backend", `must be "memory", "redis" or "none"`})
	}
	return errs
}

func validateReports(r *ReportsConfig) []FieldError {
	var errs []FieldError
	if _, err := time.LoadLocation(r.Timezone); err != nil {
		errs = append(errs, FieldError{"reports.timezone", fmt.Sprintf("unknown timezone %q", r.Timezone)})
	}
	if r.BusinessHourStart < 0 || r.BusinessHourEnd > 24 || r.BusinessHourStart >= r.BusinessHourEnd {
		errs = append(errs, FieldError{"reports.business_hour_end", "business hours must satisfy 0 <= start < end <= 24"})
	}
	for field, v := range map[string]float64{
		"reports.denial_rate_threshold":      r.DenialRateThreshold,
		"reports.after_hours_rate_threshold": r.AfterHoursRateThreshold,
	} {
		if v <= 0 || v >= 1 {
			errs = append(errs, FieldError{field, "must be between 0 and 1"})
		}
	}
	return errs
}

func validateTelemetry(t *TelemetryConfig) []FieldError {
	var errs []FieldError
	switch t.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{"telemetry.logging.level", "must be one of debug, info, warn, error"})
	}
	switch t.Logging.Format {
	case "json", "text", "console":
	default:
		errs = append(errs, FieldError{"telemetry.logging.format", "must be one of json, text, console"})
	}
	if !strings.HasPrefix(t.Metrics.Path, "/") {
		errs = append(errs, FieldError{"telemetry.metrics.path", "must start with /"})
	}
	return errs
}

func validateSecurity(s *SecurityConfig) []FieldError {
	var errs []FieldError
	for i, p := range s.Secrets.Providers {
		field := fmt.Sprintf("security.secrets.providers[%d]", i)
		switch p.Type {
		case "env":
		case "file":
			if p.Path == "" {
				errs = append(errs, FieldError{field + ".path", "required for file provider"})
			}
		default:
			errs = append(errs, FieldError{field + ".type", `must be "env" or "file"`})
		}
	}
	if s.Authentication.Enabled {
		enabled := 0
		for i, k := range s.Authentication.Keys {
			if k.Key == "" {
				errs = append(errs, FieldError{fmt.Sprintf("security.authentication.keys[%d].key", i), "must not be empty"})
			}
			if k.Enabled {
				enabled++
			}
		}
		if enabled == 0 {
			errs = append(errs, FieldError{"security.authentication.keys", "at least one enabled key required when authentication is enabled"})
		}
	}
	return errs
}
