package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ARBITER_"

// LoadConfig loads configuration from a YAML file at the specified path.
// The file is decoded over Default(), then defaults are applied to any
// remaining zero fields and the result is validated. Environment variables
// are not consulted; use LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults without validating.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention ARBITER_SECTION_FIELD (e.g., ARBITER_SERVER_LISTEN_ADDRESS).
// An empty path loads the defaults.
//
// The loading sequence is:
// 1. Load YAML from file over the defaults
// 2. Apply environment variable overrides
// 3. Fill any fields the overrides left empty
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if cfg, err = Parse(data); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func envString(name string, dst *string) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		*dst = val
	}
}

func envBool(name string, dst *bool) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func envInt(name string, dst *int) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

func envFloat(name string, dst *float64) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			*dst = f
		}
	}
}

func envList(name string, dst *[]string) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		var out []string
		for _, part := range strings.Split(val, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Service overrides
	envString("SERVICE_NAME", &cfg.Service.Name)
	envString("SERVICE_VERSION", &cfg.Service.Version)
	envString("SERVICE_ENVIRONMENT", &cfg.Service.Environment)

	// Server overrides
	envString("SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	envDuration("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	envInt("SERVER_BATCH_CONCURRENCY", &cfg.Server.BatchConcurrency)

	// Evaluator overrides
	envString("EVALUATOR_URL", &cfg.Evaluator.URL)
	envString("EVALUATOR_QUERY", &cfg.Evaluator.Query)
	envDuration("EVALUATOR_TIMEOUT", &cfg.Evaluator.Timeout)
	envDuration("EVALUATOR_ATTEMPT_TIMEOUT", &cfg.Evaluator.AttemptTimeout)
	envInt("EVALUATOR_MAX_RETRIES", &cfg.Evaluator.MaxRetries)
	envFloat("EVALUATOR_RATE_LIMIT", &cfg.Evaluator.RateLimit)
	envInt("EVALUATOR_RATE_BURST", &cfg.Evaluator.RateBurst)
	envString("EVALUATOR_TOKEN_SECRET", &cfg.Evaluator.TokenSecret)
	envList("EVALUATOR_POLICIES", &cfg.Evaluator.Policies)

	// Cache overrides
	envBool("CACHE_ENABLED", &cfg.Cache.Enabled)
	envDuration("CACHE_TTL", &cfg.Cache.TTL)
	envInt("CACHE_MAX_ENTRIES", &cfg.Cache.MaxEntries)

	// Pre-check overrides
	envBool("PRECHECK_ENFORCE_RESIDENCY", &cfg.PreCheck.EnforceResidency)
	envString("PRECHECK_APPROVED_JURISDICTION", &cfg.PreCheck.ApprovedJurisdiction)

	// Retention overrides
	envInt("RETENTION_STANDARD_YEARS", &cfg.Retention.StandardYears)
	envInt("RETENTION_PRIVACY_YEARS", &cfg.Retention.PrivacyYears)
	envInt("RETENTION_INDIGENOUS_YEARS", &cfg.Retention.IndigenousYears)
	envString("RETENTION_SCHEDULE", &cfg.Retention.Schedule)
	envBool("RETENTION_ARCHIVE_BEFORE_DELETE", &cfg.Retention.ArchiveBeforeDelete)
	envString("RETENTION_ARCHIVE_PATH", &cfg.Retention.ArchivePath)

	// Logger overrides
	envString("LOGGER_MODE", &cfg.Logger.Mode)
	envInt("LOGGER_BATCH_SIZE", &cfg.Logger.BatchSize)
	envDuration("LOGGER_FLUSH_INTERVAL", &cfg.Logger.FlushInterval)
	envDuration("LOGGER_WRITE_TIMEOUT", &cfg.Logger.WriteTimeout)

	// Storage overrides
	envString("STORAGE_BACKEND", &cfg.Storage.Backend)
	envString("STORAGE_SQLITE_PATH", &cfg.Storage.SQLite.Path)
	envString("STORAGE_SQLITE_DRIVER", &cfg.Storage.SQLite.Driver)
	envString("STORAGE_POSTGRES_DSN", &cfg.Storage.Postgres.DSN)
	envString("STORAGE_POSTGRES_DSN_SECRET", &cfg.Storage.Postgres.DSNSecret)

	// Encryption overrides
	envBool("ENCRYPTION_ENABLED", &cfg.Encryption.Enabled)
	envString("ENCRYPTION_KEY_SECRET", &cfg.Encryption.KeySecret)

	// Query overrides
	envDuration("QUERY_TIMEOUT", &cfg.Query.Timeout)
	envString("QUERY_CACHE_BACKEND", &cfg.Query.Cache.Backend)
	envDuration("QUERY_CACHE_TTL", &cfg.Query.Cache.TTL)
	envString("QUERY_CACHE_REDIS_URL", &cfg.Query.Cache.RedisURL)

	// Report overrides
	envString("REPORTS_TIMEZONE", &cfg.Reports.Timezone)
	envBool("REPORTS_SAVE_SNAPSHOTS", &cfg.Reports.SaveSnapshots)

	// Policy overrides
	envString("POLICY_DIRECTORY", &cfg.Policy.Directory)
	envBool("POLICY_WATCH", &cfg.Policy.Watch)

	// Telemetry overrides
	envString("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envBool("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	envString("TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)

	// Security overrides
	envBool("SECURITY_AUTHENTICATION_ENABLED", &cfg.Security.Authentication.Enabled)
}
