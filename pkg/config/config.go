package config

import "time"

// Config is the root configuration structure for Arbiter.
// It contains all configuration sections for the decision engine, its
// evaluator client, audit storage, reporting, telemetry and security.
type Config struct {
	// Service identifies this deployment in audit metadata.
	Service ServiceConfig `yaml:"service"`

	// Server contains HTTP API server configuration.
	Server ServerConfig `yaml:"server"`

	// Evaluator contains configuration for the external policy evaluator.
	Evaluator EvaluatorConfig `yaml:"evaluator"`

	// Cache contains decision cache configuration.
	Cache CacheConfig `yaml:"cache"`

	// PreCheck contains pre-check gate configuration.
	PreCheck PreCheckConfig `yaml:"precheck"`

	// Retention contains retention tiers and purge scheduling.
	Retention RetentionConfig `yaml:"retention"`

	// Logger contains decision logger configuration.
	Logger LoggerConfig `yaml:"logger"`

	// Storage contains audit storage backend configuration.
	Storage StorageConfig `yaml:"storage"`

	// Encryption contains integrity and field encryption configuration.
	Encryption EncryptionConfig `yaml:"encryption"`

	// Query contains audit query engine configuration.
	Query QueryConfig `yaml:"query"`

	// Reports contains compliance report configuration.
	Reports ReportsConfig `yaml:"reports"`

	// Policy contains policy directory synchronization configuration.
	Policy PolicyConfig `yaml:"policy"`

	// Telemetry contains configuration for logging, metrics and health.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Security contains secret management and API authentication.
	Security SecurityConfig `yaml:"security"`
}

// ServiceConfig identifies the service.
type ServiceConfig struct {
	// Name is recorded on every decision log.
	// Default: "arbiter"
	Name string `yaml:"name"`

	// Version is recorded on every decision log.
	// Default: "dev"
	Version string `yaml:"version"`

	// Environment is a free-form deployment label.
	Environment string `yaml:"environment"`
}

// ServerConfig contains configuration for the HTTP API server.
type ServerConfig struct {
	// ListenAddress is the address and port for the API to listen on.
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response.
	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown, including the final
	// decision log flush.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxBodyBytes limits request body size.
	// Default: 1048576 (1MB)
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// BatchConcurrency bounds parallel evaluations in a batch request.
	// Default: 8
	BatchConcurrency int `yaml:"batch_concurrency"`
}

// EvaluatorConfig contains configuration for the external policy evaluator.
type EvaluatorConfig struct {
	// URL is the evaluator base URL.
	// Default: "http://localhost:8181"
	URL string `yaml:"url"`

	// Query is the decision document path sent with each evaluation.
	// Default: "data.arbiter.decision"
	Query string `yaml:"query"`

	// Timeout bounds one evaluation including retries.
	// Default: 5s
	Timeout time.Duration `yaml:"timeout"`

	// AttemptTimeout bounds each attempt within Timeout. An attempt that
	// exceeds it is retried. Zero splits Timeout evenly across attempts.
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`

	// MaxRetries is the number of retries after the first attempt.
	// Default: 3
	MaxRetries int `yaml:"max_retries"`

	// BaseBackoff is the first retry delay; each retry doubles it.
	// Default: 100ms
	BaseBackoff time.Duration `yaml:"base_backoff"`

	// MaxBackoff caps the retry delay.
	// Default: 2s
	MaxBackoff time.Duration `yaml:"max_backoff"`

	// RateLimit is the sustained requests per second (0 = unlimited).
	RateLimit float64 `yaml:"rate_limit"`

	// RateBurst is the limiter bucket size.
	RateBurst int `yaml:"rate_burst"`

	// BreakerMaxFailures opens the circuit after this many consecutive
	// failures.
	// Default: 5
	BreakerMaxFailures uint32 `yaml:"breaker_max_failures"`

	// BreakerTimeout is how long the circuit stays open.
	// Default: 30s
	BreakerTimeout time.Duration `yaml:"breaker_timeout"`

	// TokenSecret names a secret sent as a bearer token to the evaluator.
	TokenSecret string `yaml:"token_secret"`

	// Policies is the default ordered policy set evaluated per intent.
	Policies []string `yaml:"policies"`

	// Explain requests evaluator explanations for every decision.
	Explain bool `yaml:"explain"`
}

// CacheConfig contains decision cache configuration.
type CacheConfig struct {
	// Enabled controls whether decisions are cached.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// TTL is the default entry lifetime.
	// Default: 5m
	TTL time.Duration `yaml:"ttl"`

	// MaxEntries bounds the cache.
	// Default: 10000
	MaxEntries int `yaml:"max_entries"`
}

// PreCheckConfig contains pre-check gate configuration.
type PreCheckConfig struct {
	// EnforceResidency requires users to be inside ApprovedJurisdiction.
	// Default: true
	EnforceResidency bool `yaml:"enforce_residency"`

	// ApprovedJurisdiction is an ISO country code.
	// Default: "AU"
	ApprovedJurisdiction string `yaml:"approved_jurisdiction"`
}

// RetentionConfig contains retention tiers and purge scheduling.
type RetentionConfig struct {
	// StandardYears applies when no stricter regime applies.
	// Default: 7
	StandardYears int `yaml:"standard_years"`

	// PrivacyYears applies to privacy-law decisions.
	// Default: 10
	PrivacyYears int `yaml:"privacy_years"`

	// IndigenousYears applies to decisions involving Indigenous data.
	// Default: 50
	IndigenousYears int `yaml:"indigenous_years"`

	// Schedule is a cron expression for automatic purges. Empty disables.
	// Default: "0 3 * * *"
	Schedule string `yaml:"schedule"`

	// ArchiveBeforeDelete writes a JSON archive before purging.
	// Default: false
	ArchiveBeforeDelete bool `yaml:"archive_before_delete"`

	// ArchivePath is the archive directory.
	// Default: "data/archives/"
	ArchivePath string `yaml:"archive_path"`
}

// LoggerConfig contains decision logger configuration.
type LoggerConfig struct {
	// Mode is "sync" or "batch".
	// Default: "sync"
	Mode string `yaml:"mode"`

	// BatchSize flushes the buffer once it holds this many logs.
	// Default: 100
	BatchSize int `yaml:"batch_size"`

	// FlushInterval flushes the buffer periodically.
	// Default: 1s
	FlushInterval time.Duration `yaml:"flush_interval"`

	// MaxBuffered bounds the batch buffer.
	// Default: 10000
	MaxBuffered int `yaml:"max_buffered"`

	// WriteTimeout bounds a storage write.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// LargeTransactionThreshold is the financial-crime reporting threshold
	// in minor currency units.
	// Default: 1000000 (AUD 10,000)
	LargeTransactionThreshold int64 `yaml:"large_transaction_threshold"`
}

// StorageConfig contains audit storage configuration.
type StorageConfig struct {
	// Backend is "sqlite", "postgres" or "memory".
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite contains SQLite backend configuration.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// Postgres contains PostgreSQL backend configuration.
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig contains SQLite backend configuration.
type SQLiteConfig struct {
	// Path is the database file path.
	// Default: "data/arbiter.db"
	Path string `yaml:"path"`

	// Driver is "sqlite3" (cgo) or "sqlite" (pure Go).
	// Default: "sqlite3"
	Driver string `yaml:"driver"`

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// WALMode enables write-ahead logging.
	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is the lock wait timeout.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// PostgresConfig contains PostgreSQL backend configuration.
type PostgresConfig struct {
	// DSN is the connection string. DSNSecret takes precedence when set.
	DSN string `yaml:"dsn"`

	// DSNSecret names a secret holding the connection string.
	DSNSecret string `yaml:"dsn_secret"`

	// MaxOpenConns is the maximum number of open connections.
	// Default: 20
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 10
	MaxIdleConns int `yaml:"max_idle_conns"`

	// ConnMaxLifetime recycles connections.
	// Default: 30m
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// EncryptionConfig contains integrity and field encryption configuration.
type EncryptionConfig struct {
	// Enabled seals sensitive fields with AES-256-GCM at rest. Integrity
	// hashing is always on.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// KeySecret names the secret holding the base64 or hex master key.
	// Default: "audit_master_key"
	KeySecret string `yaml:"key_secret"`
}

// QueryConfig contains audit query engine configuration.
type QueryConfig struct {
	// Timeout bounds a query when the caller sets none.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout"`

	// Cache contains result cache configuration.
	Cache QueryCacheConfig `yaml:"cache"`
}

// QueryCacheConfig configures the secondary query result cache.
type QueryCacheConfig struct {
	// Backend is "memory", "redis" or "none".
	// Default: "memory"
	Backend string `yaml:"backend"`

	// TTL is how long a result page is served from cache.
	// Default: 30s
	TTL time.Duration `yaml:"ttl"`

	// RedisURL is the Redis connection URL (for "redis").
	// Example: "redis://localhost:6379/0"
	RedisURL string `yaml:"redis_url"`

	// Prefix namespaces cache keys in Redis.
	// Default: "arbiter:audit:query:"
	Prefix string `yaml:"prefix"`
}

// ReportsConfig contains compliance report configuration.
type ReportsConfig struct {
	// Timezone is used for business-hours heuristics.
	// Default: "Australia/Sydney"
	Timezone string `yaml:"timezone"`

	// BusinessHourStart is the first business hour.
	// Default: 9
	BusinessHourStart int `yaml:"business_hour_start"`

	// BusinessHourEnd is the hour business ends.
	// Default: 17
	BusinessHourEnd int `yaml:"business_hour_end"`

	// DenialRateThreshold flags users with a higher denial rate.
	// Default: 0.20
	DenialRateThreshold float64 `yaml:"denial_rate_threshold"`

	// AfterHoursRateThreshold flags users with more after-hours activity.
	// Default: 0.30
	AfterHoursRateThreshold float64 `yaml:"after_hours_rate_threshold"`

	// HighSensitivityThreshold flags users with at least this many
	// restricted or secret decisions.
	// Default: 10
	HighSensitivityThreshold int `yaml:"high_sensitivity_threshold"`

	// SaveSnapshots persists every generated report.
	// Default: true
	SaveSnapshots bool `yaml:"save_snapshots"`
}

// PolicyConfig contains policy directory synchronization configuration.
type PolicyConfig struct {
	// Directory holds policy documents pushed to the evaluator. Empty
	// disables synchronization.
	Directory string `yaml:"directory"`

	// Watch reloads documents when files change.
	// Default: true
	Watch bool `yaml:"watch"`

	// Debounce coalesces bursts of file events.
	// Default: 500ms
	Debounce time.Duration `yaml:"debounce"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Health contains health check configuration.
	Health HealthConfig `yaml:"health"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text", "console"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactPII enables automatic PII redaction in logs.
	// Default: true
	RedactPII bool `yaml:"redact_pii"`

	// RedactPatterns contains custom PII redaction patterns.
	RedactPatterns []RedactPattern `yaml:"redact_patterns"`
}

// RedactPattern defines a custom PII redaction pattern.
type RedactPattern struct {
	// Name is a descriptive name for the pattern.
	Name string `yaml:"name"`

	// Pattern is the regular expression to match.
	Pattern string `yaml:"pattern"`

	// Replacement is the string to replace matches with.
	Replacement string `yaml:"replacement"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "arbiter"
	Namespace string `yaml:"namespace"`

	// DurationBuckets defines histogram buckets for evaluation and query
	// durations (seconds).
	// Default: [0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5]
	DurationBuckets []float64 `yaml:"duration_buckets"`
}

// HealthConfig contains health check endpoint configuration.
type HealthConfig struct {
	// LivenessPath is the path for the liveness probe endpoint.
	// Default: "/health/live"
	LivenessPath string `yaml:"liveness_path"`

	// ReadinessPath is the path for the readiness probe endpoint.
	// Default: "/health/ready"
	ReadinessPath string `yaml:"readiness_path"`

	// CheckTimeout is the timeout for individual component health checks.
	// Default: 5s
	CheckTimeout time.Duration `yaml:"check_timeout"`
}

// SecurityConfig contains security-related configuration.
type SecurityConfig struct {
	// Secrets contains secret management configuration.
	Secrets SecretsConfig `yaml:"secrets"`

	// Authentication contains API key authentication configuration for the
	// administrative HTTP routes.
	Authentication AuthenticationConfig `yaml:"authentication"`
}

// SecretsConfig contains secret management configuration.
type SecretsConfig struct {
	// Providers is a list of secret providers to use.
	// Providers are tried in order until one successfully returns a value.
	Providers []SecretProviderConfig `yaml:"providers"`

	// Cache contains secret caching configuration.
	Cache SecretsCacheConfig `yaml:"cache"`
}

// SecretProviderConfig contains configuration for a secret provider.
type SecretProviderConfig struct {
	// Type is the provider type.
	// Options: "env", "file"
	Type string `yaml:"type"`

	// Enabled controls whether this provider is enabled.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Prefix is the environment variable prefix (for "env" provider).
	// Example: "ARBITER_SECRET_"
	Prefix string `yaml:"prefix,omitempty"`

	// Path is the base path for file-based secrets (for "file" provider).
	// Example: "/var/secrets"
	Path string `yaml:"path,omitempty"`

	// Watch enables file watching for auto-reload (for "file" provider).
	Watch bool `yaml:"watch,omitempty"`
}

// SecretsCacheConfig contains configuration for secret caching.
type SecretsCacheConfig struct {
	// Enabled controls whether secret caching is enabled.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// TTL is the time-to-live for cached secrets.
	// Default: 5m
	TTL time.Duration `yaml:"ttl"`

	// MaxSize is the maximum number of secrets to cache.
	// Default: 1000
	MaxSize int `yaml:"max_size"`
}

// AuthenticationConfig contains API key authentication configuration.
type AuthenticationConfig struct {
	// Enabled controls whether API key authentication is enabled.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sources defines where to extract API keys from (headers, query params).
	Sources []APIKeySource `yaml:"sources"`

	// Keys is the list of valid API keys.
	Keys []APIKeyConfig `yaml:"keys"`
}

// APIKeySource defines where to extract API keys from in HTTP requests.
type APIKeySource struct {
	// Type is the source type.
	// Options: "header", "query"
	Type string `yaml:"type"`

	// Name is the header name or query parameter name.
	Name string `yaml:"name"`

	// Scheme is the authentication scheme for header-based extraction.
	// Example: "Bearer"
	Scheme string `yaml:"scheme,omitempty"`
}

// APIKeyConfig contains configuration for a single API key.
type APIKeyConfig struct {
	// Key is the API key value.
	Key string `yaml:"key"`

	// UserID is the operator identity recorded in the operations audit.
	UserID string `yaml:"user_id"`

	// Enabled controls whether this key is enabled.
	// Default: true
	Enabled bool `yaml:"enabled"`
}
