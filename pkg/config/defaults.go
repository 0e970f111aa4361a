package config

import "time"

// Default values for configuration fields.
const (
	// Service defaults
	DefaultServiceName    = "arbiter"
	DefaultServiceVersion = "dev"

	// Server defaults
	DefaultListenAddress    = "127.0.0.1:8080"
	DefaultReadTimeout      = 30 * time.Second
	DefaultWriteTimeout     = 30 * time.Second
	DefaultIdleTimeout      = 120 * time.Second
	DefaultShutdownTimeout  = 30 * time.Second
	DefaultMaxBodyBytes     = int64(1048576) // 1MB
	DefaultBatchConcurrency = 8

	// Evaluator defaults
	DefaultEvaluatorURL                = "http://localhost:8181"
	DefaultEvaluatorQuery              = "data.arbiter.decision"
	DefaultEvaluatorTimeout            = 5 * time.Second
	DefaultEvaluatorMaxRetries         = 3
	DefaultEvaluatorBaseBackoff        = 100 * time.Millisecond
	DefaultEvaluatorMaxBackoff         = 2 * time.Second
	DefaultEvaluatorBreakerMaxFailures = uint32(5)
	DefaultEvaluatorBreakerTimeout     = 30 * time.Second

	// Cache defaults
	DefaultCacheEnabled    = true
	DefaultCacheTTL        = 5 * time.Minute
	DefaultCacheMaxEntries = 10000

	// Pre-check defaults
	DefaultEnforceResidency     = true
	DefaultApprovedJurisdiction = "AU"

	// Retention defaults
	DefaultStandardYears     = 7
	DefaultPrivacyYears      = 10
	DefaultIndigenousYears   = 50
	DefaultRetentionSchedule = "0 3 * * *"
	DefaultArchivePath       = "data/archives/"

	// Logger defaults
	DefaultLoggerMode                = "sync"
	DefaultLoggerBatchSize           = 100
	DefaultLoggerFlushInterval       = time.Second
	DefaultLoggerMaxBuffered         = 10000
	DefaultLoggerWriteTimeout        = 5 * time.Second
	DefaultLargeTransactionThreshold = int64(1000000)

	// Storage defaults
	DefaultStorageBackend          = "sqlite"
	DefaultSQLitePath              = "data/arbiter.db"
	DefaultSQLiteDriver            = "sqlite3"
	DefaultSQLiteMaxOpenConns      = 10
	DefaultSQLiteMaxIdleConns      = 5
	DefaultSQLiteWALMode           = true
	DefaultSQLiteBusyTimeout       = 5 * time.Second
	DefaultPostgresMaxOpenConns    = 20
	DefaultPostgresMaxIdleConns    = 10
	DefaultPostgresConnMaxLifetime = 30 * time.Minute

	// Encryption defaults
	DefaultEncryptionEnabled = true
	DefaultKeySecret         = "audit_master_key"

	// Query defaults
	DefaultQueryTimeout      = 30 * time.Second
	DefaultQueryCacheBackend = "memory"
	DefaultQueryCacheTTL     = 30 * time.Second
	DefaultQueryCachePrefix  = "arbiter:audit:query:"

	// Report defaults
	DefaultReportTimezone           = "Australia/Sydney"
	DefaultBusinessHourStart        = 9
	DefaultBusinessHourEnd          = 17
	DefaultDenialRateThreshold      = 0.20
	DefaultAfterHoursRateThreshold  = 0.30
	DefaultHighSensitivityThreshold = 10
	DefaultSaveReportSnapshots      = true

	// Policy defaults
	DefaultPolicyWatch    = true
	DefaultPolicyDebounce = 500 * time.Millisecond

	// Telemetry defaults
	DefaultLoggingLevel     = "info"
	DefaultLoggingFormat    = "json"
	DefaultLoggingRedactPII = true
	DefaultMetricsEnabled   = true
	DefaultPrometheusPath   = "/metrics"
	DefaultMetricsNamespace = "arbiter"
	DefaultLivenessPath     = "/health/live"
	DefaultReadinessPath    = "/health/ready"
	DefaultHealthTimeout    = 5 * time.Second

	// Security defaults
	DefaultSecretsCacheEnabled = true
	DefaultSecretsCacheTTL     = 5 * time.Minute
	DefaultSecretsCacheMaxSize = 1000
	DefaultSecretsEnvPrefix    = "ARBITER_SECRET_"
)

// DefaultDurationBuckets are histogram buckets in seconds.
var DefaultDurationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5}

// Default returns a configuration with every default applied, including the
// boolean settings that default to true. LoadConfig decodes YAML on top of
// it so that an explicit false in the file is kept.
func Default() *Config {
	cfg := &Config{}
	cfg.Cache.Enabled = DefaultCacheEnabled
	cfg.PreCheck.EnforceResidency = DefaultEnforceResidency
	cfg.Storage.SQLite.WALMode = DefaultSQLiteWALMode
	cfg.Encryption.Enabled = DefaultEncryptionEnabled
	cfg.Reports.SaveSnapshots = DefaultSaveReportSnapshots
	cfg.Policy.Watch = DefaultPolicyWatch
	cfg.Telemetry.Logging.RedactPII = DefaultLoggingRedactPII
	cfg.Telemetry.Metrics.Enabled = DefaultMetricsEnabled
	cfg.Security.Secrets.Cache.Enabled = DefaultSecretsCacheEnabled
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any non-boolean fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Service defaults
	if cfg.Service.Name == "" {
		cfg.Service.Name = DefaultServiceName
	}
	if cfg.Service.Version == "" {
		cfg.Service.Version = DefaultServiceVersion
	}

	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.Server.BatchConcurrency == 0 {
		cfg.Server.BatchConcurrency = DefaultBatchConcurrency
	}

	// Evaluator defaults
	ev := &cfg.Evaluator
	if ev.URL == "" {
		ev.URL = DefaultEvaluatorURL
	}
	if ev.Query == "" {
		ev.Query = DefaultEvaluatorQuery
	}
	if ev.Timeout == 0 {
		ev.Timeout = DefaultEvaluatorTimeout
	}
	if ev.MaxRetries == 0 {
		ev.MaxRetries = DefaultEvaluatorMaxRetries
	}
	if ev.BaseBackoff == 0 {
		ev.BaseBackoff = DefaultEvaluatorBaseBackoff
	}
	if ev.MaxBackoff == 0 {
		ev.MaxBackoff = DefaultEvaluatorMaxBackoff
	}
	if ev.BreakerMaxFailures == 0 {
		ev.BreakerMaxFailures = DefaultEvaluatorBreakerMaxFailures
	}
	if ev.BreakerTimeout == 0 {
		ev.BreakerTimeout = DefaultEvaluatorBreakerTimeout
	}

	// Cache defaults
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = DefaultCacheTTL
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = DefaultCacheMaxEntries
	}

	// Pre-check defaults
	if cfg.PreCheck.ApprovedJurisdiction == "" {
		cfg.PreCheck.ApprovedJurisdiction = DefaultApprovedJurisdiction
	}

	// Retention defaults
	if cfg.Retention.StandardYears == 0 {
		cfg.Retention.StandardYears = DefaultStandardYears
	}
	if cfg.Retention.PrivacyYears == 0 {
		cfg.Retention.PrivacyYears = DefaultPrivacyYears
	}
	if cfg.Retention.IndigenousYears == 0 {
		cfg.Retention.IndigenousYears = DefaultIndigenousYears
	}
	if cfg.Retention.ArchivePath == "" {
		cfg.Retention.ArchivePath = DefaultArchivePath
	}

	// Logger defaults
	if cfg.Logger.Mode == "" {
		cfg.Logger.Mode = DefaultLoggerMode
	}
	if cfg.Logger.BatchSize == 0 {
		cfg.Logger.BatchSize = DefaultLoggerBatchSize
	}
	if cfg.Logger.FlushInterval == 0 {
		cfg.Logger.FlushInterval = DefaultLoggerFlushInterval
	}
	if cfg.Logger.MaxBuffered == 0 {
		cfg.Logger.MaxBuffered = DefaultLoggerMaxBuffered
	}
	if cfg.Logger.WriteTimeout == 0 {
		cfg.Logger.WriteTimeout = DefaultLoggerWriteTimeout
	}
	if cfg.Logger.LargeTransactionThreshold == 0 {
		cfg.Logger.LargeTransactionThreshold = DefaultLargeTransactionThreshold
	}

	// Storage defaults
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = DefaultStorageBackend
	}
	if cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = DefaultSQLitePath
	}
	if cfg.Storage.SQLite.Driver == "" {
		cfg.Storage.SQLite.Driver = DefaultSQLiteDriver
	}
	if cfg.Storage.SQLite.MaxOpenConns == 0 {
		cfg.Storage.SQLite.MaxOpenConns = DefaultSQLiteMaxOpenConns
	}
	if cfg.Storage.SQLite.MaxIdleConns == 0 {
		cfg.Storage.SQLite.MaxIdleConns = DefaultSQLiteMaxIdleConns
	}
	if cfg.Storage.SQLite.BusyTimeout == 0 {
		cfg.Storage.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if cfg.Storage.Postgres.MaxOpenConns == 0 {
		cfg.Storage.Postgres.MaxOpenConns = DefaultPostgresMaxOpenConns
	}
	if cfg.Storage.Postgres.MaxIdleConns == 0 {
		cfg.Storage.Postgres.MaxIdleConns = DefaultPostgresMaxIdleConns
	}
	if cfg.Storage.Postgres.ConnMaxLifetime == 0 {
		cfg.Storage.Postgres.ConnMaxLifetime = DefaultPostgresConnMaxLifetime
	}

	// Encryption defaults
	if cfg.Encryption.KeySecret == "" {
		cfg.Encryption.KeySecret = DefaultKeySecret
	}

	// Query defaults
	if cfg.Query.Timeout == 0 {
		cfg.Query.Timeout = DefaultQueryTimeout
	}
	if cfg.Query.Cache.Backend == "" {
		cfg.Query.Cache.Backend = DefaultQueryCacheBackend
	}
	if cfg.Query.Cache.TTL == 0 {
		cfg.Query.Cache.TTL = DefaultQueryCacheTTL
	}
	if cfg.Query.Cache.Prefix == "" {
		cfg.Query.Cache.Prefix = DefaultQueryCachePrefix
	}

	// Report defaults
	if cfg.Reports.Timezone == "" {
		cfg.Reports.Timezone = DefaultReportTimezone
	}
	if cfg.Reports.BusinessHourStart == 0 && cfg.Reports.BusinessHourEnd == 0 {
		cfg.Reports.BusinessHourStart = DefaultBusinessHourStart
		cfg.Reports.BusinessHourEnd = DefaultBusinessHourEnd
	}
	if cfg.Reports.DenialRateThreshold == 0 {
		cfg.Reports.DenialRateThreshold = DefaultDenialRateThreshold
	}
	if cfg.Reports.AfterHoursRateThreshold == 0 {
		cfg.Reports.AfterHoursRateThreshold = DefaultAfterHoursRateThreshold
	}
	if cfg.Reports.HighSensitivityThreshold == 0 {
		cfg.Reports.HighSensitivityThreshold = DefaultHighSensitivityThreshold
	}

	// Policy defaults
	if cfg.Policy.Debounce == 0 {
		cfg.Policy.Debounce = DefaultPolicyDebounce
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultPrometheusPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if len(cfg.Telemetry.Metrics.DurationBuckets) == 0 {
		cfg.Telemetry.Metrics.DurationBuckets = append([]float64(nil), DefaultDurationBuckets...)
	}
	if cfg.Telemetry.Health.LivenessPath == "" {
		cfg.Telemetry.Health.LivenessPath = DefaultLivenessPath
	}
	if cfg.Telemetry.Health.ReadinessPath == "" {
		cfg.Telemetry.Health.ReadinessPath = DefaultReadinessPath
	}
	if cfg.Telemetry.Health.CheckTimeout == 0 {
		cfg.Telemetry.Health.CheckTimeout = DefaultHealthTimeout
	}

	// Security defaults
	if len(cfg.Security.Secrets.Providers) == 0 {
		cfg.Security.Secrets.Providers = []SecretProviderConfig{
			{Type: "env", Enabled: true, Prefix: DefaultSecretsEnvPrefix},
		}
	}
	if cfg.Security.Secrets.Cache.TTL == 0 {
		cfg.Security.Secrets.Cache.TTL = DefaultSecretsCacheTTL
	}
	if cfg.Security.Secrets.Cache.MaxSize == 0 {
		cfg.Security.Secrets.Cache.MaxSize = DefaultSecretsCacheMaxSize
	}
	if cfg.Security.Authentication.Enabled && len(cfg.Security.Authentication.Sources) == 0 {
		cfg.Security.Authentication.Sources = []APIKeySource{
			{Type: "header", Name: "Authorization", Scheme: "Bearer"},
			{Type: "header", Name: "X-API-Key"},
		}
	}
}
