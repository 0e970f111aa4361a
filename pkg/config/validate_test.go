package config

import (
	"errors"
	"strings"
	"testing"
)

func TestValidate_Rules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"listen address", func(c *Config) { c.Server.ListenAddress = "localhost" }, "server.listen_address"},
		{"batch concurrency", func(c *Config) { c.Server.BatchConcurrency = 0 }, "server.batch_concurrency"},
		{"evaluator url", func(c *Config) { c.Evaluator.URL = "opa:8181" }, "evaluator.url"},
		{"attempt longer than call", func(c *Config) { c.Evaluator.AttemptTimeout = c.Evaluator.Timeout * 2 }, "evaluator.attempt_timeout"},
		{"backoff order", func(c *Config) { c.Evaluator.MaxBackoff = c.Evaluator.BaseBackoff / 2 }, "evaluator.max_backoff"},
		{"duplicate policy", func(c *Config) { c.Evaluator.Policies = []string{"a", "a"} }, "evaluator.policies[1]"},
		{"privacy shorter than standard", func(c *Config) { c.Retention.PrivacyYears = 5 }, "retention.privacy_years"},
		{"indigenous shorter than privacy", func(c *Config) { c.Retention.IndigenousYears = 9 }, "retention.indigenous_years"},
		{"archive path", func(c *Config) {
			c.Retention.ArchiveBeforeDelete = true
			c.Retention.ArchivePath = ""
		}, "retention.archive_path"},
		{"logger mode", func(c *Config) { c.Logger.Mode = "async" }, "logger.mode"},
		{"max buffered", func(c *Config) { c.Logger.MaxBuffered = 1 }, "logger.max_buffered"},
		{"storage backend", func(c *Config) { c.Storage.Backend = "mysql" }, "storage.backend"},
		{"sqlite driver", func(c *Config) { c.Storage.SQLite.Driver = "cgo" }, "storage.sqlite.driver"},
		{"query cache backend", func(c *Config) { c.Query.Cache.Backend = "memcached" }, "query.cache.backend"},
		{"redis url", func(c *Config) { c.Query.Cache.Backend = "redis" }, "query.cache.redis_url"},
		{"timezone", func(c *Config) { c.Reports.Timezone = "Mars/Olympus" }, "reports.timezone"},
		{"business hours", func(c *Config) { c.Reports.BusinessHourStart = 18 }, "reports.business_hour_end"},
		{"denial threshold", func(c *Config) { c.Reports.DenialRateThreshold = 1.5 }, "reports.denial_rate_threshold"},
		{"log level", func(c *Config) { c.Telemetry.Logging.Level = "trace" }, "telemetry.logging.level"},
		{"metrics path", func(c *Config) { c.Telemetry.Metrics.Path = "metrics" }, "telemetry.metrics.path"},
		{"file secret provider", func(c *Config) {
			c.Security.Secrets.Providers = []SecretProviderConfig{{Type: "file", Enabled: true}}
		}, "security.secrets.providers[0].path"},
		{"auth without keys", func(c *Config) { c.Security.Authentication.Enabled = true }, "security.authentication.keys"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := Validate(cfg)
			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error = %v, want ValidationError", err)
			}
			found := false
			for _, fe := range verr.Errors {
				if fe.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error on %s, got %v", tt.field, verr.Errors)
			}
		})
	}
}

func TestValidate_SQLiteDrivers(t *testing.T) {
	for _, driver := range []string{"sqlite3", "sqlite"} {
		cfg := Default()
		cfg.Storage.SQLite.Driver = driver
		if err := Validate(cfg); err != nil {
			t.Errorf("driver %q should be valid: %v", driver, err)
		}
	}
}

func TestValidate_MemoryBackend(t *testing.T) {
	cfg := Default()
	cfg.Storage.Backend = "memory"
	cfg.Storage.SQLite.Path = ""
	if err := Validate(cfg); err != nil {
		t.Errorf("memory backend should not need a path: %v", err)
	}
}

func TestValidate_AuthWithKey(t *testing.T) {
	cfg := Default()
	cfg.Security.Authentication.Enabled = true
	cfg.Security.Authentication.Keys = []APIKeyConfig{{Key: "k1", UserID: "ops", Enabled: true}}
	if err := Validate(cfg); err != nil {
		t.Errorf("Validate() failed: %v", err)
	}
}

func TestValidationError_Message(t *testing.T) {
	cfg := Default()
	cfg.Logger.Mode = "async"
	cfg.Storage.Backend = "mysql"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate() should fail")
	}
	if !strings.Contains(err.Error(), "validation failed with 2 errors") {
		t.Errorf("message = %q", err.Error())
	}

	single := ValidationError{Errors: []FieldError{{Field: "a.b", Message: "bad"}}}
	if single.Error() != "configuration validation failed: a.b: bad" {
		t.Errorf("single message = %q", single.Error())
	}
}
