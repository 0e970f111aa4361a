package config

import (
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.ListenAddress != DefaultListenAddress {
		t.Errorf("ListenAddress = %q, want %q", cfg.Server.ListenAddress, DefaultListenAddress)
	}
	if cfg.Retention.StandardYears != 7 || cfg.Retention.PrivacyYears != 10 || cfg.Retention.IndigenousYears != 50 {
		t.Errorf("retention = %+v, want 7/10/50", cfg.Retention)
	}
	if cfg.Logger.Mode != "sync" {
		t.Errorf("Logger.Mode = %q, want sync", cfg.Logger.Mode)
	}
	if cfg.Storage.Backend != "sqlite" || cfg.Storage.SQLite.Driver != "sqlite3" {
		t.Errorf("storage = %s/%s, want sqlite/sqlite3", cfg.Storage.Backend, cfg.Storage.SQLite.Driver)
	}

	bools := map[string]bool{
		"cache.enabled":                cfg.Cache.Enabled,
		"precheck.enforce_residency":   cfg.PreCheck.EnforceResidency,
		"encryption.enabled":           cfg.Encryption.Enabled,
		"reports.save_snapshots":       cfg.Reports.SaveSnapshots,
		"telemetry.logging.redact_pii": cfg.Telemetry.Logging.RedactPII,
		"telemetry.metrics.enabled":    cfg.Telemetry.Metrics.Enabled,
	}
	for field, ok := range bools {
		if !ok {
			t.Errorf("%s should default to true", field)
		}
	}

	if err := Validate(cfg); err != nil {
		t.Errorf("Default() should validate, got: %v", err)
	}
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Logger.BatchSize = 25
	cfg.Cache.TTL = time.Minute
	cfg.Reports.BusinessHourStart = 8
	cfg.Reports.BusinessHourEnd = 18

	ApplyDefaults(cfg)

	if cfg.Logger.BatchSize != 25 {
		t.Errorf("BatchSize = %d, want 25", cfg.Logger.BatchSize)
	}
	if cfg.Cache.TTL != time.Minute {
		t.Errorf("Cache.TTL = %v, want 1m", cfg.Cache.TTL)
	}
	if cfg.Reports.BusinessHourStart != 8 || cfg.Reports.BusinessHourEnd != 18 {
		t.Errorf("business hours = %d-%d, want 8-18", cfg.Reports.BusinessHourStart, cfg.Reports.BusinessHourEnd)
	}
	if cfg.Logger.FlushInterval != DefaultLoggerFlushInterval {
		t.Errorf("FlushInterval = %v, want default", cfg.Logger.FlushInterval)
	}
}

func TestApplyDefaults_Idempotent(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	ApplyDefaults(cfg)

	if len(cfg.Security.Secrets.Providers) != 1 {
		t.Errorf("secret providers = %d, want 1", len(cfg.Security.Secrets.Providers))
	}
	if len(cfg.Telemetry.Metrics.DurationBuckets) != len(DefaultDurationBuckets) {
		t.Errorf("buckets = %v", cfg.Telemetry.Metrics.DurationBuckets)
	}
}

func TestApplyDefaults_AuthSources(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if len(cfg.Security.Authentication.Sources) != 0 {
		t.Error("sources should stay empty when authentication is disabled")
	}

	cfg.Security.Authentication.Enabled = true
	ApplyDefaults(cfg)
	if len(cfg.Security.Authentication.Sources) != 2 {
		t.Fatalf("sources = %d, want 2", len(cfg.Security.Authentication.Sources))
	}
	if cfg.Security.Authentication.Sources[0].Scheme != "Bearer" {
		t.Errorf("first source = %+v, want bearer header", cfg.Security.Authentication.Sources[0])
	}
}
