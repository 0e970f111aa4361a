// Package config provides configuration management for the Arbiter policy
// decision service.
//
// Configuration is loaded from YAML with environment variable overrides:
//
//	cfg, err := config.LoadConfig("arbiter.yaml")
//	cfg, err := config.LoadConfigWithEnvOverrides("arbiter.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention ARBITER_SECTION_FIELD.
// For example:
//
//   - ARBITER_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - ARBITER_STORAGE_POSTGRES_DSN overrides storage.postgres.dsn
//   - ARBITER_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// # Configuration Precedence
//
//  1. Default values (Default and ApplyDefaults)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// Boolean settings that default to true are set by Default before the file
// is decoded, so an explicit "false" in YAML is honoured.
//
// # Validation
//
// Validation errors are collected across all sections and reported together:
//
//	configuration validation failed with 2 errors:
//	  - storage.postgres.dsn: dsn or dsn_secret required for postgres backend
//	  - retention.schedule: invalid cron expression: ...
//
// # Example Configuration
//
//	server:
//	  listen_address: "0.0.0.0:8080"
//
//	evaluator:
//	  url: "http://opa:8181"
//	  policies: ["privacy", "indigenous", "payments"]
//
//	retention:
//	  standard_years: 7
//	  privacy_years: 10
//	  indigenous_years: 50
//	  schedule: "0 3 * * *"
//
//	storage:
//	  backend: "postgres"
//	  postgres:
//	    dsn_secret: "audit_db_dsn"
//
// A loaded Config is treated as read-only. Components copy the sections
// they need when they are built, so there is no process-wide instance.
package config
