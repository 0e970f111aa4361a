// Package telemetry groups Arbiter's observability packages.
//
// # Components
//
//   - logging: structured slog logging with PII redaction and request
//     scoped fields carried on the context
//   - metrics: Prometheus collectors for decisions, evaluator calls, audit
//     writes, queries and retention runs
//   - tracing: W3C trace context propagation, so every decision log carries
//     the caller's trace id
//   - health: liveness and readiness checks for the evaluator and storage
//
// # Usage
//
//	cfg, _ := config.LoadConfigWithEnvOverrides(path)
//	logger, _ := logging.New(logging.FromConfig(cfg.Telemetry.Logging))
//	logger.SetDefault()
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	eng, _ := engine.NewFromConfig(ctx, cfg, secrets, collector)
//
// # PII Protection
//
// With redact_pii enabled, sensitive values never reach the log output:
//
//   - API keys, bearer tokens and passwords are masked
//   - Emails keep only their domain
//   - Phone, card, Medicare and tax file numbers are masked
//
// Custom redaction patterns can be configured.
package telemetry
