// Package logging provides structured logging with PII redaction.
//
// The package wraps log/slog with two handlers: one adds request fields
// stored in the context (request ID, caller, trace ID), the other redacts
// PII before records are written. Installing the logger with SetDefault makes
// every component logger created with slog.Default().With(...) use both.
//
// # Usage
//
//	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging))
//	if err != nil {
//	    return err
//	}
//	logger.SetDefault()
//
//	ctx = logging.WithTraceID(ctx, "trace-123")
//	slog.InfoContext(ctx, "decision issued", "decision", "deny")
//	// includes trace_id automatically
//
// # PII Redaction
//
// When RedactPII is enabled, string values are matched against patterns for
// Australian identifiers and common secrets:
//
//   - Tax File Numbers: 123 456 782 → *** *** ***
//   - Medicare numbers: 2123 45670 1 → **** ***** *
//   - Mobile numbers: 0412 345 678 → 04** *** ***
//   - Emails: jo@example.com.au → ***@example.com.au
//   - Bearer tokens and API keys
//
// Attributes with sensitive key names (token, secret, tfn, traditional_owner,
// justification and similar) are masked entirely.
package logging
