// Package tracing carries W3C Trace Context through Arbiter.
//
// Incoming HTTP requests have their traceparent header extracted (or a new
// root trace started) by HTTPMiddleware. The trace id is copied into the
// logging context, recorded in each decision log's audit metadata, and
// forwarded to the policy evaluator with Inject. Span export is not
// performed; Arbiter only correlates.
package tracing
