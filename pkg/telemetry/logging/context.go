package logging

import (
	"context"
)

// Context keys for common log fields.
type contextKey string

const (
	// RequestIDKey is the context key for request IDs.
	RequestIDKey contextKey = "request_id"

	// APIKeyKey is the context key for the caller's API key.
	APIKeyKey contextKey = "api_key"

	// UserKey is the context key for the authenticated caller.
	UserKey contextKey = "user"

	// SessionKey is the context key for session identifiers.
	SessionKey contextKey = "session"

	// TraceIDKey is the context key for trace IDs.
	TraceIDKey contextKey = "trace_id"

	// SpanIDKey is the context key for span IDs.
	SpanIDKey contextKey = "span_id"
)

func withValue(ctx context.Context, key contextKey, value string) context.Context {
	return context.WithValue(ctx, key, value)
}

func getValue(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	return getValue(ctx, RequestIDKey)
}

// WithAPIKey adds an API key to the context.
func WithAPIKey(ctx context.Context, apiKey string) context.Context {
	return withValue(ctx, APIKeyKey, apiKey)
}

// GetAPIKey retrieves the API key from the context.
func GetAPIKey(ctx context.Context) string {
	return getValue(ctx, APIKeyKey)
}

// WithUser adds the authenticated caller to the context.
func WithUser(ctx context.Context, user string) context.Context {
	return withValue(ctx, UserKey, user)
}

// GetUser retrieves the authenticated caller from the context.
func GetUser(ctx context.Context) string {
	return getValue(ctx, UserKey)
}

// WithSession adds a session ID to the context.
func WithSession(ctx context.Context, session string) context.Context {
	return withValue(ctx, SessionKey, session)
}

// GetSession retrieves the session ID from the context.
func GetSession(ctx context.Context) string {
	return getValue(ctx, SessionKey)
}

// WithTraceID adds a trace ID to the context. Decision logs record it as
// their correlation identifier.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return withValue(ctx, TraceIDKey, traceID)
}

// GetTraceID retrieves the trace ID from the context.
func GetTraceID(ctx context.Context) string {
	return getValue(ctx, TraceIDKey)
}

// WithSpanID adds a span ID to the context.
func WithSpanID(ctx context.Context, spanID string) context.Context {
	return withValue(ctx, SpanIDKey, spanID)
}

// GetSpanID retrieves the span ID from the context.
func GetSpanID(ctx context.Context) string {
	return getValue(ctx, SpanIDKey)
}

// extractContextFields extracts common fields from context for logging.
// Returns a slice of key-value pairs suitable for logger.With().
func extractContextFields(ctx context.Context) []any {
	var fields []any
	for _, key := range []contextKey{RequestIDKey, APIKeyKey, UserKey, SessionKey, TraceIDKey, SpanIDKey} {
		if v := getValue(ctx, key); v != "" {
			fields = append(fields, string(key), v)
		}
	}
	return fields
}
