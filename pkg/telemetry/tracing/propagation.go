package tracing

import (
	"context"
	"crypto/rand"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/arbiter/pkg/telemetry/logging"
)

// Response headers carrying the active trace for callers.
const (
	HeaderTraceID = "X-Trace-ID"
	HeaderSpanID  = "X-Span-ID"

	headerTraceParent = "traceparent"
	headerTraceState  = "tracestate"
)

var propagator propagation.TextMapPropagator = propagation.TraceContext{}

// Extract reads W3C traceparent/tracestate headers into ctx. The trace and
// span ids are also stored in the logging context so log lines and audit
// records carry them. Headers without a valid traceparent leave ctx as is.
func Extract(ctx context.Context, headers http.Header) context.Context {
	ctx = propagator.Extract(ctx, propagation.HeaderCarrier(headers))
	return bindLogging(ctx)
}

// Inject writes the trace context of ctx as traceparent/tracestate headers.
// Used on outbound policy evaluator requests.
func Inject(ctx context.Context, headers http.Header) {
	propagator.Inject(ctx, propagation.HeaderCarrier(headers))
}

// Ensure returns ctx unchanged when it already carries a trace. Otherwise a
// new sampled root trace is started so every decision can be correlated.
func Ensure(ctx context.Context) context.Context {
	if TraceID(ctx) != "" {
		return ctx
	}

	var tid trace.TraceID
	var sid trace.SpanID
	_, _ = rand.Read(tid[:])
	_, _ = rand.Read(sid[:])

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    tid,
		SpanID:     sid,
		TraceFlags: trace.FlagsSampled,
	})
	return bindLogging(trace.ContextWithSpanContext(ctx, sc))
}

// TraceID returns the active trace id: the OpenTelemetry span context takes
// precedence over an id set directly with logging.WithTraceID.
func TraceID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return logging.GetTraceID(ctx)
}

func bindLogging(ctx context.Context) context.Context {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ctx
	}
	ctx = logging.WithTraceID(ctx, sc.TraceID().String())
	return logging.WithSpanID(ctx, sc.SpanID().String())
}

// HTTPMiddleware extracts or starts a trace for each request and echoes the
// ids in X-Trace-ID and X-Span-ID response headers. A malformed traceparent
// is logged and dropped along with its tracestate, and the request starts a
// new trace.
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := r.Header
		if tp := headers.Get(headerTraceParent); tp != "" && !ValidateTraceParent(tp) {
			slog.WarnContext(r.Context(), "dropping malformed traceparent",
				"traceparent", tp,
				"path", r.URL.Path,
			)
			headers = headers.Clone()
			headers.Del(headerTraceParent)
			headers.Del(headerTraceState)
		}
		ctx := Ensure(Extract(r.Context(), headers))

		w.Header().Set(HeaderTraceID, TraceID(ctx))
		if span := logging.GetSpanID(ctx); span != "" {
			w.Header().Set(HeaderSpanID, span)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ValidateTraceParent reports whether traceparent is well formed:
// version-trace_id-parent_id-flags with 2, 32, 16 and 2 hex digits and
// non-zero ids.
func ValidateTraceParent(traceparent string) bool {
	parts := strings.Split(traceparent, "-")
	if len(parts) != 4 {
		return false
	}
	for i, n := range []int{2, 32, 16, 2} {
		if len(parts[i]) != n || !isHex(parts[i]) {
			return false
		}
	}
	return strings.Trim(parts[1], "0") != "" && strings.Trim(parts[2], "0") != ""
}

func isHex(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
