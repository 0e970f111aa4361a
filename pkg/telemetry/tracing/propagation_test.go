package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"mercator-hq/arbiter/pkg/telemetry/logging"
)

const (
	validParent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	validTrace  = "4bf92f3577b34da6a3ce929d0e0e4736"
)

func TestExtract(t *testing.T) {
	h := http.Header{}
	h.Set("traceparent", validParent)

	ctx := Extract(context.Background(), h)
	if got := TraceID(ctx); got != validTrace {
		t.Errorf("TraceID() = %q, want %q", got, validTrace)
	}
	if got := logging.GetTraceID(ctx); got != validTrace {
		t.Errorf("logging trace id = %q, want %q", got, validTrace)
	}
	if got := logging.GetSpanID(ctx); got != "00f067aa0ba902b7" {
		t.Errorf("logging span id = %q", got)
	}
}

func TestExtract_InvalidHeader(t *testing.T) {
	h := http.Header{}
	h.Set("traceparent", "garbage")

	ctx := Extract(context.Background(), h)
	if got := TraceID(ctx); got != "" {
		t.Errorf("TraceID() = %q, want empty", got)
	}
}

func TestInjectRoundTrip(t *testing.T) {
	in := http.Header{}
	in.Set("traceparent", validParent)
	ctx := Extract(context.Background(), in)

	out := http.Header{}
	Inject(ctx, out)
	if got := out.Get("traceparent"); got != validParent {
		t.Errorf("injected traceparent = %q, want %q", got, validParent)
	}
}

func TestEnsure(t *testing.T) {
	ctx := Ensure(context.Background())
	id := TraceID(ctx)
	if len(id) != 32 {
		t.Fatalf("Ensure() trace id = %q, want 32 hex chars", id)
	}
	if logging.GetTraceID(ctx) != id {
		t.Error("Ensure() did not bind the logging context")
	}
	if again := TraceID(Ensure(ctx)); again != id {
		t.Errorf("Ensure() replaced existing trace: %q != %q", again, id)
	}
}

func TestTraceID_LoggingFallback(t *testing.T) {
	ctx := logging.WithTraceID(context.Background(), "manual-id")
	if got := TraceID(ctx); got != "manual-id" {
		t.Errorf("TraceID() = %q, want manual-id", got)
	}
	if got := TraceID(Ensure(ctx)); got != "manual-id" {
		t.Errorf("Ensure() should keep a logging trace id, got %q", got)
	}
}

func TestHTTPMiddleware(t *testing.T) {
	var seen string
	h := HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraceID(r.Context())
	}))

	t.Run("propagates incoming", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("traceparent", validParent)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if seen != validTrace {
			t.Errorf("handler trace = %q, want %q", seen, validTrace)
		}
		if rec.Header().Get(HeaderTraceID) != validTrace {
			t.Errorf("%s = %q", HeaderTraceID, rec.Header().Get(HeaderTraceID))
		}
		if rec.Header().Get(HeaderSpanID) != "00f067aa0ba902b7" {
			t.Errorf("%s = %q", HeaderSpanID, rec.Header().Get(HeaderSpanID))
		}
	})

	t.Run("drops malformed parent", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e473z-00f067aa0ba902b7-01")
		req.Header.Set("tracestate", "vendor=1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if len(seen) != 32 || seen == validTrace {
			t.Errorf("handler trace = %q, want a fresh trace", seen)
		}
		if len(rec.Header().Get(HeaderSpanID)) != 16 {
			t.Errorf("%s = %q", HeaderSpanID, rec.Header().Get(HeaderSpanID))
		}
		if req.Header.Get("traceparent") == "" {
			t.Error("the caller's headers should not be modified")
		}
	})

	t.Run("starts new trace", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		if len(seen) != 32 || rec.Header().Get(HeaderTraceID) != seen {
			t.Errorf("handler trace = %q, header = %q", seen, rec.Header().Get(HeaderTraceID))
		}
	})
}

func TestValidateTraceParent(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{validParent, true},
		{"00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7", false},
		{"00-00000000000000000000000000000000-00f067aa0ba902b7-01", false},
		{"00-4bf92f3577b34da6a3ce929d0e0e4736-0000000000000000-01", false},
		{"0-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", false},
		{"00-4bf92f3577b34da6a3ce929d0e0e473z-00f067aa0ba902b7-01", false},
	}
	for _, tt := range tests {
		if got := ValidateTraceParent(tt.in); got != tt.want {
			t.Errorf("ValidateTraceParent(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
