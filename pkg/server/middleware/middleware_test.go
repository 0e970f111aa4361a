package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mercator-hq/arbiter/pkg/telemetry/logging"
)

func TestRequestIDMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		wantSame bool
	}{
		{"generated", "", false},
		{"client supplied", "client-id-1", true},
		{"oversized is replaced", strings.Repeat("x", 200), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ctxID, logID string
			h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ctxID = GetRequestID(r.Context())
				logID = logging.GetRequestID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(RequestIDHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			got := rec.Header().Get(RequestIDHeader)
			if got == "" || got != ctxID || got != logID {
				t.Fatalf("header %q, context %q, logging %q should match", got, ctxID, logID)
			}
			if (got == tt.header) != tt.wantSame {
				t.Errorf("request id = %q, client sent %q", got, tt.header)
			}
		})
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RequestIDMiddleware(RecoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var body ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Type != ErrorTypeServerError || strings.Contains(body.Error.Message, "boom") {
		t.Errorf("body = %+v", body)
	}
	if body.Error.RequestID == "" {
		t.Error("error body should carry the request id")
	}
}

func TestLoggingMiddlewareCapturesStatus(t *testing.T) {
	var start time.Time
	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start = GetStartTime(r.Context())
		w.WriteHeader(http.StatusTeapot)
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want first written status", rec.Code)
	}
	if start.IsZero() {
		t.Error("start time not stored in context")
	}
}

func TestBodyLimitMiddleware(t *testing.T) {
	h := BodyLimitMiddleware(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			WriteError(w, r, http.StatusRequestEntityTooLarge, ErrorTypeRequestTooLarge, err.Error(), "")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name string
		body string
		want int
	}{
		{"within limit", "small", http.StatusNoContent},
		{"declared too large", "this body is too large", http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body)))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestTimeoutMiddleware(t *testing.T) {
	var deadline time.Time
	var ok bool
	h := TimeoutMiddleware(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, ok = r.Context().Deadline()
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !ok || time.Until(deadline) > time.Second {
		t.Errorf("deadline = %v (set %v), want within 1s", deadline, ok)
	}

	if TimeoutMiddleware(0)(h) == nil {
		t.Error("zero timeout should pass through")
	}
}
