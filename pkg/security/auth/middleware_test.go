package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"mercator-hq/arbiter/pkg/telemetry/logging"
)

func TestAPIKeyMiddleware_Handle(t *testing.T) {
	validator := NewAPIKeyValidator([]*APIKeyInfo{
		{Key: "arb_admin", UserID: "compliance-officer", Enabled: true},
		{Key: "arb_revoked", UserID: "gone", Enabled: false},
	})

	tests := []struct {
		name       string
		sources    []APIKeySource
		setup      func(*http.Request)
		wantStatus int
		wantUser   string
	}{
		{
			name:       "bearer token",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer arb_admin") },
			wantStatus: http.StatusOK,
			wantUser:   "compliance-officer",
		},
		{
			name:       "x-api-key header",
			setup:      func(r *http.Request) { r.Header.Set("X-API-Key", "arb_admin") },
			wantStatus: http.StatusOK,
			wantUser:   "compliance-officer",
		},
		{
			name:       "wrong scheme falls through to next source",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Basic arb_admin") },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "missing key",
			setup:      func(r *http.Request) {},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "disabled key",
			setup:      func(r *http.Request) { r.Header.Set("X-API-Key", "arb_revoked") },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "query source",
			sources:    []APIKeySource{{Type: "query", Name: "api_key"}},
			setup:      func(r *http.Request) { r.URL.RawQuery = "api_key=arb_admin" },
			wantStatus: http.StatusOK,
			wantUser:   "compliance-officer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotActor, gotLogUser, gotKey string
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotActor = Actor(r.Context())
				gotLogUser = logging.GetUser(r.Context())
				gotKey = logging.GetAPIKey(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodPut, "/v1/policies/payments", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()

			NewAPIKeyMiddleware(validator, tt.sources).Handle(next).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				if rec.Header().Get("WWW-Authenticate") == "" {
					t.Error("missing WWW-Authenticate header")
				}
				return
			}
			if gotActor != tt.wantUser || gotLogUser != tt.wantUser {
				t.Errorf("actor = %q, log user = %q, want %q", gotActor, gotLogUser, tt.wantUser)
			}
			if gotKey != "arb_***" {
				t.Errorf("context api key = %q, want redacted prefix", gotKey)
			}
		})
	}
}

func TestActor_Anonymous(t *testing.T) {
	if got := Actor(context.Background()); got != "anonymous" {
		t.Errorf("Actor() = %q, want anonymous", got)
	}
	ctx := logging.WithUser(context.Background(), "cli:root")
	if got := Actor(ctx); got != "cli:root" {
		t.Errorf("Actor() = %q, want cli:root", got)
	}
}
