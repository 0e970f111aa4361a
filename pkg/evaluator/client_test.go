package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"mercator-hq/arbiter/pkg/decision"
	"mercator-hq/arbiter/pkg/decision/decisiontest"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*HTTPClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.BaseBackoff = time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond
	client, err := NewHTTPClient(cfg)
	if err != nil {
		t.Fatalf("NewHTTPClient() error = %v", err)
	}
	return client, srv
}

// TestHTTPClient_Evaluate_Boolean tests that boolean results map to allow/deny.
func TestHTTPClient_Evaluate_Boolean(t *testing.T) {
	for _, tc := range []struct {
		result string
		want   decision.Outcome
	}{
		{"true", decision.Allow},
		{"false", decision.Deny},
	} {
		t.Run(tc.result, func(t *testing.T) {
			var got evaluateRequest
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost || r.URL.Path != "/v1/evaluate" {
					t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
				}
				body, _ := io.ReadAll(r.Body)
				if err := json.Unmarshal(body, &got); err != nil {
					t.Errorf("request body not JSON: %v", err)
				}
				w.Write([]byte(`{"result":` + tc.result + `}`))
			})

			d, err := client.Evaluate(context.Background(), decisiontest.NewIntent("i1"), []string{"payments", "limits"}, Options{Explain: true})
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if d.Decision != tc.want {
				t.Errorf("Decision = %s, want %s", d.Decision, tc.want)
			}
			if d.Reason == "" {
				t.Error("Reason must not be empty")
			}
			if len(d.EvaluatedPolicies) != 2 || d.EvaluatedPolicies[0] != "payments" {
				t.Errorf("EvaluatedPolicies = %v", d.EvaluatedPolicies)
			}
			if d.Raw == nil || string(d.Raw.Result) != tc.result {
				t.Errorf("Raw.Result = %v, want %s", d.Raw, tc.result)
			}
			if got.Input == nil || got.Input.ID != "i1" || !got.Explain || got.Query != DefaultQuery {
				t.Errorf("unexpected request payload %+v", got)
			}
		})
	}
}

// TestHTTPClient_Evaluate_Conditional tests conditional normalization.
func TestHTTPClient_Evaluate_Conditional(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"result": {
				"conditional": true,
				"conditions": [{"type": "approval_required", "description": "two approvers", "requirements": {"approvers": 2}}]
			},
			"evaluated_policies": ["payments"]
		}`))
	})

	d, err := client.Evaluate(context.Background(), decisiontest.NewIntent("i1"), []string{"payments", "limits"}, DefaultOptions())
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if d.Decision != decision.Conditional {
		t.Fatalf("Decision = %s, want conditional", d.Decision)
	}
	if len(d.Conditions) != 1 || d.Conditions[0].Type != decision.ConditionApprovalRequired {
		t.Errorf("Conditions = %+v", d.Conditions)
	}
	if d.Conditions[0].Requirements["approvers"].(float64) != 2 {
		t.Errorf("requirements not preserved: %v", d.Conditions[0].Requirements)
	}
	if len(d.EvaluatedPolicies) != 1 {
		t.Errorf("EvaluatedPolicies should come from the response, got %v", d.EvaluatedPolicies)
	}
}

// TestHTTPClient_Evaluate_RetriesThenSucceeds tests retry on 5xx.
func TestHTTPClient_Evaluate_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"result":true}`))
	})

	d, err := client.Evaluate(context.Background(), decisiontest.NewIntent("i1"), []string{"p"}, DefaultOptions())
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if d.Decision != decision.Allow {
		t.Errorf("Decision = %s", d.Decision)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

// TestHTTPClient_Evaluate_RetriesExhausted tests the EvaluationError path.
func TestHTTPClient_Evaluate_RetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.Evaluate(context.Background(), decisiontest.NewIntent("i1"), []string{"p"}, DefaultOptions())
	var evalErr *EvaluationError
	if !errors.As(err, &evalErr) {
		t.Fatalf("expected EvaluationError, got %T: %v", err, err)
	}
	if evalErr.Attempts != DefaultMaxRetries+1 {
		t.Errorf("Attempts = %d, want %d", evalErr.Attempts, DefaultMaxRetries+1)
	}
	if int(calls.Load()) != DefaultMaxRetries+1 {
		t.Errorf("calls = %d", calls.Load())
	}
}

// TestHTTPClient_Evaluate_Timeout tests that the per-call timeout is honored.
func TestHTTPClient_Evaluate_Timeout(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	start := time.Now()
	_, err := client.Evaluate(context.Background(), decisiontest.NewIntent("i1"), []string{"p"}, Options{Timeout: 50 * time.Millisecond})
	if err == nil {
		t.Fatal("expected error on timeout")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Errorf("timeout not honored, took %v", time.Since(start))
	}
}

// TestHTTPClient_Evaluate_RetriesTimedOutAttempt tests that an attempt which
// hangs past its share of the timeout is retried.
func TestHTTPClient_Evaluate_RetriesTimedOutAttempt(t *testing.T) {
	tests := []struct {
		name           string
		attemptTimeout time.Duration
	}{
		{name: "derived from call timeout"},
		{name: "configured", attemptTimeout: 40 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) == 1 {
					select {
					case <-r.Context().Done():
					case <-time.After(500 * time.Millisecond):
					}
					return
				}
				w.Write([]byte(`{"result":true}`))
			}))
			t.Cleanup(srv.Close)

			cfg := DefaultConfig()
			cfg.BaseURL = srv.URL
			cfg.MaxRetries = 3
			cfg.AttemptTimeout = tt.attemptTimeout
			cfg.BaseBackoff = time.Millisecond
			cfg.MaxBackoff = 5 * time.Millisecond
			client, err := NewHTTPClient(cfg)
			if err != nil {
				t.Fatalf("NewHTTPClient() error = %v", err)
			}

			d, err := client.Evaluate(context.Background(), decisiontest.NewIntent("i1"), []string{"p"}, Options{Timeout: 200 * time.Millisecond})
			if err != nil {
				t.Fatalf("Evaluate() error = %v (calls = %d)", err, calls.Load())
			}
			if d.Decision != decision.Allow {
				t.Errorf("Decision = %s, want allow", d.Decision)
			}
			if calls.Load() != 2 {
				t.Errorf("calls = %d, want 2", calls.Load())
			}
		})
	}
}

func TestHTTPClient_AttemptTimeout(t *testing.T) {
	tests := []struct {
		name       string
		configured time.Duration
		retries    int
		total      time.Duration
		want       time.Duration
	}{
		{"split evenly", 0, 3, 200 * time.Millisecond, 50 * time.Millisecond},
		{"no retries", 0, 0, time.Second, time.Second},
		{"configured", 30 * time.Millisecond, 3, time.Second, 30 * time.Millisecond},
		{"capped by call", 2 * time.Second, 3, time.Second, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &HTTPClient{config: Config{AttemptTimeout: tt.configured, MaxRetries: tt.retries}}
			if got := c.attemptTimeout(tt.total); got != tt.want {
				t.Errorf("attemptTimeout(%v) = %v, want %v", tt.total, got, tt.want)
			}
		})
	}
}

// TestHTTPClient_CircuitOpens tests that repeated failures open the breaker.
func TestHTTPClient_CircuitOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client, err := NewHTTPClient(Config{
		BaseURL:     srv.URL,
		MaxRetries:  0,
		BaseBackoff: time.Millisecond,
		Breaker:     BreakerConfig{MaxFailures: 2, Timeout: time.Minute},
	})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		client.Evaluate(context.Background(), decisiontest.NewIntent("i"), nil, DefaultOptions())
	}
	_, err = client.Evaluate(context.Background(), decisiontest.NewIntent("i"), nil, DefaultOptions())
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("evaluator called %d times, want 2", calls.Load())
	}
	if client.BreakerState() != "open" {
		t.Errorf("BreakerState() = %s", client.BreakerState())
	}
}

// TestHTTPClient_LoadPolicy tests policy upload and error classification.
func TestHTTPClient_LoadPolicy(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantLoad   bool
		wantTransp bool
	}{
		{name: "accepted", status: http.StatusOK},
		{name: "syntax error", status: http.StatusBadRequest, body: `{"message":"rego_parse_error: unexpected token"}`, wantLoad: true},
		{name: "server failure", status: http.StatusInternalServerError, wantTransp: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPut || r.URL.Path != "/v1/policies/payments" {
					t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
				}
				if r.Header.Get("X-Policy-Version") != "v2" {
					t.Errorf("missing version header")
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			err := client.LoadPolicy(context.Background(), PolicyDocument{ID: "payments", Version: "v2", Content: []byte("package payments")})

			var loadErr *PolicyLoadError
			var transpErr *TransportError
			switch {
			case tt.wantLoad:
				if !errors.As(err, &loadErr) {
					t.Fatalf("expected PolicyLoadError, got %v", err)
				}
				if loadErr.Message != "rego_parse_error: unexpected token" {
					t.Errorf("Message = %q", loadErr.Message)
				}
			case tt.wantTransp:
				if !errors.As(err, &transpErr) {
					t.Fatalf("expected TransportError, got %v", err)
				}
				if errors.As(err, &loadErr) {
					t.Error("transport failure must not be a PolicyLoadError")
				}
			default:
				if err != nil {
					t.Fatalf("LoadPolicy() error = %v", err)
				}
			}
		})
	}
}

// TestHTTPClient_RemovePolicy_Idempotent tests that removing an unknown policy succeeds.
func TestHTTPClient_RemovePolicy_Idempotent(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("Method = %s", r.Method)
		}
		w.WriteHeader(http.StatusNotFound)
	})

	if err := client.RemovePolicy(context.Background(), "missing"); err != nil {
		t.Errorf("RemovePolicy() error = %v", err)
	}
}

func TestHTTPClient_Health(t *testing.T) {
	var unhealthy atomic.Bool
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if unhealthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})

	if err := client.Health(context.Background()); err != nil {
		t.Errorf("Health() error = %v", err)
	}
	unhealthy.Store(true)
	if err := client.Health(context.Background()); err == nil {
		t.Error("expected unhealthy error")
	}
}

func TestNewHTTPClient_RequiresBaseURL(t *testing.T) {
	if _, err := NewHTTPClient(Config{}); err == nil {
		t.Error("expected error for empty base URL")
	}
}
