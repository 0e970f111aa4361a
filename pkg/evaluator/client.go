package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"mercator-hq/arbiter/pkg/decision"
	"mercator-hq/arbiter/pkg/telemetry/tracing"
)

// Default client settings.
const (
	DefaultQuery       = "data.arbiter.decision"
	DefaultMaxRetries  = 3
	DefaultBaseBackoff = 100 * time.Millisecond
	DefaultMaxBackoff  = 2 * time.Second

	defaultBreakerMaxFailures uint32 = 5
	defaultBreakerTimeout            = 30 * time.Second
	defaultBreakerInterval           = 60 * time.Second

	maxResponseBytes = 4 << 20
)

// BreakerConfig configures the circuit breaker around evaluator calls.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures before the circuit opens.
	MaxFailures uint32
	// Timeout is how long the circuit stays open before probing again.
	Timeout time.Duration
	// Interval clears failure counts while closed. Zero never clears.
	Interval time.Duration
}

// Config configures an HTTPClient.
type Config struct {
	// BaseURL of the evaluator, e.g. "http://localhost:8181".
	BaseURL string

	// Query is the decision document path sent with each evaluation.
	Query string

	// Timeout is the default per-evaluation timeout.
	Timeout time.Duration

	// AttemptTimeout bounds each attempt. A timed-out attempt is retried
	// while the call's Timeout allows. Zero splits the call's timeout
	// evenly across MaxRetries+1 attempts.
	AttemptTimeout time.Duration

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// BaseBackoff is the first retry delay; each retry doubles it.
	BaseBackoff time.Duration

	// MaxBackoff caps the retry delay.
	MaxBackoff time.Duration

	// RateLimit is the sustained requests per second allowed to the
	// evaluator. Zero disables limiting.
	RateLimit float64

	// RateBurst is the limiter bucket size.
	RateBurst int

	// Breaker configures the circuit breaker.
	Breaker BreakerConfig

	// Headers are added to every request (e.g. an Authorization token).
	Headers map[string]string

	// HTTPClient overrides the underlying HTTP client.
	HTTPClient *http.Client
}

// DefaultConfig returns a Config for a local evaluator.
func DefaultConfig() Config {
	return Config{
		BaseURL:     "http://localhost:8181",
		Query:       DefaultQuery,
		Timeout:     DefaultTimeout,
		MaxRetries:  DefaultMaxRetries,
		BaseBackoff: DefaultBaseBackoff,
		MaxBackoff:  DefaultMaxBackoff,
	}
}

// HTTPClient talks to an external policy evaluator over HTTP. Calls are
// rate limited, wrapped in a circuit breaker and retried with exponential
// backoff.
type HTTPClient struct {
	config  Config
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*evaluateResponse]
	logger  *slog.Logger
}

// NewHTTPClient creates an HTTPClient.
func NewHTTPClient(config Config) (*HTTPClient, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("evaluator base URL is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid evaluator base URL: %w", err)
	}
	if config.Query == "" {
		config.Query = DefaultQuery
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.AttemptTimeout < 0 {
		config.AttemptTimeout = 0
	}
	if config.BaseBackoff <= 0 {
		config.BaseBackoff = DefaultBaseBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = DefaultMaxBackoff
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		}
	}

	logger := slog.Default().With("component", "evaluator")

	c := &HTTPClient{
		config:  config,
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		client:  httpClient,
		logger:  logger,
	}
	if config.RateLimit > 0 {
		burst := config.RateBurst
		if burst <= 0 {
			burst = int(math.Ceil(config.RateLimit))
		}
		c.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}

	maxFailures := config.Breaker.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultBreakerMaxFailures
	}
	breakerTimeout := config.Breaker.Timeout
	if breakerTimeout == 0 {
		breakerTimeout = defaultBreakerTimeout
	}
	interval := config.Breaker.Interval
	if interval == 0 {
		interval = defaultBreakerInterval
	}
	c.breaker = gobreaker.NewCircuitBreaker[*evaluateResponse](gobreaker.Settings{
		Name:        "evaluator",
		MaxRequests: 1,
		Interval:    interval,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		// Caller cancellation says nothing about evaluator health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return c, nil
}

// Evaluate implements Evaluator.
func (c *HTTPClient) Evaluate(ctx context.Context, intent *decision.FinancialIntent, policies []string, opts Options) (*decision.PolicyDecision, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.config.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	attemptTimeout := c.attemptTimeout(timeout)

	body, err := json.Marshal(evaluateRequest{
		Query:    c.config.Query,
		Input:    intent,
		Policies: policies,
		Explain:  opts.Explain,
		Trace:    opts.Trace,
	})
	if err != nil {
		return nil, NewEvaluationError(policies, 0, fmt.Errorf("encode request: %w", err))
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, NewEvaluationError(policies, 0, fmt.Errorf("rate limit wait: %w", err))
		}
	}

	start := time.Now()
	attempts := 0
	resp, err := c.breaker.Execute(func() (*evaluateResponse, error) {
		status, payload, n, err := c.do(ctx, attemptTimeout, http.MethodPost, "/v1/evaluate", body, nil)
		attempts = n
		if err != nil {
			return nil, err
		}
		if status < 200 || status >= 300 {
			return nil, NewTransportError(http.MethodPost, "/v1/evaluate", status, errors.New(truncate(string(payload), 256)))
		}
		var out evaluateResponse
		if err := json.Unmarshal(payload, &out); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return &out, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		c.logger.Warn("evaluation failed",
			"intent_id", intent.ID,
			"attempts", attempts,
			"error", err,
		)
		return nil, NewEvaluationError(policies, attempts, err)
	}

	d, err := Normalize(c.config.Query, policies, resp)
	if err != nil {
		return nil, NewEvaluationError(policies, attempts, err)
	}
	d.Performance.EvaluationTimeMs = float64(time.Since(start).Microseconds()) / 1000.0

	c.logger.Debug("evaluation completed",
		"intent_id", intent.ID,
		"decision", d.Decision,
		"attempts", attempts,
	)
	return d, nil
}

// LoadPolicy implements Evaluator.
func (c *HTTPClient) LoadPolicy(ctx context.Context, doc PolicyDocument) error {
	if doc.ID == "" {
		return NewPolicyLoadError("", 0, "policy id is required")
	}
	path := "/v1/policies/" + url.PathEscape(doc.ID)
	headers := map[string]string{"Content-Type": "text/plain"}
	if doc.Version != "" {
		headers["X-Policy-Version"] = doc.Version
	}

	status, payload, _, err := c.do(ctx, c.config.AttemptTimeout, http.MethodPut, path, doc.Content, headers)
	if err != nil {
		return err
	}
	switch {
	case status >= 200 && status < 300:
		c.logger.Info("policy loaded", "policy_id", doc.ID, "version", doc.Version)
		return nil
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return NewPolicyLoadError(doc.ID, status, extractMessage(payload))
	default:
		return NewTransportError(http.MethodPut, path, status, errors.New(extractMessage(payload)))
	}
}

// RemovePolicy implements Evaluator.
func (c *HTTPClient) RemovePolicy(ctx context.Context, policyID string) error {
	path := "/v1/policies/" + url.PathEscape(policyID)
	status, payload, _, err := c.do(ctx, c.config.AttemptTimeout, http.MethodDelete, path, nil, nil)
	if err != nil {
		return err
	}
	if (status >= 200 && status < 300) || status == http.StatusNotFound {
		c.logger.Info("policy removed", "policy_id", policyID)
		return nil
	}
	return NewTransportError(http.MethodDelete, path, status, errors.New(extractMessage(payload)))
}

// Health implements Evaluator.
func (c *HTTPClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return NewTransportError(http.MethodGet, "/health", 0, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode != http.StatusOK {
		return NewTransportError(http.MethodGet, "/health", resp.StatusCode, errors.New("unhealthy"))
	}
	return nil
}

// BreakerState returns the circuit breaker state name.
func (c *HTTPClient) BreakerState() string {
	return c.breaker.State().String()
}

// attemptTimeout returns the per-attempt bound for a call limited to total.
func (c *HTTPClient) attemptTimeout(total time.Duration) time.Duration {
	if c.config.AttemptTimeout > 0 {
		return min(c.config.AttemptTimeout, total)
	}
	return total / time.Duration(c.config.MaxRetries+1)
}

// do performs a request, retrying transport failures, attempt timeouts and
// retryable status codes with exponential backoff. Each attempt is bounded
// by attemptTimeout when positive. Non-retryable responses are returned to
// the caller with a nil error. It reports the number of attempts made.
func (c *HTTPClient) do(ctx context.Context, attemptTimeout time.Duration, method, path string, body []byte, headers map[string]string) (int, []byte, int, error) {
	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.backoff(attempt)
			c.logger.Debug("retrying evaluator request",
				"method", method,
				"path", path,
				"attempt", attempt,
				"backoff", backoff,
			)
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return 0, nil, attempts, ctx.Err()
			case <-timer.C:
			}
		}

		attempts++
		status, payload, err := c.attempt(ctx, attemptTimeout, method, path, body, headers)
		if err != nil {
			if ctx.Err() != nil {
				return 0, nil, attempts, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				c.logger.Warn("evaluator attempt timed out",
					"method", method,
					"path", path,
					"attempt", attempts,
					"timeout", attemptTimeout,
				)
			}
			lastErr = err
			continue
		}

		if retryableStatus(status) {
			lastErr = NewTransportError(method, path, status, errors.New(extractMessage(payload)))
			c.logger.Warn("evaluator returned retryable status",
				"method", method,
				"path", path,
				"status", status,
				"attempt", attempts,
			)
			continue
		}
		return status, payload, attempts, nil
	}

	return 0, nil, attempts, lastErr
}

// attempt sends one request and reads the whole response within timeout.
func (c *HTTPClient) attempt(ctx context.Context, timeout time.Duration, method, path string, body []byte, headers map[string]string) (int, []byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	tracing.Inject(ctx, req.Header)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, NewTransportError(method, path, 0, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, NewTransportError(method, path, resp.StatusCode, err)
	}
	return resp.StatusCode, payload, nil
}

func (c *HTTPClient) backoff(attempt int) time.Duration {
	d := time.Duration(float64(c.config.BaseBackoff) * math.Pow(2, float64(attempt-1)))
	if d > c.config.MaxBackoff {
		d = c.config.MaxBackoff
	}
	return d
}

// extractMessage pulls an error message from a JSON error body, falling back
// to the raw text.
func extractMessage(payload []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(payload, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return truncate(strings.TrimSpace(string(payload)), 256)
}
