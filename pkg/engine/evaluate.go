package engine

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"mercator-hq/arbiter/pkg/audit"
	"mercator-hq/arbiter/pkg/decision"
	"mercator-hq/arbiter/pkg/decision/cache"
	"mercator-hq/arbiter/pkg/evaluator"
	"mercator-hq/arbiter/pkg/telemetry/logging"
	"mercator-hq/arbiter/pkg/telemetry/metrics"
)

// Reasons for decisions the engine produces itself.
const (
	ReasonEvaluationFailed    = "policy evaluation failed"
	ReasonEvaluationCancelled = "evaluation cancelled"
)

// Decision sources, used as metric labels.
const (
	SourcePreCheck  = "precheck"
	SourceCache     = "cache"
	SourceEvaluator = "evaluator"
	SourceError     = "error"
)

// Result is a logged decision.
type Result struct {
	// LogID identifies the DecisionLog the decision was recorded in.
	LogID string `json:"log_id"`

	// Decision is the authorization verdict.
	Decision *decision.PolicyDecision `json:"decision"`

	// Source names the stage that produced the decision.
	Source string `json:"source"`
}

// BatchResult is the outcome of one intent in EvaluateIntents. Exactly one
// of Result and Err is set.
type BatchResult struct {
	Result *Result
	Err    error
}

// Evaluate evaluates intent against the default policy set with default
// options.
func (e *Engine) Evaluate(ctx context.Context, intent *decision.FinancialIntent) (*Result, error) {
	return e.EvaluateIntent(ctx, intent, nil, e.DefaultOptions())
}

// DefaultOptions returns the configured per-evaluation defaults.
func (e *Engine) DefaultOptions() evaluator.Options {
	opts := evaluator.DefaultOptions()
	opts.Timeout = e.config.EvaluatorTimeout
	opts.Explain = e.config.Explain
	return opts
}

// EvaluateIntent produces and logs a decision for intent. A nil policies
// slice uses the configured default set.
//
// The only errors returned are a *decision.ValidationError (nothing is
// logged) and an *audit.PersistenceError (the decision could not be
// recorded and must not be acted upon). Evaluator failures and caller
// cancellation are turned into logged deny decisions.
func (e *Engine) EvaluateIntent(ctx context.Context, intent *decision.FinancialIntent, policies []string, opts evaluator.Options) (*Result, error) {
	start := time.Now()

	if err := decision.Validate(intent); err != nil {
		e.stats.validationErrors.Add(1)
		return nil, err
	}
	if sid := intent.Request.SessionID; sid != "" {
		ctx = logging.WithSession(ctx, sid)
	}
	if policies == nil {
		policies = e.config.Policies
	}
	if opts.Timeout <= 0 {
		opts.Timeout = e.config.EvaluatorTimeout
	}

	d, source, evalErr := e.decide(ctx, intent, policies, opts)
	d.Performance.EvaluationTimeMs = float64(time.Since(start).Microseconds()) / 1000
	d.Performance.PoliciesEvaluated = len(d.EvaluatedPolicies)

	// A cancelled caller still gets its deny recorded, bounded by the
	// logger's own write timeout.
	logCtx := ctx
	if ctx.Err() != nil {
		logCtx = context.WithoutCancel(ctx)
	}

	log, err := e.logger.Log(logCtx, intent, d)
	e.metrics.RecordLogWrite(string(e.logger.Mode()), 1, err)
	e.metrics.UpdateBufferedLogs(e.logger.Stats().Buffered)
	if err != nil {
		e.stats.logFailures.Add(1)
		e.log.ErrorContext(ctx, "decision could not be logged",
			"intent_id", intent.ID,
			"decision", d.Decision,
			"error", err,
		)
		return nil, err
	}

	e.record(d, source, time.Since(start), policies)
	if evalErr != nil {
		e.log.WarnContext(ctx, "evaluation failed, denying",
			"intent_id", intent.ID,
			"log_id", log.ID,
			"error", evalErr,
		)
	}

	return &Result{LogID: log.ID, Decision: d, Source: source}, nil
}

// decide runs the gate, the cache and the evaluator. It always returns a
// decision; the error is the evaluator failure that produced a deny, if any.
func (e *Engine) decide(ctx context.Context, intent *decision.FinancialIntent, policies []string, opts evaluator.Options) (*decision.PolicyDecision, string, error) {
	if res := e.gate.Check(intent); res.Denied() {
		e.stats.preCheckDenials.Add(1)
		e.metrics.RecordPreCheckDenial(res.FailedCheck)
		return res.Decision, SourcePreCheck, nil
	}
	if err := ctx.Err(); err != nil {
		return e.failureDecision(ctx, policies, err), SourceError, err
	}

	var key string
	useCache := e.cache != nil && opts.UseCache
	if useCache {
		key = cache.Key(decision.Fingerprint(intent, opts.TimeSensitive), policies)
		if cached, ok := e.cache.Get(key); ok {
			e.metrics.RecordCacheHit(metrics.CacheDecision)
			return cached, SourceCache, nil
		}
		e.metrics.RecordCacheMiss(metrics.CacheDecision)
	}

	callStart := time.Now()
	d, err := e.evaluator.Evaluate(ctx, intent, policies, opts)
	if err == nil && d == nil {
		err = evaluator.NewEvaluationError(policies, 1, errors.New("evaluator returned no decision"))
	}
	if err != nil {
		e.metrics.RecordEvaluatorCall("error", time.Since(callStart))
		return e.failureDecision(ctx, policies, err), SourceError, err
	}
	e.metrics.RecordEvaluatorCall("ok", time.Since(callStart))

	if useCache {
		e.cache.Set(key, d, opts.CacheTTL)
		e.metrics.UpdateCacheSize(metrics.CacheDecision, e.cache.Len())
		e.metrics.SetCacheEvictions(metrics.CacheDecision, e.cache.Stats().Evictions)
	}
	return d, SourceEvaluator, nil
}

// failureDecision converts an evaluator failure into a deny. The error is
// kept in the raw payload for forensics.
func (e *Engine) failureDecision(ctx context.Context, policies []string, err error) *decision.PolicyDecision {
	raw := &decision.RawResult{Error: err.Error()}

	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		e.stats.cancelled.Add(1)
		e.metrics.RecordEvaluatorError("cancelled")
		d := decision.NewDenial(ReasonEvaluationCancelled)
		d.Raw = raw
		return d
	}

	e.stats.evaluatorFailures.Add(1)
	e.metrics.RecordEvaluatorError(errorType(err))

	cause := err
	var evalErr *evaluator.EvaluationError
	if errors.As(err, &evalErr) && evalErr.Cause != nil {
		cause = evalErr.Cause
	}
	d := decision.NewDenial(ReasonEvaluationFailed + ": " + cause.Error())
	d.Raw = raw
	return d
}

func errorType(err error) string {
	var transport *evaluator.TransportError
	switch {
	case errors.Is(err, evaluator.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &transport):
		return "transport"
	default:
		return "evaluation"
	}
}

func (e *Engine) record(d *decision.PolicyDecision, source string, elapsed time.Duration, policies []string) {
	e.stats.evaluations.Add(1)
	e.stats.totalEvalNanos.Add(int64(elapsed))
	switch d.Decision {
	case decision.Allow:
		e.stats.allow.Add(1)
	case decision.Deny:
		e.stats.deny.Add(1)
	case decision.Conditional:
		e.stats.conditional.Add(1)
	}
	if source == SourcePreCheck {
		policies = nil
	}
	e.metrics.RecordDecision(string(d.Decision), source, elapsed, policies)
}

// EvaluateIntents evaluates intents in parallel, at most BatchConcurrency at
// a time. Results are returned in input order; a failure of one intent
// does not affect the others.
func (e *Engine) EvaluateIntents(ctx context.Context, intents []*decision.FinancialIntent, policies []string, opts evaluator.Options) []BatchResult {
	results := make([]BatchResult, len(intents))

	g := new(errgroup.Group)
	g.SetLimit(e.config.BatchConcurrency)
	for i, intent := range intents {
		g.Go(func() error {
			res, err := e.EvaluateIntent(ctx, intent, policies, opts)
			results[i] = BatchResult{Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// IsPersistenceError reports whether err means a decision could not be
// recorded.
func IsPersistenceError(err error) bool {
	var perr *audit.PersistenceError
	return errors.As(err, &perr)
}
