package handlers

import (
	"net/http"
	"time"

	"mercator-hq/arbiter/pkg/decision"
	"mercator-hq/arbiter/pkg/engine"
	"mercator-hq/arbiter/pkg/evaluator"
	"mercator-hq/arbiter/pkg/server/middleware"
)

// EvaluationOptions are the per-request overrides of the engine defaults.
type EvaluationOptions struct {
	Explain       *bool `json:"explain,omitempty"`
	Trace         bool  `json:"trace,omitempty"`
	UseCache      *bool `json:"use_cache,omitempty"`
	TimeSensitive bool  `json:"time_sensitive,omitempty"`
	TimeoutMs     int   `json:"timeout_ms,omitempty"`
	CacheTTLMs    int   `json:"cache_ttl_ms,omitempty"`
}

// DecisionRequest is the body of POST /v1/decisions.
type DecisionRequest struct {
	Intent   *decision.FinancialIntent `json:"intent"`
	Policies []string                  `json:"policies,omitempty"`
	Options  *EvaluationOptions        `json:"options,omitempty"`
}

// BatchRequest is the body of POST /v1/decisions/batch.
type BatchRequest struct {
	Intents  []*decision.FinancialIntent `json:"intents"`
	Policies []string                    `json:"policies,omitempty"`
	Options  *EvaluationOptions          `json:"options,omitempty"`
}

// BatchItem is one entry of a batch response.
type BatchItem struct {
	Result *engine.Result          `json:"result,omitempty"`
	Error  *middleware.ErrorDetail `json:"error,omitempty"`
}

// BatchResponse preserves request order.
type BatchResponse struct {
	Results []BatchItem `json:"results"`
}

func (a *API) options(o *EvaluationOptions) evaluator.Options {
	opts := a.engine.DefaultOptions()
	if o == nil {
		return opts
	}
	if o.Explain != nil {
		opts.Explain = *o.Explain
	}
	if o.UseCache != nil {
		opts.UseCache = *o.UseCache
	}
	opts.Trace = o.Trace
	opts.TimeSensitive = o.TimeSensitive
	if o.TimeoutMs > 0 {
		opts.Timeout = time.Duration(o.TimeoutMs) * time.Millisecond
	}
	if o.CacheTTLMs > 0 {
		opts.CacheTTL = time.Duration(o.CacheTTLMs) * time.Millisecond
	}
	return opts
}

// Evaluate handles POST /v1/decisions.
func (a *API) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Intent == nil {
		middleware.WriteError(w, r, http.StatusBadRequest, middleware.ErrorTypeInvalidRequest, "intent is required", "intent")
		return
	}

	res, err := a.engine.EvaluateIntent(r.Context(), req.Intent, req.Policies, a.options(req.Options))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// EvaluateBatch handles POST /v1/decisions/batch. Per-intent failures are
// reported in place; the response is 200 unless the request itself is bad.
func (a *API) EvaluateBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Intents) == 0 {
		middleware.WriteError(w, r, http.StatusBadRequest, middleware.ErrorTypeInvalidRequest, "intents are required", "intents")
		return
	}
	if len(req.Intents) > MaxBatchSize {
		middleware.WriteError(w, r, http.StatusBadRequest, middleware.ErrorTypeInvalidRequest,
			"too many intents in one batch", "intents")
		return
	}

	results := a.engine.EvaluateIntents(r.Context(), req.Intents, req.Policies, a.options(req.Options))
	resp := BatchResponse{Results: make([]BatchItem, len(results))}
	for i, res := range results {
		if res.Err != nil {
			resp.Results[i] = BatchItem{Error: batchError(res.Err)}
			continue
		}
		resp.Results[i] = BatchItem{Result: res.Result}
	}
	writeJSON(w, http.StatusOK, resp)
}

func batchError(err error) *middleware.ErrorDetail {
	if decision.IsValidationError(err) {
		return &middleware.ErrorDetail{Type: middleware.ErrorTypeInvalidRequest, Message: err.Error()}
	}
	if engine.IsPersistenceError(err) {
		return &middleware.ErrorDetail{Type: middleware.ErrorTypeServiceUnavailable, Message: "audit storage unavailable; the decision was not recorded"}
	}
	return &middleware.ErrorDetail{Type: middleware.ErrorTypeServerError, Message: "internal error"}
}
