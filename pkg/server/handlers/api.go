package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"mercator-hq/arbiter/pkg/audit"
	"mercator-hq/arbiter/pkg/audit/query"
	"mercator-hq/arbiter/pkg/audit/retention"
	"mercator-hq/arbiter/pkg/decision"
	"mercator-hq/arbiter/pkg/engine"
	"mercator-hq/arbiter/pkg/evaluator"
	"mercator-hq/arbiter/pkg/report"
	"mercator-hq/arbiter/pkg/server/middleware"
)

// Engine is the part of the decision engine the API exposes.
type Engine interface {
	DefaultOptions() evaluator.Options
	EvaluateIntent(ctx context.Context, intent *decision.FinancialIntent, policies []string, opts evaluator.Options) (*engine.Result, error)
	EvaluateIntents(ctx context.Context, intents []*decision.FinancialIntent, policies []string, opts evaluator.Options) []engine.BatchResult

	Query(ctx context.Context, q *audit.Query) (*query.Result, error)
	GetLog(ctx context.Context, id string) (*audit.DecisionLog, error)
	StreamLogs(ctx context.Context, q *audit.Query) (<-chan *audit.DecisionLog, <-chan error, error)
	RecordOutcome(ctx context.Context, logID string, outcome *audit.Outcome) error

	GetComplianceReport(ctx context.Context, t report.Type, period report.Period) (report.Report, error)
	ListReports(ctx context.Context, t string, limit int) ([]*audit.ReportSnapshot, error)

	LoadPolicy(ctx context.Context, doc evaluator.PolicyDocument) error
	RemovePolicy(ctx context.Context, policyID string) error
	LoadedPolicies() []string

	VerifyLogs(ctx context.Context, q *audit.Query) (*query.Verification, error)
	PurgeOldLogs(ctx context.Context) (*retention.Result, error)
	NextPurge() *time.Time
	ClearCache(ctx context.Context) error
	ListOperations(ctx context.Context, since time.Time, limit int) ([]*audit.OperationRecord, error)
	GetStatistics() engine.Statistics
}

var _ Engine = (*engine.Engine)(nil)

// MaxBatchSize bounds POST /v1/decisions/batch.
const MaxBatchSize = 100

// API serves the engine over HTTP.
type API struct {
	engine Engine
}

// New creates an API.
func New(e Engine) *API {
	return &API{engine: e}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, r, http.StatusRequestEntityTooLarge, middleware.ErrorTypeRequestTooLarge,
				"request body too large", "")
			return false
		}
		middleware.WriteError(w, r, http.StatusBadRequest, middleware.ErrorTypeInvalidRequest,
			"invalid JSON body: "+err.Error(), "")
		return false
	}
	return true
}

// writeEngineError maps engine errors onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *decision.ValidationError
		persist    *audit.PersistenceError
		integrity  *audit.IntegrityViolation
		policyLoad *evaluator.PolicyLoadError
		transport  *evaluator.TransportError
	)

	switch {
	case errors.As(err, &validation):
		middleware.WriteError(w, r, http.StatusBadRequest, middleware.ErrorTypeInvalidRequest, err.Error(), validation.Field)
	case errors.Is(err, audit.ErrNotFound):
		middleware.WriteError(w, r, http.StatusNotFound, middleware.ErrorTypeNotFound, err.Error(), "")
	case errors.Is(err, audit.ErrOutcomeAlreadySet):
		middleware.WriteError(w, r, http.StatusConflict, middleware.ErrorTypeConflict, err.Error(), "")
	case errors.As(err, &persist):
		middleware.WriteError(w, r, http.StatusServiceUnavailable, middleware.ErrorTypeServiceUnavailable,
			"audit storage unavailable; the decision was not recorded", "")
	case errors.As(err, &integrity):
		middleware.WriteError(w, r, http.StatusInternalServerError, middleware.ErrorTypeIntegrityViolation, err.Error(), "")
	case errors.As(err, &policyLoad):
		middleware.WriteError(w, r, http.StatusBadRequest, middleware.ErrorTypeInvalidRequest, err.Error(), "")
	case errors.Is(err, evaluator.ErrCircuitOpen), errors.As(err, &transport):
		middleware.WriteError(w, r, http.StatusBadGateway, middleware.ErrorTypeBadGateway, err.Error(), "")
	case errors.Is(err, context.DeadlineExceeded):
		middleware.WriteError(w, r, http.StatusGatewayTimeout, middleware.ErrorTypeGatewayTimeout, err.Error(), "")
	default:
		middleware.WriteError(w, r, http.StatusInternalServerError, middleware.ErrorTypeServerError, "internal error", "")
	}
}
