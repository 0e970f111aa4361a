package handlers

import (
	"net/http"
	"time"

	"mercator-hq/arbiter/pkg/audit/retention"
)

// PurgeResponse reports a manual purge.
type PurgeResponse struct {
	TotalDeleted int64                  `json:"total_deleted"`
	Tiers        []retention.TierResult `json:"tiers"`
	NextPurge    *time.Time             `json:"next_purge,omitempty"`
	Error        string                 `json:"error,omitempty"`
}

// Purge handles POST /v1/admin/purge. A partially failed purge returns 500
// with the per-tier results.
func (a *API) Purge(w http.ResponseWriter, r *http.Request) {
	result, err := a.engine.PurgeOldLogs(r.Context())
	resp := PurgeResponse{NextPurge: a.engine.NextPurge()}
	if result != nil {
		resp.TotalDeleted = result.TotalDeleted
		resp.Tiers = result.Tiers
	}
	status := http.StatusOK
	if err != nil {
		status = http.StatusInternalServerError
		resp.Error = err.Error()
	}
	writeJSON(w, status, resp)
}

// Verify handles POST /v1/admin/verify?start=&end=&... It takes the same
// filters as GET /v1/logs and reports every log that fails verification.
func (a *API) Verify(w http.ResponseWriter, r *http.Request) {
	q, err := ParseQuery(r.URL.Query())
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	res, err := a.engine.VerifyLogs(r.Context(), q)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ClearCache handles POST /v1/admin/cache/clear.
func (a *API) ClearCache(w http.ResponseWriter, r *http.Request) {
	if err := a.engine.ClearCache(r.Context()); err != nil {
		writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListOperations handles GET /v1/admin/operations?since=&limit=.
func (a *API) ListOperations(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()

	var since time.Time
	if v := values.Get("since"); v != "" {
		t, err := parseTime("since", v)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		since = t
	}
	limit := 100
	if v := values.Get("limit"); v != "" {
		n, err := parseInt("limit", v)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		limit = n
	}

	ops, err := a.engine.ListOperations(r.Context(), since, limit)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"operations": ops})
}

// Stats handles GET /v1/stats.
func (a *API) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.engine.GetStatistics())
}
