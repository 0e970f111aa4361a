package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mercator-hq/arbiter/pkg/audit"
	"mercator-hq/arbiter/pkg/audit/export"
	"mercator-hq/arbiter/pkg/server/middleware"
)

// QueryLogs handles GET /v1/logs.
func (a *API) QueryLogs(w http.ResponseWriter, r *http.Request) {
	q, err := ParseQuery(r.URL.Query())
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	res, err := a.engine.Query(r.Context(), q)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetLog handles GET /v1/logs/{id}.
func (a *API) GetLog(w http.ResponseWriter, r *http.Request) {
	log, err := a.engine.GetLog(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, log)
}

// RecordOutcome handles POST /v1/logs/{id}/outcome.
func (a *API) RecordOutcome(w http.ResponseWriter, r *http.Request) {
	var outcome audit.Outcome
	if !decodeJSON(w, r, &outcome) {
		return
	}
	if err := a.engine.RecordOutcome(r.Context(), chi.URLParam(r, "id"), &outcome); err != nil {
		writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExportLogs handles GET /v1/logs/export?format=json|csv. Logs are
// streamed; a failure after the first byte truncates the body.
func (a *API) ExportLogs(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	exporter, ok := export.ForFormat(format, false)
	if !ok {
		middleware.WriteError(w, r, http.StatusBadRequest, middleware.ErrorTypeInvalidRequest,
			"unsupported export format "+format, "format")
		return
	}

	q, err := ParseQuery(r.URL.Query())
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	logs, errCh, err := a.engine.StreamLogs(r.Context(), q)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	contentType := "application/json"
	if exporter.Format() == "csv" {
		contentType = "text/csv"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="decision-logs.`+exporter.Format()+`"`)

	err = exporter.ExportStream(r.Context(), logs, w)
	if err == nil {
		err = <-errCh
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "log export aborted", "format", exporter.Format(), "error", err)
	}
}
