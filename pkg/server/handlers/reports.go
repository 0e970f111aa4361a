package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"mercator-hq/arbiter/pkg/decision"
	"mercator-hq/arbiter/pkg/report"
)

// GetReport handles GET /v1/reports/{type}?start=&end=.
func (a *API) GetReport(w http.ResponseWriter, r *http.Request) {
	t, err := report.ParseType(chi.URLParam(r, "type"))
	if err != nil {
		writeEngineError(w, r, decision.NewValidationError("type", err.Error()))
		return
	}

	period, err := parsePeriod(r)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	rep, err := a.engine.GetComplianceReport(r.Context(), t, period)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// ListReports handles GET /v1/reports?type=&limit=.
func (a *API) ListReports(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := parseInt("limit", v)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		limit = n
	}

	snaps, err := a.engine.ListReports(r.Context(), r.URL.Query().Get("type"), limit)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": snaps})
}

func parsePeriod(r *http.Request) (report.Period, error) {
	values := r.URL.Query()
	if values.Get("start") == "" || values.Get("end") == "" {
		return report.Period{}, decision.NewValidationError("period", "start and end are required")
	}
	start, err := parseTime("start", values.Get("start"))
	if err != nil {
		return report.Period{}, err
	}
	end, err := parseEnd("end", values.Get("end"))
	if err != nil {
		return report.Period{}, err
	}
	if end.Before(start) {
		return report.Period{}, decision.NewValidationError("end", "end must not be before start")
	}
	return report.Period{Start: start, End: end}, nil
}
