package handlers

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mercator-hq/arbiter/pkg/evaluator"
	"mercator-hq/arbiter/pkg/policy/manager"
	"mercator-hq/arbiter/pkg/server/middleware"
)

// PolicyVersionHeader carries the version of an uploaded policy.
const PolicyVersionHeader = "X-Policy-Version"

// PutPolicy handles PUT /v1/policies/{id}. The body is the opaque policy
// document; the version comes from X-Policy-Version or the version query
// parameter and defaults to a content digest.
func (a *API) PutPolicy(w http.ResponseWriter, r *http.Request) {
	content, err := io.ReadAll(r.Body)
	if err != nil {
		middleware.WriteError(w, r, http.StatusRequestEntityTooLarge, middleware.ErrorTypeRequestTooLarge,
			"failed to read policy document: "+err.Error(), "")
		return
	}
	if len(content) == 0 {
		middleware.WriteError(w, r, http.StatusBadRequest, middleware.ErrorTypeInvalidRequest,
			"policy document is empty", "body")
		return
	}

	version := r.Header.Get(PolicyVersionHeader)
	if version == "" {
		version = r.URL.Query().Get("version")
	}
	if version == "" {
		version = manager.ContentVersion(content)
	}

	doc := evaluator.PolicyDocument{ID: chi.URLParam(r, "id"), Version: version, Content: content}
	if err := a.engine.LoadPolicy(r.Context(), doc); err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": doc.ID, "version": doc.Version})
}

// DeletePolicy handles DELETE /v1/policies/{id}.
func (a *API) DeletePolicy(w http.ResponseWriter, r *http.Request) {
	if err := a.engine.RemovePolicy(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListPolicies handles GET /v1/policies.
func (a *API) ListPolicies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"policies": a.engine.LoadedPolicies()})
}
