package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"mercator-hq/arbiter/pkg/telemetry/logging"
)

// APIKeyMiddleware is HTTP middleware for API key authentication.
type APIKeyMiddleware struct {
	validator APIKeyStore
	sources   []APIKeySource
	logger    *slog.Logger
}

// NewAPIKeyMiddleware creates a new API key authentication middleware.
func NewAPIKeyMiddleware(validator APIKeyStore, sources []APIKeySource) *APIKeyMiddleware {
	if len(sources) == 0 {
		sources = DefaultSources()
	}
	return &APIKeyMiddleware{
		validator: validator,
		sources:   sources,
		logger:    slog.Default().With("component", "auth"),
	}
}

// Handle wraps an HTTP handler with API key authentication. On success the
// key owner becomes the request's operator identity: it is stored in the
// context for the operations audit and for log lines. Only a redacted key
// prefix is kept on the context.
func (m *APIKeyMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey, ok := m.extractAPIKey(r)
		if !ok {
			m.logger.Warn("missing API key", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
			unauthorized(w, "missing API key")
			return
		}

		keyInfo, err := m.validator.Validate(apiKey)
		if err != nil {
			m.logger.Warn("rejected API key",
				"error", err,
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path,
			)
			unauthorized(w, err.Error())
			return
		}

		ctx := context.WithValue(r.Context(), apiKeyInfoKey, keyInfo)
		ctx = logging.WithUser(ctx, keyInfo.UserID)
		ctx = logging.WithAPIKey(ctx, logging.RedactAPIKey(apiKey))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="arbiter"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// extractAPIKey returns the first key found across the configured sources.
func (m *APIKeyMiddleware) extractAPIKey(r *http.Request) (string, bool) {
	for _, source := range m.sources {
		switch source.Type {
		case "header":
			value := r.Header.Get(source.Name)
			if value == "" {
				continue
			}
			if source.Scheme == "" {
				return value, true
			}
			if key, found := strings.CutPrefix(value, source.Scheme+" "); found && key != "" {
				return key, true
			}

		case "query":
			if value := r.URL.Query().Get(source.Name); value != "" {
				return value, true
			}
		}
	}
	return "", false
}

type contextKey string

// #nosec G101 - This is a context key constant, not a credential
const apiKeyInfoKey contextKey = "api_key_info"

// GetAPIKeyInfo retrieves API key info from request context.
func GetAPIKeyInfo(ctx context.Context) (*APIKeyInfo, bool) {
	info, ok := ctx.Value(apiKeyInfoKey).(*APIKeyInfo)
	return info, ok
}

// Actor returns the operator identity for ctx, or "anonymous".
func Actor(ctx context.Context) string {
	if info, ok := GetAPIKeyInfo(ctx); ok && info.UserID != "" {
		return info.UserID
	}
	if user := logging.GetUser(ctx); user != "" {
		return user
	}
	return "anonymous"
}
