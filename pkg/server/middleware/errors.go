package middleware

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the JSON error body used across the API.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one error.
type ErrorDetail struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Field     string `json:"field,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Error types.
const (
	ErrorTypeInvalidRequest     = "invalid_request_error"
	ErrorTypeAuthentication     = "authentication_error"
	ErrorTypeNotFound           = "not_found"
	ErrorTypeConflict           = "conflict"
	ErrorTypeRequestTooLarge    = "request_too_large"
	ErrorTypeServerError        = "server_error"
	ErrorTypeBadGateway         = "bad_gateway"
	ErrorTypeServiceUnavailable = "service_unavailable"
	ErrorTypeGatewayTimeout     = "gateway_timeout"
	ErrorTypeIntegrityViolation = "integrity_violation"
)

// WriteError writes an ErrorResponse with the request id attached.
func WriteError(w http.ResponseWriter, r *http.Request, status int, errType, message, field string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: ErrorDetail{
		Message:   message,
		Type:      errType,
		Field:     field,
		RequestID: GetRequestID(r.Context()),
	}})
}
