package middleware

type contextKey string

const (
	// RequestIDKey stores the request id.
	RequestIDKey contextKey = "request_id"

	// StartTimeKey stores the request start time.
	StartTimeKey contextKey = "start_time"
)
