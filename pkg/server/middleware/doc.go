// Package middleware provides the HTTP middleware chain of the decision API:
// request ids, panic recovery, request logging, body limits and request
// timeouts, plus the shared JSON error body.
package middleware
