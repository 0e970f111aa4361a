// Package handlers implements the HTTP endpoints of the decision API on top
// of the decision engine.
package handlers
