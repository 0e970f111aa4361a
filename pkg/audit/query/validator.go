package query

import (
	"fmt"

	"mercator-hq/arbiter/pkg/audit"
	"mercator-hq/arbiter/pkg/decision"
)

const (
	// DefaultLimit is the page size used when a query sets none.
	DefaultLimit = 50

	// MaxLimit is the largest page a single query may request.
	MaxLimit = 10000
)

// ValidSortOrders contains the valid sort orders.
var ValidSortOrders = map[string]bool{
	"asc":  true,
	"desc": true,
}

// Validate checks q before any storage access. A time range is mandatory:
// there is no all-time query.
func Validate(q *audit.Query) error {
	if q == nil {
		return decision.NewValidationError("query", "query is required")
	}
	if q.Start.IsZero() {
		return decision.NewValidationError("start", "time range start is required")
	}
	if q.End.IsZero() {
		return decision.NewValidationError("end", "time range end is required")
	}
	if q.Start.After(q.End) {
		return decision.NewValidationError("start", "start must not be after end")
	}

	if q.Limit < 0 {
		return decision.NewValidationError("limit", fmt.Sprintf("limit must be >= 0, got %d", q.Limit))
	}
	if q.Limit > MaxLimit {
		return decision.NewValidationError("limit", fmt.Sprintf("limit must be <= %d, got %d", MaxLimit, q.Limit))
	}
	if q.Offset < 0 {
		return decision.NewValidationError("offset", fmt.Sprintf("offset must be >= 0, got %d", q.Offset))
	}

	if q.SortBy != "" && !audit.ValidSortFields[q.SortBy] {
		return decision.NewValidationError("sort_by", fmt.Sprintf("invalid sort field: %s", q.SortBy))
	}
	if q.SortOrder != "" && !ValidSortOrders[q.SortOrder] {
		return decision.NewValidationError("sort_order", fmt.Sprintf("invalid sort order: %s (must be 'asc' or 'desc')", q.SortOrder))
	}

	if q.Operation != "" && !q.Operation.Valid() {
		return decision.NewValidationError("operation", fmt.Sprintf("unknown operation: %s", q.Operation))
	}
	if q.Decision != "" && !q.Decision.Valid() {
		return decision.NewValidationError("decision", fmt.Sprintf("unknown decision: %s", q.Decision))
	}
	for _, c := range q.Classifications {
		if c.Rank() < 0 {
			return decision.NewValidationError("classifications", fmt.Sprintf("unknown classification: %s", c))
		}
	}
	return nil
}

// ApplyDefaults fills in pagination and ordering defaults.
func ApplyDefaults(q *audit.Query) {
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}
	if q.SortBy == "" {
		q.SortBy = audit.SortTimestamp
	}
	if q.SortOrder == "" {
		q.SortOrder = "desc"
	}
}
