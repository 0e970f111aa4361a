package query

import (
	"context"
	"errors"

	"mercator-hq/arbiter/pkg/audit"
)

// Violation is one log that failed verification.
type Violation struct {
	LogID  string `json:"log_id"`
	Reason string `json:"reason"`
}

// Verification summarizes a Verify run.
type Verification struct {
	Checked    int64       `json:"checked"`
	Violations []Violation `json:"violations"`
}

// Valid reports whether every checked log verified.
func (v *Verification) Valid() bool {
	return len(v.Violations) == 0
}

// Verify checks the integrity hash of every log matching q and, when
// sealed, that its fields decrypt. Unlike Query and Stream, a failing log
// is recorded and verification continues. The result cache is bypassed.
func (e *Engine) Verify(ctx context.Context, q *audit.Query) (*Verification, error) {
	if err := Validate(q); err != nil {
		return nil, err
	}
	normalized := *q
	normalized.Limit, normalized.Offset = 0, 0

	in, inErr, err := e.storage.QueryStream(ctx, &normalized)
	if err != nil {
		return nil, err
	}

	result := &Verification{Violations: []Violation{}}
	for log := range in {
		result.Checked++
		if err := e.protector.Reveal(log); err != nil {
			reason := err.Error()
			var iv *audit.IntegrityViolation
			if errors.As(err, &iv) {
				reason = iv.Reason
				if iv.Field != "" {
					reason += ": " + iv.Field
				}
			}
			e.logger.Error("integrity violation detected", "log_id", log.ID, "reason", reason)
			result.Violations = append(result.Violations, Violation{LogID: log.ID, Reason: reason})
		}
		if ctx.Err() != nil {
			for range in {
			}
			return nil, ctx.Err()
		}
	}
	if err := <-inErr; err != nil {
		return nil, err
	}
	return result, nil
}
