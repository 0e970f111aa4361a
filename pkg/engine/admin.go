package engine

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"mercator-hq/arbiter/pkg/audit"
	"mercator-hq/arbiter/pkg/audit/retention"
	"mercator-hq/arbiter/pkg/evaluator"
	"mercator-hq/arbiter/pkg/telemetry/logging"
	"mercator-hq/arbiter/pkg/telemetry/metrics"
)

// SystemActor is recorded for actions with no authenticated user, such as
// scheduled purges.
const SystemActor = "system"

// actor returns the user recorded for administrative actions.
func actor(ctx context.Context) string {
	if u := logging.GetUser(ctx); u != "" {
		return u
	}
	return SystemActor
}

// recordOperation appends to the operations audit. A failed append is
// logged; the action it describes has already taken effect. The redacted
// prefix of the caller's API key is added to details when known.
func (e *Engine) recordOperation(ctx context.Context, action, target string, details map[string]string, opErr error) {
	if key := logging.GetAPIKey(ctx); key != "" {
		if details == nil {
			details = map[string]string{}
		}
		details["api_key"] = key
	}
	op := &audit.OperationRecord{
		ID:      uuid.NewString(),
		At:      e.now().UTC(),
		Actor:   actor(ctx),
		Action:  action,
		Target:  target,
		Details: details,
		Success: opErr == nil,
	}
	if opErr != nil {
		op.Error = opErr.Error()
	}

	if err := e.storage.AppendOperation(context.WithoutCancel(ctx), op); err != nil {
		e.log.ErrorContext(ctx, "failed to record operation",
			"action", action,
			"target", target,
			"error", err,
		)
	}
}

// LoadPolicy installs or replaces a policy document on the evaluator and
// clears the decision cache.
func (e *Engine) LoadPolicy(ctx context.Context, doc evaluator.PolicyDocument) error {
	err := e.evaluator.LoadPolicy(ctx, doc)
	e.metrics.RecordPolicyOperation("load", err)
	e.recordOperation(ctx, audit.ActionLoadPolicy, doc.ID, map[string]string{
		"version": doc.Version,
		"bytes":   strconv.Itoa(len(doc.Content)),
	}, err)
	if err != nil {
		return err
	}

	e.policyMu.Lock()
	e.loaded[doc.ID] = doc.Version
	n := len(e.loaded)
	e.policyMu.Unlock()
	e.metrics.UpdateLoadedPolicies(n)

	e.clearDecisionCache()
	e.log.InfoContext(ctx, "policy loaded", "policy_id", doc.ID, "version", doc.Version)
	return nil
}

// RemovePolicy uninstalls a policy document and clears the decision cache.
// Removing an unknown policy succeeds.
func (e *Engine) RemovePolicy(ctx context.Context, policyID string) error {
	err := e.evaluator.RemovePolicy(ctx, policyID)
	e.metrics.RecordPolicyOperation("remove", err)
	e.recordOperation(ctx, audit.ActionRemovePolicy, policyID, nil, err)
	if err != nil {
		return err
	}

	e.policyMu.Lock()
	delete(e.loaded, policyID)
	n := len(e.loaded)
	e.policyMu.Unlock()
	e.metrics.UpdateLoadedPolicies(n)

	e.clearDecisionCache()
	e.log.InfoContext(ctx, "policy removed", "policy_id", policyID)
	return nil
}

func (e *Engine) clearDecisionCache() {
	if e.cache == nil {
		return
	}
	e.cache.Clear()
	e.metrics.UpdateCacheSize(metrics.CacheDecision, 0)
}

// ClearCache drops every cached decision and query page.
func (e *Engine) ClearCache(ctx context.Context) error {
	e.clearDecisionCache()
	err := e.queries.InvalidateCache(ctx)
	e.recordOperation(ctx, audit.ActionClearCache, "", nil, err)
	return err
}

// RecordOutcome attaches the real-world outcome to a logged decision. It
// fails with audit.ErrOutcomeAlreadySet on a second attempt and
// audit.ErrNotFound for unknown ids.
func (e *Engine) RecordOutcome(ctx context.Context, logID string, outcome *audit.Outcome) error {
	if outcome == nil {
		return fmt.Errorf("outcome is required")
	}
	err := e.logger.AttachOutcome(ctx, logID, outcome)
	e.recordOperation(ctx, audit.ActionRecordOutcome, logID, map[string]string{
		"result": string(outcome.Result),
	}, err)
	if err != nil {
		return err
	}
	if err := e.queries.InvalidateCache(ctx); err != nil {
		e.log.WarnContext(ctx, "failed to invalidate query cache", "error", err)
	}
	return nil
}

// PurgeOldLogs deletes every log whose retention tier has elapsed. Each
// tier is purged in one transaction; a failing tier does not stop the
// others. Scheduled purges take the same path.
func (e *Engine) PurgeOldLogs(ctx context.Context) (*retention.Result, error) {
	return e.pruner.Purge(ctx)
}

// NextPurge returns the next scheduled purge, or nil when unscheduled.
func (e *Engine) NextPurge() *time.Time {
	return e.pruner.NextPurge()
}

// onPurge is the pruner completion hook shared by manual and scheduled runs.
func (e *Engine) onPurge(ctx context.Context, result *retention.Result, err error) {
	details := map[string]string{}
	if result != nil {
		details["total_deleted"] = strconv.FormatInt(result.TotalDeleted, 10)
		for _, tier := range result.Tiers {
			key := "tier_" + strconv.Itoa(tier.RetentionYears)
			details[key] = strconv.FormatInt(tier.Deleted, 10)
			e.metrics.RecordPurge(tier.RetentionYears, tier.Deleted)
		}
	}
	e.recordOperation(ctx, audit.ActionPurge, "", details, err)

	if result != nil && result.TotalDeleted > 0 {
		if err := e.queries.InvalidateCache(ctx); err != nil {
			e.log.WarnContext(ctx, "failed to invalidate query cache", "error", err)
		}
	}
}
