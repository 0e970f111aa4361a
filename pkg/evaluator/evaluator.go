package evaluator

import (
	"context"
	"time"

	"mercator-hq/arbiter/pkg/decision"
)

// DefaultTimeout bounds a single evaluation when the caller does not set one.
const DefaultTimeout = 5 * time.Second

// Options tune a single evaluation.
type Options struct {
	// Explain asks the evaluator to include an explanation.
	Explain bool

	// Trace asks the evaluator to include an evaluation trace.
	Trace bool

	// Timeout bounds the call, retries included. Zero uses DefaultTimeout.
	Timeout time.Duration

	// UseCache allows the orchestrator to serve the decision from cache.
	// Callers should disable it for policies that depend on wall-clock time
	// or session state.
	UseCache bool

	// CacheTTL overrides the cache's default TTL for this decision.
	CacheTTL time.Duration

	// TimeSensitive includes the request timestamp in the cache key.
	TimeSensitive bool
}

// DefaultOptions returns options with caching enabled.
func DefaultOptions() Options {
	return Options{
		Timeout:  DefaultTimeout,
		UseCache: true,
	}
}

// PolicyDocument is an opaque policy blob identified by id and version.
type PolicyDocument struct {
	ID      string
	Version string
	Content []byte
}

// Evaluator is the policy decision point. Implementations never interpret
// policy semantics themselves.
type Evaluator interface {
	// Evaluate asks for a decision on intent against the ordered policy set.
	// Failures are reported as *EvaluationError.
	Evaluate(ctx context.Context, intent *decision.FinancialIntent, policies []string, opts Options) (*decision.PolicyDecision, error)

	// LoadPolicy installs or replaces a policy document. It is idempotent.
	LoadPolicy(ctx context.Context, doc PolicyDocument) error

	// RemovePolicy uninstalls a policy document. Removing an unknown policy
	// succeeds.
	RemovePolicy(ctx context.Context, policyID string) error

	// Health reports whether the evaluator is reachable.
	Health(ctx context.Context) error
}
