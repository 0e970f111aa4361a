// Package precheck enforces the hard preconditions that must hold before an
// intent is sent to the policy evaluator. A failing check produces a
// complete deny decision without contacting the evaluator.
package precheck

import (
	"log/slog"

	"mercator-hq/arbiter/pkg/decision"
)

// Denial reasons returned by the gate.
const (
	ReasonResidency      = "data residency violation"
	ReasonAuthentication = "authentication required"
	ReasonIndigenousData = "indigenous data sovereignty requirements not met"
)

// Check names, used for metrics labels.
const (
	CheckResidency      = "residency"
	CheckAuthentication = "authentication"
	CheckIndigenousData = "indigenous_data"
)

// Config controls which checks run.
type Config struct {
	// EnforceResidency requires the user's location to be inside
	// ApprovedJurisdiction.
	EnforceResidency bool

	// ApprovedJurisdiction is an ISO country code (default "AU").
	ApprovedJurisdiction string
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		EnforceResidency:     true,
		ApprovedJurisdiction: "AU",
	}
}

// Result is the outcome of running the gate.
type Result struct {
	// Decision is non-nil when a check failed.
	Decision *decision.PolicyDecision

	// FailedCheck names the first failing check.
	FailedCheck string
}

// Denied reports whether the gate short-circuited the request.
func (r Result) Denied() bool {
	return r.Decision != nil
}

// Gate runs residency, authentication and Indigenous data sovereignty
// checks in that order. The first failure wins.
type Gate struct {
	config Config
	logger *slog.Logger
}

// NewGate creates a Gate.
func NewGate(config Config) *Gate {
	if config.ApprovedJurisdiction == "" {
		config.ApprovedJurisdiction = "AU"
	}
	return &Gate{
		config: config,
		logger: slog.Default().With("component", "precheck"),
	}
}

// Check evaluates intent against the gate. It is a pure function of its
// input and the gate configuration.
func (g *Gate) Check(intent *decision.FinancialIntent) Result {
	if g.config.EnforceResidency && intent.User.Location.Country != g.config.ApprovedJurisdiction {
		return g.deny(intent, CheckResidency, ReasonResidency)
	}

	if !intent.User.Authentication.Verified {
		return g.deny(intent, CheckAuthentication, ReasonAuthentication)
	}

	if data := intent.Financial.IndigenousData; data != nil {
		if !data.CAREMet() || !data.ProtocolsMet() || (data.ContainsSacredKnowledge && !data.ElderApproval) {
			return g.deny(intent, CheckIndigenousData, ReasonIndigenousData)
		}
	}

	return Result{}
}

func (g *Gate) deny(intent *decision.FinancialIntent, check, reason string) Result {
	g.logger.Info("pre-check denied intent",
		"intent_id", intent.ID,
		"user_id", intent.User.ID,
		"check", check,
	)
	return Result{
		Decision:    decision.NewDenial(reason),
		FailedCheck: check,
	}
}
