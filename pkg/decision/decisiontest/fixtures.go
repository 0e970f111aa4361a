// Package decisiontest provides intent fixtures for tests in other packages.
package decisiontest

import (
	"time"

	"mercator-hq/arbiter/pkg/decision"
)

// Timestamp is the fixed request time used by NewIntent.
var Timestamp = time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC)

// NewIntent returns a valid, authenticated, in-country payment intent.
func NewIntent(id string) *decision.FinancialIntent {
	return &decision.FinancialIntent{
		ID:        id,
		Operation: decision.OperationCreatePayment,
		User: decision.UserContext{
			ID:    "user-1",
			Roles: []string{"finance_officer"},
			Authentication: decision.Authentication{
				Verified:          true,
				MFACompleted:      true,
				SessionAgeMinutes: 5,
			},
			Location: decision.Location{Country: "AU", Region: "NSW", Verified: true},
			Network:  decision.Network{Type: decision.NetworkCorporate, Verified: true},
		},
		Financial: decision.FinancialContext{
			Amount:      125000,
			Currency:    "AUD",
			Categories:  []string{"operations"},
			Sensitivity: decision.SensitivityConfidential,
		},
		Request: decision.RequestContext{
			Timestamp: Timestamp,
			RequestID: "req-" + id,
			SessionID: "sess-1",
			Endpoint:  "/payments",
			Method:    "POST",
		},
		Compliance: decision.ComplianceContext{
			DataResidency: decision.DataResidency{Country: "AU", GovernmentApproved: true},
		},
	}
}

// WithIndigenousData attaches fully satisfied Indigenous data context to intent.
func WithIndigenousData(intent *decision.FinancialIntent, owners ...string) *decision.FinancialIntent {
	intent.Financial.IndigenousData = &decision.IndigenousData{
		TraditionalOwners:  owners,
		CollectiveBenefit:  true,
		AuthorityToControl: true,
		Responsibility:     true,
		Ethics:             true,
		CulturalProtocols:  map[string]bool{"community_consent": true},
	}
	intent.Compliance.IndigenousProtocols = &decision.IndigenousProtocols{
		CARERequired:             true,
		CommunityConsentRequired: true,
	}
	return intent
}
