package audit

import (
	"strings"

	"mercator-hq/arbiter/pkg/decision"
)

// DefaultLargeTransactionThreshold is the financial-crime reporting
// threshold in minor units (AUD 10,000).
const DefaultLargeTransactionThreshold int64 = 1_000_000

// DefaultCharityCategories are the financial categories that make a
// decision reportable to the charity regulator.
var DefaultCharityCategories = []string{"charity", "donation", "grant"}

// Classifier derives the compliance summary and flags for an intent.
type Classifier struct {
	LargeTransactionThreshold int64
	CharityCategories         []string
}

// DefaultClassifier returns a Classifier with the default thresholds.
func DefaultClassifier() Classifier {
	return Classifier{
		LargeTransactionThreshold: DefaultLargeTransactionThreshold,
		CharityCategories:         DefaultCharityCategories,
	}
}

// Classify returns which regimes apply to intent and the matching flags.
// Flags are returned in a fixed order.
func (c Classifier) Classify(intent *decision.FinancialIntent) (ComplianceSummary, []string) {
	threshold := c.LargeTransactionThreshold
	if threshold <= 0 {
		threshold = DefaultLargeTransactionThreshold
	}

	personal := intent.Financial.PersonalData || intent.Compliance.Privacy.PersonalDataInvolved
	indigenous := intent.InvolvesIndigenousData()
	crossBorder := intent.Compliance.Privacy.CrossBorderTransfer
	large := intent.Financial.Amount >= threshold
	charity := intent.Operation == decision.OperationDistributeBenefits || c.hasCharityCategory(intent.Financial.Categories)

	summary := ComplianceSummary{
		PrivacyLawApplicable:              personal,
		CharityReportingApplicable:        charity,
		FinancialCrimeReportingApplicable: large || crossBorder,
		IndigenousDataInvolved:            indigenous,
	}

	flags := []string{}
	if personal {
		flags = append(flags, FlagPrivacyAct)
	}
	if indigenous {
		flags = append(flags, FlagIndigenousData)
	}
	if large {
		flags = append(flags, FlagAUSTRACThreshold)
	}
	if crossBorder {
		flags = append(flags, FlagCrossBorder)
	}
	if charity {
		flags = append(flags, FlagACNCReporting)
	}
	return summary, flags
}

func (c Classifier) hasCharityCategory(categories []string) bool {
	charityCategories := c.CharityCategories
	if len(charityCategories) == 0 {
		charityCategories = DefaultCharityCategories
	}
	for _, cat := range categories {
		for _, want := range charityCategories {
			if strings.EqualFold(cat, want) {
				return true
			}
		}
	}
	return false
}
