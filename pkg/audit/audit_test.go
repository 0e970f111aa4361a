package audit

import (
	"errors"
	"testing"
	"time"

	"mercator-hq/arbiter/pkg/decision"
	"mercator-hq/arbiter/pkg/decision/decisiontest"
)

func TestRetentionPolicy_YearsFor(t *testing.T) {
	p := DefaultRetentionPolicy()

	tests := []struct {
		name    string
		summary ComplianceSummary
		want    int
	}{
		{"standard", ComplianceSummary{}, 7},
		{"privacy", ComplianceSummary{PrivacyLawApplicable: true}, 10},
		{"indigenous", ComplianceSummary{IndigenousDataInvolved: true}, 50},
		{"indigenous outranks privacy", ComplianceSummary{IndigenousDataInvolved: true, PrivacyLawApplicable: true}, 50},
		{"financial crime alone is standard", ComplianceSummary{FinancialCrimeReportingApplicable: true}, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.YearsFor(tt.summary); got != tt.want {
				t.Errorf("YearsFor() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRetentionPolicy_Tiers(t *testing.T) {
	tiers := DefaultRetentionPolicy().Tiers()
	if len(tiers) != 3 || tiers[0] != 7 || tiers[1] != 10 || tiers[2] != 50 {
		t.Errorf("Tiers() = %v", tiers)
	}

	collapsed := RetentionPolicy{StandardYears: 7, PrivacyYears: 7, IndigenousYears: 50}.Tiers()
	if len(collapsed) != 2 {
		t.Errorf("duplicate tiers not collapsed: %v", collapsed)
	}
}

func TestRetentionPolicy_Validate(t *testing.T) {
	if err := DefaultRetentionPolicy().Validate(); err != nil {
		t.Errorf("default policy invalid: %v", err)
	}
	if err := (RetentionPolicy{StandardYears: 10, PrivacyYears: 7, IndigenousYears: 50}).Validate(); err == nil {
		t.Error("expected error when privacy < standard")
	}
	if err := (RetentionPolicy{}).Validate(); err == nil {
		t.Error("expected error for zero periods")
	}
}

func TestCutoff(t *testing.T) {
	now := time.Date(2030, 6, 1, 0, 0, 0, 0, time.UTC)
	if got := Cutoff(now, 7); !got.Equal(time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Cutoff() = %v", got)
	}
}

func TestClassifier_Classify(t *testing.T) {
	c := DefaultClassifier()

	tests := []struct {
		name        string
		mutate      func(*decision.FinancialIntent)
		wantSummary ComplianceSummary
		wantFlags   []string
	}{
		{
			name:        "plain payment below threshold",
			mutate:      func(*decision.FinancialIntent) {},
			wantSummary: ComplianceSummary{},
			wantFlags:   []string{},
		},
		{
			name:        "personal data",
			mutate:      func(i *decision.FinancialIntent) { i.Financial.PersonalData = true },
			wantSummary: ComplianceSummary{PrivacyLawApplicable: true},
			wantFlags:   []string{FlagPrivacyAct},
		},
		{
			name:        "large transaction",
			mutate:      func(i *decision.FinancialIntent) { i.Financial.Amount = 1_500_000 },
			wantSummary: ComplianceSummary{FinancialCrimeReportingApplicable: true},
			wantFlags:   []string{FlagAUSTRACThreshold},
		},
		{
			name: "cross border personal data",
			mutate: func(i *decision.FinancialIntent) {
				i.Compliance.Privacy.PersonalDataInvolved = true
				i.Compliance.Privacy.CrossBorderTransfer = true
			},
			wantSummary: ComplianceSummary{PrivacyLawApplicable: true, FinancialCrimeReportingApplicable: true},
			wantFlags:   []string{FlagPrivacyAct, FlagCrossBorder},
		},
		{
			name:        "benefit distribution",
			mutate:      func(i *decision.FinancialIntent) { i.Operation = decision.OperationDistributeBenefits },
			wantSummary: ComplianceSummary{CharityReportingApplicable: true},
			wantFlags:   []string{FlagACNCReporting},
		},
		{
			name:        "donation category",
			mutate:      func(i *decision.FinancialIntent) { i.Financial.Categories = []string{"Donation"} },
			wantSummary: ComplianceSummary{CharityReportingApplicable: true},
			wantFlags:   []string{FlagACNCReporting},
		},
		{
			name:        "indigenous data",
			mutate:      func(i *decision.FinancialIntent) { decisiontest.WithIndigenousData(i, "Wurundjeri") },
			wantSummary: ComplianceSummary{IndigenousDataInvolved: true},
			wantFlags:   []string{FlagIndigenousData},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent := decisiontest.NewIntent("i")
			tt.mutate(intent)

			summary, flags := c.Classify(intent)
			if summary != tt.wantSummary {
				t.Errorf("summary = %+v, want %+v", summary, tt.wantSummary)
			}
			if len(flags) != len(tt.wantFlags) {
				t.Fatalf("flags = %v, want %v", flags, tt.wantFlags)
			}
			for i := range flags {
				if flags[i] != tt.wantFlags[i] {
					t.Errorf("flags[%d] = %s, want %s", i, flags[i], tt.wantFlags[i])
				}
			}
		})
	}
}

func TestErrors_Unwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := NewPersistenceError("sqlite", "store", cause)
	if !errors.Is(err, cause) {
		t.Error("PersistenceError does not unwrap")
	}
	if err.Error() != "persistence error [backend=sqlite, operation=store]: disk full" {
		t.Errorf("Error() = %q", err.Error())
	}

	var iv *IntegrityViolation
	if !errors.As(error(NewIntegrityViolation("log-1")), &iv) || iv.LogID != "log-1" {
		t.Error("IntegrityViolation not matched by errors.As")
	}
	if iv.Reason != ViolationHashMismatch {
		t.Errorf("Reason = %q", iv.Reason)
	}
	sealed := NewSealedFieldViolation("log-2", "raw")
	if sealed.Error() != "integrity violation [log_id=log-2 field=raw]: sealed field failed authentication" {
		t.Errorf("Error() = %q", sealed.Error())
	}
}

func TestPartitionFor(t *testing.T) {
	ts := time.Date(2025, 3, 31, 23, 30, 0, 0, time.FixedZone("AEST", -10*3600))
	if got := PartitionFor(ts); got != "2025-04" {
		t.Errorf("PartitionFor() = %s, want 2025-04 (UTC)", got)
	}
}
