package logging

import (
	"log/slog"
	"testing"

	"mercator-hq/arbiter/pkg/config"
)

func TestRedactor_RedactString(t *testing.T) {
	r, err := NewRedactor(nil)
	if err != nil {
		t.Fatalf("NewRedactor() failed: %v", err)
	}

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"tfn", "TFN 123 456 782 supplied", "TFN *** *** *** supplied"},
		{"medicare", "card 2123 45670 1", "card **** ***** *"},
		{"mobile", "call 0412 345 678", "call 04** *** ***"},
		{"international mobile", "call +61 412 345 678", "call 04** *** ***"},
		{"email", "from jo@example.com.au", "from ***@example.com.au"},
		{"credit card", "card 4111 1111 1111 1111", "card ****-****-****-****"},
		{"bearer", "Authorization: Bearer eyJhbGciOi.abc", "Authorization: Bearer ***"},
		{"api key", "key arb_3fa9c", "key ***"},
		{"password", "password=hunter2", "password: ***"},
		{"ipv4", "from 10.1.2.3", "from *.*.*.*"},
		{"amount untouched", "amount 1500000", "amount 1500000"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.RedactString(tt.input); got != tt.want {
				t.Errorf("RedactString(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRedactor_RedactAttr(t *testing.T) {
	r, _ := NewRedactor(nil)

	tests := []struct {
		name string
		attr slog.Attr
		want string
	}{
		{"sensitive key", slog.String("key_secret", "abcdef"), "***"},
		{"sensitive non-string", slog.Int("medicare_number", 21234567), "***"},
		{"empty sensitive", slog.String("token", ""), ""},
		{"plain", slog.String("decision", "deny"), "deny"},
		{"pattern in value", slog.String("note", "tfn 123 456 782"), "tfn *** *** ***"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.RedactAttr(tt.attr)
			if got.Value.String() != tt.want {
				t.Errorf("RedactAttr() = %q, want %q", got.Value.String(), tt.want)
			}
		})
	}

	if got := r.RedactAttr(slog.Int("count", 3)); got.Value.Int64() != 3 {
		t.Errorf("non-sensitive int changed: %v", got.Value)
	}
}

func TestIsSensitiveKey(t *testing.T) {
	tests := map[string]bool{
		"Authorization":     true,
		"evaluator_token":   true,
		"DSN":               true,
		"traditional_owner": true,
		"justification":     true,
		"user_id":           false,
		"decision":          false,
	}
	for key, want := range tests {
		if got := IsSensitiveKey(key); got != want {
			t.Errorf("IsSensitiveKey(%q) = %v, want %v", key, got, want)
		}
	}
}

func TestRedactor_CustomPatterns(t *testing.T) {
	r, err := NewRedactor([]config.RedactPattern{
		{Name: "case_number", Pattern: `CASE-\d{4}-\d{5}`, Replacement: "CASE-[redacted]"},
	})
	if err != nil {
		t.Fatalf("NewRedactor() failed: %v", err)
	}

	if got := r.RedactString("see CASE-2025-00042"); got != "see CASE-[redacted]" {
		t.Errorf("custom pattern not applied: %q", got)
	}
}

func TestRedactAPIKey(t *testing.T) {
	if got := RedactAPIKey("arb_live_123"); got != "arb_***" {
		t.Errorf("RedactAPIKey() = %q", got)
	}
	if got := RedactAPIKey("abc"); got != "***" {
		t.Errorf("RedactAPIKey(short) = %q", got)
	}
	if got := RedactAPIKey("arb_live_0123456789abcdef"); got != "arb_live***" {
		t.Errorf("RedactAPIKey(long) = %q", got)
	}
}
