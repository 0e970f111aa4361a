package logging

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"mercator-hq/arbiter/pkg/config"
)

// Redactor redacts PII (Personally Identifiable Information) from log fields.
// Patterns are applied in order: built-in patterns first, then custom ones.
type Redactor struct {
	patterns []*redactPattern
}

// redactPattern contains a compiled regex and replacement string.
type redactPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// Built-in PII pattern names.
const (
	PatternBearerToken = "bearer_token"
	PatternAPIKey      = "api_key"
	PatternPassword    = "password"
	PatternEmail       = "email"
	PatternPhone       = "phone"
	PatternCreditCard  = "credit_card"
	PatternMedicare    = "medicare"
	PatternTFN         = "tfn"
	PatternIPv4        = "ipv4"
)

// defaultPatterns are ordered so that phone numbers and longer digit runs
// are matched before the shorter identifiers they contain.
var defaultPatterns = []struct {
	name        string
	regex       string
	replacement string
}{
	{PatternBearerToken, `Bearer\s+[a-zA-Z0-9\-._~+/]+=*`, "Bearer ***"},
	{PatternAPIKey, `(?i)(arb_[a-zA-Z0-9]+|api[-_]?key[-_:=]\s*[a-zA-Z0-9]+)`, "***"},
	{PatternPassword, `(?i)(password|passwd|pwd)[:=]\s*[^\s]+`, "$1: ***"},
	{PatternEmail, `[a-zA-Z0-9._%+-]+@([a-zA-Z0-9.-]+\.[a-zA-Z]{2,})`, "***@$1"},
	{PatternPhone, `(?:\+61\s?|\b0)4\d{2}\s?\d{3}\s?\d{3}\b`, "04** *** ***"},
	{PatternCreditCard, `\b(?:\d[ -]?){15}\d\b`, "****-****-****-****"},
	{PatternMedicare, `\b\d{4}\s?\d{5}\s?\d\b`, "**** ***** *"},
	{PatternTFN, `\b\d{3}\s?\d{3}\s?\d{3}\b`, "*** *** ***"},
	{PatternIPv4, `\b(?:\d{1,3}\.){3}\d{1,3}\b`, "*.*.*.*"},
}

// sensitiveKeys mark attributes whose whole value is masked.
var sensitiveKeys = []string{
	"password", "passwd", "pwd",
	"secret", "token", "api_key", "apikey",
	"authorization",
	"tfn", "tax_file", "medicare",
	"credit_card", "creditcard",
	"private_key", "privatekey",
	"dsn",
	"traditional_owner", "justification",
}

// NewRedactor creates a new Redactor with default and custom patterns.
// An invalid custom pattern is an error.
func NewRedactor(customPatterns []config.RedactPattern) (*Redactor, error) {
	r := &Redactor{}

	for _, p := range defaultPatterns {
		r.patterns = append(r.patterns, &redactPattern{
			name:        p.name,
			regex:       regexp.MustCompile(p.regex),
			replacement: p.replacement,
		})
	}

	for _, p := range customPatterns {
		regex, err := regexp.Compile(p.Pattern)
		if err != nil {
			return nil, fmt.Errorf("redact pattern %q: %w", p.Name, err)
		}
		r.patterns = append(r.patterns, &redactPattern{
			name:        p.Name,
			regex:       regex,
			replacement: p.Replacement,
		})
	}

	return r, nil
}

// RedactString redacts PII from a string value.
func (r *Redactor) RedactString(value string) string {
	if value == "" {
		return value
	}

	redacted := value
	for _, pattern := range r.patterns {
		redacted = pattern.regex.ReplaceAllString(redacted, pattern.replacement)
	}
	return redacted
}

// RedactAttr redacts a log attribute. Values under sensitive keys are
// masked entirely, string values are pattern-redacted, and groups are
// walked recursively.
func (r *Redactor) RedactAttr(a slog.Attr) slog.Attr {
	v := a.Value.Resolve()

	if v.Kind() == slog.KindGroup {
		group := v.Group()
		redacted := make([]any, len(group))
		for i, inner := range group {
			redacted[i] = r.RedactAttr(inner)
		}
		return slog.Group(a.Key, redacted...)
	}

	if IsSensitiveKey(a.Key) {
		return slog.String(a.Key, maskValue(v))
	}

	switch v.Kind() {
	case slog.KindString:
		return slog.String(a.Key, r.RedactString(v.String()))
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return slog.String(a.Key, r.RedactString(err.Error()))
		}
		if s, ok := v.Any().(fmt.Stringer); ok {
			return slog.String(a.Key, r.RedactString(s.String()))
		}
	}
	return slog.Attr{Key: a.Key, Value: v}
}

// IsSensitiveKey reports whether a key name indicates sensitive data.
func IsSensitiveKey(key string) bool {
	lowerKey := strings.ToLower(key)
	for _, sensitive := range sensitiveKeys {
		if strings.Contains(lowerKey, sensitive) {
			return true
		}
	}
	return false
}

// maskValue hides a value entirely, leaving empty strings visible as empty.
func maskValue(v slog.Value) string {
	if v.Kind() == slog.KindString && v.String() == "" {
		return ""
	}
	return "***"
}

// RedactAPIKey redacts an API key, keeping only a prefix: four characters,
// or eight for keys of 16 characters or more.
func RedactAPIKey(apiKey string) string {
	switch {
	case len(apiKey) <= 4:
		return "***"
	case len(apiKey) < 16:
		return apiKey[:4] + "***"
	default:
		return apiKey[:8] + "***"
	}
}
