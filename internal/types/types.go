package types

import (
	"strings"

	"github.com/redactyl/cfnsanitizer/internal/document"
)

// Severity is a coarse-grained risk level for a finding.
type Severity string

const (
	SevLow  Severity = "low"
	SevMed  Severity = "medium"
	SevHigh Severity = "high"
)

// Finding records that the value (or key) at Path matched a rule. It never
// carries the raw value: Fingerprint is a bounded hash of the matched secret.
type Finding struct {
	Document    string   `json:"document,omitempty"`
	RuleID      string   `json:"rule_id"`
	Path        string   `json:"path"`
	Key         string   `json:"key,omitempty"` // mapping key of the matched node ("" for sequence items)
	Placeholder string   `json:"placeholder"`
	Fingerprint string   `json:"fingerprint,omitempty"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description,omitempty"`

	// Location is the parsed form of Path; RuleOrder is the rule's
	// declaration index. Both drive ordering and redaction.
	Location  document.Path `json:"-"`
	RuleOrder int           `json:"-"`
}

const (
	placeholderPrefix = "<REDACTED:"
	placeholderSuffix = ">"
)

// Placeholder returns the redaction placeholder written for ruleID.
func Placeholder(ruleID string) string {
	return placeholderPrefix + ruleID + placeholderSuffix
}

// IsPlaceholder reports whether s is exactly a redaction placeholder.
func IsPlaceholder(s string) bool {
	if !strings.HasPrefix(s, placeholderPrefix) || !strings.HasSuffix(s, placeholderSuffix) {
		return false
	}
	id := s[len(placeholderPrefix) : len(s)-len(placeholderSuffix)]
	return id != "" && !strings.ContainsAny(id, "<> \t\n")
}
