package rules

import (
	"slices"

	"github.com/dlclark/regexp2"
)

// Kind is the closed set of matching strategies a rule can use. It is
// inferred from which fields the rule source defines.
type Kind uint8

const (
	// RegexOnly fires when regex is found anywhere in a string value.
	RegexOnly Kind = iota + 1
	// KeyOnly fires when the node's own mapping key is one of keys.
	KeyOnly
	// KeyAndRegex fires when the key matches, the string value fully
	// matches regex and the enclosing logical name fully matches
	// param_name_regex.
	KeyAndRegex
	// KeyOnlyCatchAll behaves like KeyOnly; it backs up a KeyAndRegex rule
	// on the same keys and flags everything that rule let through for review.
	KeyOnlyCatchAll
)

func (k Kind) String() string {
	switch k {
	case RegexOnly:
		return "RegexOnly"
	case KeyOnly:
		return "KeyOnly"
	case KeyAndRegex:
		return "KeyAndRegex"
	case KeyOnlyCatchAll:
		return "KeyOnlyCatchAll"
	}
	return "Unknown"
}

// Rule is an immutable, validated detection rule.
type Rule struct {
	ID          string
	Description string
	Kind        Kind
	Regex       *Pattern // RegexOnly, KeyAndRegex
	ParamName   *Pattern // KeyAndRegex
	Order       int      // declaration index in the rule source

	keys []string
}

// Keys returns the key names the rule matches, in source order.
func (r *Rule) Keys() []string {
	return slices.Clone(r.keys)
}

// HasKey reports whether key is one of the rule's keys. Matching is exact
// and case-sensitive.
func (r *Rule) HasKey(key string) bool {
	return slices.Contains(r.keys, key)
}

// Pattern is a compiled rule expression. Patterns use .NET/Perl syntax
// (lookarounds are allowed) and every match is bounded by a timeout.
type Pattern struct {
	source string
	search *regexp2.Regexp
	full   *regexp2.Regexp
}

// String returns the pattern source as written in the rule file.
func (p *Pattern) String() string { return p.source }

// Find searches s for the pattern. When the pattern has a capture group
// the first group is returned as the secret, otherwise the whole match.
func (p *Pattern) Find(s string) (bool, string, error) {
	m, err := p.search.FindStringMatch(s)
	if err != nil || m == nil {
		return false, "", err
	}
	secret := m.String()
	if m.GroupCount() > 1 {
		if g := m.GroupByNumber(1); g != nil && g.Length > 0 {
			secret = g.String()
		}
	}
	return true, secret, nil
}

// MatchFull reports whether the pattern matches all of s.
func (p *Pattern) MatchFull(s string) (bool, error) {
	return p.full.MatchString(s)
}

// overlaps reports whether a and b share a key name.
func overlaps(a, b []string) bool {
	for _, k := range a {
		if slices.Contains(b, k) {
			return true
		}
	}
	return false
}
