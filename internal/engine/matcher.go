package engine

import (
	"iter"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"

	"github.com/redactyl/cfnsanitizer/internal/document"
	"github.com/redactyl/cfnsanitizer/internal/redact"
	"github.com/redactyl/cfnsanitizer/internal/rules"
	"github.com/redactyl/cfnsanitizer/internal/types"
	"github.com/redactyl/cfnsanitizer/internal/walk"
)

// Matcher applies every rule of a set to every walked node. It holds no
// mutable state and can be shared between goroutines.
type Matcher struct {
	rules []*rules.Rule
	log   zerolog.Logger
}

// NewMatcher returns a matcher over set. A zero logger is silent.
func NewMatcher(set *rules.Set, log zerolog.Logger) *Matcher {
	return &Matcher{rules: set.Rules(), log: log}
}

// Evaluate matches all entries and returns one finding per (node, rule)
// pair that fired, in traversal order and then rule order. It does not
// deduplicate.
func (m *Matcher) Evaluate(entries iter.Seq[walk.Entry]) []types.Finding {
	var out []types.Finding
	for e := range entries {
		out = append(out, m.Match(e)...)
	}
	return out
}

// Match evaluates all rules against one entry. A rule that cannot apply to
// the node's shape simply does not fire.
func (m *Matcher) Match(e walk.Entry) []types.Finding {
	// placeholders written by an earlier redaction hold no secret
	if e.Node.Kind == document.ScalarNode && types.IsPlaceholder(e.Node.Value) {
		return nil
	}
	var out []types.Finding
	for _, r := range m.rules {
		fired, secret, err := m.fires(r, e)
		if err != nil {
			m.log.Warn().Err(err).Str("rule", r.ID).Str("path", e.Path.String()).Msg("rule evaluation failed; skipping")
			continue
		}
		if !fired {
			continue
		}
		out = append(out, newFinding(r, e, secret))
	}
	return out
}

// fires reports whether r matches e, and the text to fingerprint.
func (m *Matcher) fires(r *rules.Rule, e walk.Entry) (bool, string, error) {
	switch r.Kind {
	case rules.RegexOnly:
		if !e.Node.IsString() {
			return false, "", nil
		}
		return r.Regex.Find(e.Node.Value)

	case rules.KeyOnly, rules.KeyOnlyCatchAll:
		if !e.HasKey || !r.HasKey(e.Key) {
			return false, "", nil
		}
		if e.Node.Kind == document.ScalarNode {
			return true, e.Node.Value, nil
		}
		// a container whose values are all placeholders or null has nothing left to hide
		return redact.Exposed(e.Node), "", nil

	case rules.KeyAndRegex:
		if !e.HasKey || !r.HasKey(e.Key) || !e.Node.IsString() {
			return false, "", nil
		}
		if e.Context.LogicalName == "" {
			return false, "", nil
		}
		ok, err := r.Regex.MatchFull(e.Node.Value)
		if err != nil || !ok {
			return false, "", err
		}
		ok, err = r.ParamName.MatchFull(e.Context.LogicalName)
		if err != nil || !ok {
			return false, "", err
		}
		return true, e.Node.Value, nil
	}
	return false, "", nil
}

func newFinding(r *rules.Rule, e walk.Entry, secret string) types.Finding {
	f := types.Finding{
		RuleID:      r.ID,
		Path:        e.Path.String(),
		Location:    e.Path,
		Placeholder: types.Placeholder(r.ID),
		Severity:    severityFor(r.Kind),
		Description: r.Description,
		RuleOrder:   r.Order,
	}
	if e.HasKey {
		f.Key = e.Key
	}
	if secret != "" {
		f.Fingerprint = fingerprint(secret)
	}
	return f
}

func severityFor(k rules.Kind) types.Severity {
	if k == rules.KeyOnlyCatchAll {
		return types.SevLow
	}
	return types.SevHigh
}

// fingerprint is a fixed-width xxhash of the secret, enough to correlate
// findings across runs without keeping the value.
func fingerprint(s string) string {
	sum := xxhash.Sum64String(s)
	var buf [16]byte
	const hex = "0123456789abcdef"
	for i := 15; i >= 0; i-- {
		buf[i] = hex[sum&0xF]
		sum >>= 4
	}
	return string(buf[:])
}
