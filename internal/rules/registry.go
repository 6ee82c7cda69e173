package rules

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dlclark/regexp2"

	"github.com/redactyl/cfnsanitizer/internal/document"
)

//go:embed default_rules.yaml
var defaultSource []byte

// DefaultMatchTimeout bounds a single pattern evaluation.
const DefaultMatchTimeout = 250 * time.Millisecond

// Rule source field names.
const (
	FieldRegex       = "regex"
	FieldKeys        = "keys"
	FieldParamName   = "param_name_regex"
	FieldDescription = "description"
)

// RegistryError describes why a rule source was rejected. Any RegistryError
// is fatal: no partially loaded set is ever returned.
type RegistryError struct {
	RuleID string
	Field  string
	Reason string
	Err    error
}

func (e *RegistryError) Error() string {
	var b strings.Builder
	if e.RuleID != "" {
		fmt.Fprintf(&b, "rule %q: ", e.RuleID)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, "field %q: ", e.Field)
	}
	b.WriteString(e.Reason)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *RegistryError) Unwrap() error { return e.Err }

// ErrMissingField is wrapped by RegistryErrors raised for a field the
// rule's kind requires but the source omits.
var ErrMissingField = errors.New("missing required field")

// Set is an ordered, immutable collection of rules. It is safe to share
// between goroutines.
type Set struct {
	rules  []*Rule
	byID   map[string]*Rule
	digest string
}

// Rules returns the rules in declaration order.
func (s *Set) Rules() []*Rule {
	out := make([]*Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

// Len returns the number of rules.
func (s *Set) Len() int { return len(s.rules) }

// Get returns the rule with the given id.
func (s *Set) Get(id string) (*Rule, bool) {
	r, ok := s.byID[id]
	return r, ok
}

// IDs returns rule ids in declaration order.
func (s *Set) IDs() []string {
	out := make([]string, len(s.rules))
	for i, r := range s.rules {
		out[i] = r.ID
	}
	return out
}

// Digest is a short hash of the rule source the set was loaded from.
func (s *Set) Digest() string { return s.digest }

// Filter returns a set restricted to enable (when non-empty) minus disable.
// Rule order and kinds are preserved. Unknown ids are an error so typos do
// not silently widen or narrow detection.
func (s *Set) Filter(enable, disable []string) (*Set, error) {
	for _, id := range append(append([]string{}, enable...), disable...) {
		if _, ok := s.byID[id]; !ok {
			return nil, fmt.Errorf("unknown rule id %q", id)
		}
	}
	if len(enable) == 0 && len(disable) == 0 {
		return s, nil
	}
	allowed := toSet(enable)
	blocked := toSet(disable)
	out := &Set{byID: map[string]*Rule{}, digest: s.digest}
	for _, r := range s.rules {
		if len(allowed) > 0 && !allowed[r.ID] {
			continue
		}
		if blocked[r.ID] {
			continue
		}
		out.rules = append(out.rules, r)
		out.byID[r.ID] = r
	}
	return out, nil
}

func toSet(ids []string) map[string]bool {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

type options struct {
	timeout time.Duration
}

// Option configures Load.
type Option func(*options)

// WithMatchTimeout overrides DefaultMatchTimeout.
func WithMatchTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// DefaultSource returns the built-in rule corpus.
func DefaultSource() []byte {
	out := make([]byte, len(defaultSource))
	copy(out, defaultSource)
	return out
}

// Default loads the built-in rule corpus.
func Default(opts ...Option) (*Set, error) {
	return Load(defaultSource, opts...)
}

// LoadFile reads and loads a rule source (YAML or JSON) from path.
func LoadFile(path string, opts ...Option) (*Set, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	return Load(b, opts...)
}

// Load parses a rule source, a mapping of rule id to
// {regex?, keys?, param_name_regex?, description}, infers every rule's kind
// and compiles its patterns. The first invalid rule aborts the load.
func Load(src []byte, opts ...Option) (*Set, error) {
	o := options{timeout: DefaultMatchTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	root, err := document.Decode(src)
	if err != nil {
		return nil, &RegistryError{Reason: "cannot parse rule source", Err: err}
	}
	if root.Kind != document.MappingNode {
		return nil, &RegistryError{Reason: "rule source must be a mapping of rule id to definition"}
	}
	if len(root.Pairs) == 0 {
		return nil, &RegistryError{Reason: "rule source defines no rules"}
	}

	set := &Set{
		byID:   make(map[string]*Rule, len(root.Pairs)),
		digest: fmt.Sprintf("%016x", xxhash.Sum64(src)),
	}
	for i, p := range root.Pairs {
		r, err := parseRule(p.Key, p.Value, i, o)
		if err != nil {
			return nil, err
		}
		set.rules = append(set.rules, r)
		set.byID[r.ID] = r
	}
	classifyCatchAll(set.rules)
	return set, nil
}

func parseRule(id string, def *document.Node, order int, o options) (*Rule, error) {
	if strings.TrimSpace(id) == "" {
		return nil, &RegistryError{Reason: "empty rule id at position " + strconv.Itoa(order)}
	}
	if def.Kind != document.MappingNode {
		return nil, &RegistryError{RuleID: id, Reason: "definition must be a mapping"}
	}
	r := &Rule{ID: id, Order: order}

	var regexSrc, paramSrc string
	var hasRegex, hasKeys, hasParam, hasDesc bool
	for _, f := range def.Pairs {
		switch f.Key {
		case FieldRegex:
			s, err := stringField(id, f)
			if err != nil {
				return nil, err
			}
			regexSrc, hasRegex = s, true
		case FieldParamName:
			s, err := stringField(id, f)
			if err != nil {
				return nil, err
			}
			paramSrc, hasParam = s, true
		case FieldDescription:
			s, err := stringField(id, f)
			if err != nil {
				return nil, err
			}
			r.Description, hasDesc = s, true
		case FieldKeys:
			keys, err := keysField(id, f)
			if err != nil {
				return nil, err
			}
			r.keys, hasKeys = keys, true
		default:
			return nil, &RegistryError{RuleID: id, Field: f.Key, Reason: "unknown field"}
		}
	}
	if !hasDesc {
		return nil, missing(id, FieldDescription, "every rule")
	}

	switch {
	case hasKeys && hasRegex && hasParam:
		r.Kind = KeyAndRegex
	case hasParam && !hasKeys:
		return nil, missing(id, FieldKeys, KeyAndRegex.String())
	case hasParam && !hasRegex:
		return nil, missing(id, FieldRegex, KeyAndRegex.String())
	case hasKeys && hasRegex:
		return nil, missing(id, FieldParamName, KeyAndRegex.String())
	case hasRegex:
		r.Kind = RegexOnly
	case hasKeys:
		r.Kind = KeyOnly
	default:
		return nil, &RegistryError{RuleID: id, Field: FieldRegex, Reason: "rule must define regex or keys", Err: ErrMissingField}
	}

	if hasRegex {
		p, err := compile(id, FieldRegex, regexSrc, o.timeout)
		if err != nil {
			return nil, err
		}
		r.Regex = p
	}
	if hasParam {
		p, err := compile(id, FieldParamName, paramSrc, o.timeout)
		if err != nil {
			return nil, err
		}
		r.ParamName = p
	}
	return r, nil
}

// classifyCatchAll marks keys-only rules that share a key with a
// KeyAndRegex rule: they exist to flag what the stricter rule skipped.
func classifyCatchAll(rs []*Rule) {
	for _, r := range rs {
		if r.Kind != KeyOnly {
			continue
		}
		for _, other := range rs {
			if other.Kind == KeyAndRegex && overlaps(r.keys, other.keys) {
				r.Kind = KeyOnlyCatchAll
				break
			}
		}
	}
}

func missing(id, field, by string) error {
	return &RegistryError{RuleID: id, Field: field, Reason: "required by " + by, Err: ErrMissingField}
}

func stringField(id string, f document.Pair) (string, error) {
	if f.Value.Kind != document.ScalarNode || f.Value.Type != document.String || f.Value.Value == "" {
		return "", &RegistryError{RuleID: id, Field: f.Key, Reason: "must be a non-empty string"}
	}
	return f.Value.Value, nil
}

func keysField(id string, f document.Pair) ([]string, error) {
	if f.Value.Kind != document.SequenceNode || len(f.Value.Items) == 0 {
		return nil, &RegistryError{RuleID: id, Field: f.Key, Reason: "must be a non-empty list of key names"}
	}
	keys := make([]string, 0, len(f.Value.Items))
	for _, it := range f.Value.Items {
		if it.Kind != document.ScalarNode || it.Value == "" {
			return nil, &RegistryError{RuleID: id, Field: f.Key, Reason: "key names must be non-empty scalars"}
		}
		keys = append(keys, it.Value)
	}
	return keys, nil
}

func compile(id, field, src string, timeout time.Duration) (*Pattern, error) {
	search, err := regexp2.Compile(src, regexp2.None)
	if err != nil {
		return nil, &RegistryError{RuleID: id, Field: field, Reason: "invalid pattern", Err: err}
	}
	full, err := regexp2.Compile(`\A(?:`+src+`)\z`, regexp2.None)
	if err != nil {
		return nil, &RegistryError{RuleID: id, Field: field, Reason: "invalid pattern", Err: err}
	}
	search.MatchTimeout = timeout
	full.MatchTimeout = timeout
	return &Pattern{source: src, search: search, full: full}, nil
}
