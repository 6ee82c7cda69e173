// Package redact produces sanitized copies of template trees. Only scalar
// leaves at or below flagged paths change; untouched subtrees are shared
// with the input and containers are never reshaped.
package redact

import (
	"errors"
	"fmt"
	"slices"

	"github.com/redactyl/cfnsanitizer/internal/document"
	"github.com/redactyl/cfnsanitizer/internal/types"
)

// ErrPathNotFound means a finding points at a location the tree does not
// have, which can only happen when findings and tree went out of sync.
var ErrPathNotFound = errors.New("finding path not found in document")

// IntegrityError reports the finding that could not be applied.
type IntegrityError struct {
	Path   string
	RuleID string
	Err    error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("redact %s (rule %s): %v", e.Path, e.RuleID, e.Err)
}

func (e *IntegrityError) Unwrap() error { return e.Err }

// Stats counts what a redaction changed.
type Stats struct {
	Redacted int `json:"redacted"` // scalars replaced by a placeholder
	Retained int `json:"retained"` // flagged values that held nothing left to replace
}

func (s *Stats) add(replaced int) {
	if replaced == 0 {
		s.Retained++
		return
	}
	s.Redacted += replaced
}

// target is the finding that decides the placeholder for one path.
type target struct {
	finding types.Finding
	pos     []int
}

// Redact returns a sanitized copy of root. A path flagged by several rules
// gets the placeholder of the rule declared first. Scalars of any type
// become string placeholders; a flagged mapping or sequence keeps its keys
// and length while every string, number and boolean below it is replaced.
// Either every finding is applied or an error is returned together with a
// nil tree; root itself is never modified.
func Redact(root *document.Node, findings []types.Finding) (*document.Node, Stats, error) {
	var stats Stats
	if len(findings) == 0 {
		return root, stats, nil
	}

	byPath := make(map[string]int, len(findings))
	var targets []target
	for _, f := range findings {
		if i, ok := byPath[f.Path]; ok {
			if f.RuleOrder < targets[i].finding.RuleOrder {
				targets[i].finding = f
			}
			continue
		}
		byPath[f.Path] = len(targets)
		targets = append(targets, target{finding: f, pos: f.Location.Positions()})
	}
	// enclosing containers sort before their descendants
	slices.SortStableFunc(targets, func(a, b target) int {
		return document.ComparePositions(a.pos, b.pos)
	})

	r := &redactor{copies: make(map[*document.Node]*document.Node)}
	out := r.copyOf(root)
	for _, t := range targets {
		if err := r.apply(root, out, t.finding); err != nil {
			return nil, Stats{}, err
		}
	}
	return out, r.stats, nil
}

// Exposed reports whether the container n still holds a value that a
// redaction would replace.
func Exposed(n *document.Node) bool {
	switch n.Kind {
	case document.MappingNode:
		for _, p := range n.Pairs {
			if Exposed(p.Value) {
				return true
			}
		}
	case document.SequenceNode:
		for _, it := range n.Items {
			if Exposed(it) {
				return true
			}
		}
	case document.ScalarNode:
		return valueLeaf(n)
	}
	return false
}

// valueLeaf reports whether a scalar inside a flagged container is replaced.
func valueLeaf(n *document.Node) bool {
	return n.Type != document.Null && !types.IsPlaceholder(n.Value)
}

type redactor struct {
	// originals whose copy is already part of the new tree
	copies map[*document.Node]*document.Node
	stats  Stats
}

func (r *redactor) copyOf(n *document.Node) *document.Node {
	if cp, ok := r.copies[n]; ok {
		return cp
	}
	cp := n.ShallowCopy()
	r.copies[n] = cp
	return cp
}

func (r *redactor) apply(orig, cur *document.Node, f types.Finding) error {
	loc := f.Location
	if f.Path != loc.String() {
		return &IntegrityError{Path: f.Path, RuleID: f.RuleID, Err: fmt.Errorf("%w: location %q does not match path", ErrPathNotFound, loc.String())}
	}
	if len(loc) == 0 {
		// the root itself is flagged
		if orig.Kind != document.ScalarNode {
			r.stats.add(r.scrub(orig, cur, f))
			return nil
		}
		if types.IsPlaceholder(orig.Value) {
			r.stats.Retained++
			return nil
		}
		*cur = *placeholder(orig, f)
		r.stats.Redacted++
		return nil
	}

	for depth, seg := range loc {
		child, err := childAt(orig, seg)
		if err != nil {
			return &IntegrityError{Path: f.Path, RuleID: f.RuleID, Err: fmt.Errorf("%w: %v", ErrPathNotFound, err)}
		}
		if depth == len(loc)-1 && child.Kind == document.ScalarNode {
			if types.IsPlaceholder(child.Value) {
				r.stats.Retained++
				return nil
			}
			if got, _ := childAt(cur, seg); got != child {
				// already replaced by a flagged enclosing container
				return nil
			}
			setChild(cur, seg, placeholder(child, f))
			r.stats.Redacted++
			return nil
		}
		next := r.copyOf(child)
		setChild(cur, seg, next)
		if depth == len(loc)-1 {
			r.stats.add(r.scrub(child, next, f))
			return nil
		}
		orig, cur = child, next
	}
	return nil
}

// scrub replaces every value leaf below the container orig in its copy cp
// with f's placeholder and returns how many were replaced.
func (r *redactor) scrub(orig, cp *document.Node, f types.Finding) int {
	replaced := 0
	for _, seg := range segments(orig) {
		child, _ := childAt(orig, seg)
		if child.Kind == document.ScalarNode {
			if got, _ := childAt(cp, seg); got != child || !valueLeaf(child) {
				continue
			}
			setChild(cp, seg, placeholder(child, f))
			replaced++
			continue
		}
		next := r.copyOf(child)
		setChild(cp, seg, next)
		replaced += r.scrub(child, next, f)
	}
	return replaced
}

func segments(n *document.Node) []document.Segment {
	var out []document.Segment
	switch n.Kind {
	case document.MappingNode:
		for i, p := range n.Pairs {
			out = append(out, document.Segment{Key: p.Key, Index: i})
		}
	case document.SequenceNode:
		for i := range n.Items {
			out = append(out, document.Segment{Index: i, Seq: true})
		}
	}
	return out
}

func childAt(n *document.Node, seg document.Segment) (*document.Node, error) {
	switch n.Kind {
	case document.MappingNode:
		if !seg.Seq && seg.Index >= 0 && seg.Index < len(n.Pairs) && n.Pairs[seg.Index].Key == seg.Key {
			return n.Pairs[seg.Index].Value, nil
		}
		return nil, fmt.Errorf("no key %q at position %d", seg.Key, seg.Index)
	case document.SequenceNode:
		if seg.Seq && seg.Index >= 0 && seg.Index < len(n.Items) {
			return n.Items[seg.Index], nil
		}
		return nil, fmt.Errorf("no index %d", seg.Index)
	}
	return nil, fmt.Errorf("%s node has no children", n.Kind)
}

func setChild(n *document.Node, seg document.Segment, v *document.Node) {
	if seg.Seq {
		n.Items[seg.Index] = v
		return
	}
	n.Pairs[seg.Index].Value = v
}

func placeholder(orig *document.Node, f types.Finding) *document.Node {
	p := document.NewString(f.Placeholder)
	if p.Value == "" {
		p.Value = types.Placeholder(f.RuleID)
	}
	p.Line = orig.Line
	return p
}
