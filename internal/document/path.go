package document

import (
	"fmt"
	"strconv"
	"strings"
)

// Segment is one step from a container to a child. Index is the child's
// position inside its parent for both mappings and sequences, which keeps
// path ordering identical to traversal order.
type Segment struct {
	Key   string
	Index int
	Seq   bool
}

// Path addresses a node from the document root.
type Path []Segment

// Child returns a copy of p extended with s. The receiver is never aliased.
func (p Path) Child(s Segment) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, s)
}

// String renders p as a JSON pointer (RFC 6901), "" for the root.
func (p Path) String() string {
	if len(p) == 0 {
		return ""
	}
	var b strings.Builder
	for _, s := range p {
		b.WriteByte('/')
		if s.Seq {
			b.WriteString(strconv.Itoa(s.Index))
			continue
		}
		b.WriteString(escapeToken(s.Key))
	}
	return b.String()
}

// Positions returns the per-level child positions of p.
func (p Path) Positions() []int {
	out := make([]int, len(p))
	for i, s := range p {
		out[i] = s.Index
	}
	return out
}

// LastKey returns the mapping key of the addressed node, if it has one.
func (p Path) LastKey() (string, bool) {
	if len(p) == 0 || p[len(p)-1].Seq {
		return "", false
	}
	return p[len(p)-1].Key, true
}

// ComparePositions orders two position lists in pre-order: ancestors sort
// before their descendants and siblings follow document order.
func ComparePositions(a, b []int) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

// At resolves p against root. Mapping segments must name the key found at
// the recorded position; a mismatch means the tree diverged from the one the
// path was taken from.
func At(root *Node, p Path) (*Node, error) {
	cur := root
	for depth, s := range p {
		if cur == nil {
			return nil, fmt.Errorf("nil node at %s", p[:depth].String())
		}
		switch cur.Kind {
		case MappingNode:
			if s.Seq || s.Index < 0 || s.Index >= len(cur.Pairs) || cur.Pairs[s.Index].Key != s.Key {
				return nil, fmt.Errorf("no key %q at position %d under %q", s.Key, s.Index, p[:depth].String())
			}
			cur = cur.Pairs[s.Index].Value
		case SequenceNode:
			if !s.Seq || s.Index < 0 || s.Index >= len(cur.Items) {
				return nil, fmt.Errorf("no index %d under %q", s.Index, p[:depth].String())
			}
			cur = cur.Items[s.Index]
		default:
			return nil, fmt.Errorf("scalar at %q has no children", p[:depth].String())
		}
	}
	return cur, nil
}

func escapeToken(s string) string {
	if !strings.ContainsAny(s, "~/") {
		return s
	}
	s = strings.ReplaceAll(s, "~", "~0")
	return strings.ReplaceAll(s, "/", "~1")
}
