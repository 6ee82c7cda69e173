// Package walk performs a read-only, depth-first pre-order traversal of a
// template tree. Each visited node comes with its path and the context the
// matcher needs for correlated rules, most importantly the logical name of
// the Parameter or Resource declaration that encloses it.
package walk

import (
	"iter"

	"github.com/redactyl/cfnsanitizer/internal/cfn"
	"github.com/redactyl/cfnsanitizer/internal/document"
)

// Entry is one visited node.
type Entry struct {
	Path    document.Path
	Key     string // mapping key the node is stored under
	HasKey  bool   // false for the root and for sequence items
	Node    *document.Node
	Context Context
}

// ParentPath returns the path of the container holding the node.
func (e Entry) ParentPath() document.Path {
	if len(e.Path) == 0 {
		return nil
	}
	return e.Path[:len(e.Path)-1]
}

// Context describes where a node sits in the template.
//
// Inside a declaration section (Parameters, Resources, Outputs, ...) the
// LogicalName is the key of the enclosing declaration, e.g. "DBPassword" for
// /Parameters/DBPassword/Default and "DB" for
// /Resources/DB/Properties/MasterUserPassword. Outside those sections it is
// the nearest key above the node's parent container.
type Context struct {
	Section     string
	LogicalName string
	Declaration *document.Node // node stored under LogicalName, nil when unknown
	Parent      *document.Node // container holding the node, nil for the root

	frame *frame
}

// Sibling looks up key in the node's parent mapping.
func (c Context) Sibling(key string) (*document.Node, bool) {
	return c.Parent.Get(key)
}

// Ancestors yields the containers above the node, nearest first.
func (c Context) Ancestors() iter.Seq[*document.Node] {
	return func(yield func(*document.Node) bool) {
		if c.frame == nil {
			return
		}
		for f := c.frame.parent; f != nil; f = f.parent {
			if !yield(f.node) {
				return
			}
		}
	}
}

// frame is one traversal stack element; parent links form the ancestor chain.
type frame struct {
	node   *document.Node
	path   document.Path
	key    string
	hasKey bool
	parent *frame

	section     string
	logicalName string
	declaration *document.Node
	nearestKey  string // closest mapping key at or above this node
}

func (f *frame) entry() Entry {
	e := Entry{
		Path:   f.path,
		Key:    f.key,
		HasKey: f.hasKey,
		Node:   f.node,
		Context: Context{
			Section:     f.section,
			LogicalName: f.logicalName,
			Declaration: f.declaration,
			frame:       f,
		},
	}
	if f.parent != nil {
		e.Context.Parent = f.parent.node
	}
	return e
}

func (f *frame) child(n *document.Node, seg document.Segment) *frame {
	c := &frame{
		node:   n,
		path:   f.path.Child(seg),
		key:    seg.Key,
		hasKey: !seg.Seq,
		parent: f,
	}
	depth := len(c.path)
	switch {
	case f.section != "":
		c.section = f.section
		if depth == 2 {
			c.logicalName, c.declaration = seg.Key, n
		} else {
			c.logicalName, c.declaration = f.logicalName, f.declaration
		}
	case depth == 1 && !seg.Seq && cfn.IsDeclarationSection(seg.Key):
		c.section = seg.Key
	default:
		c.logicalName = f.nearestKey
		if f.parent != nil && f.nearestKey == f.key && f.hasKey {
			c.declaration = f.node
		}
	}
	c.nearestKey = f.nearestKey
	if c.hasKey {
		c.nearestKey = c.key
	}
	return c
}

// Walk returns a lazy pre-order traversal of root. Every call starts a
// fresh traversal; the tree is never modified.
func Walk(root *document.Node) iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		if root == nil {
			return
		}
		stack := []*frame{{node: root}}
		for len(stack) > 0 {
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if !yield(f.entry()) {
				return
			}
			// children are pushed in reverse so they pop in document order
			switch f.node.Kind {
			case document.MappingNode:
				for i := len(f.node.Pairs) - 1; i >= 0; i-- {
					p := f.node.Pairs[i]
					stack = append(stack, f.child(p.Value, document.Segment{Key: p.Key, Index: i}))
				}
			case document.SequenceNode:
				for i := len(f.node.Items) - 1; i >= 0; i-- {
					stack = append(stack, f.child(f.node.Items[i], document.Segment{Index: i, Seq: true}))
				}
			}
		}
	}
}
