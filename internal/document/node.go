package document

// Kind is the closed set of node shapes a template tree is made of.
type Kind uint8

const (
	ScalarNode Kind = iota + 1
	MappingNode
	SequenceNode
)

func (k Kind) String() string {
	switch k {
	case ScalarNode:
		return "scalar"
	case MappingNode:
		return "mapping"
	case SequenceNode:
		return "sequence"
	default:
		return "invalid"
	}
}

// ScalarType distinguishes the scalar flavours so numbers and booleans
// round-trip without being turned into strings.
type ScalarType uint8

const (
	String ScalarType = iota
	Number
	Bool
	Null
)

func (t ScalarType) String() string {
	switch t {
	case Number:
		return "number"
	case Bool:
		return "bool"
	case Null:
		return "null"
	default:
		return "string"
	}
}

// Node is one element of a parsed template. Only the fields matching Kind
// are meaningful: Type/Value for scalars, Pairs for mappings, Items for
// sequences.
type Node struct {
	Kind  Kind
	Type  ScalarType
	Value string
	Pairs []Pair
	Items []*Node
	Line  int // 1-based source line, 0 when unknown
}

// Pair is a single mapping entry. Keys are unique within a mapping and
// Pairs keep the source order.
type Pair struct {
	Key   string
	Value *Node
}

// NewString returns a string scalar.
func NewString(s string) *Node {
	return &Node{Kind: ScalarNode, Type: String, Value: s}
}

// NewScalar returns a scalar of the given type with its textual value.
func NewScalar(t ScalarType, v string) *Node {
	return &Node{Kind: ScalarNode, Type: t, Value: v}
}

// NewMapping returns a mapping holding pairs in order.
func NewMapping(pairs ...Pair) *Node {
	return &Node{Kind: MappingNode, Pairs: pairs}
}

// NewSequence returns a sequence holding items in order.
func NewSequence(items ...*Node) *Node {
	return &Node{Kind: SequenceNode, Items: items}
}

// IsString reports whether n is a string scalar.
func (n *Node) IsString() bool {
	return n != nil && n.Kind == ScalarNode && n.Type == String
}

// Get returns the value stored under key when n is a mapping.
func (n *Node) Get(key string) (*Node, bool) {
	if n == nil || n.Kind != MappingNode {
		return nil, false
	}
	for _, p := range n.Pairs {
		if p.Key == key {
			return p.Value, true
		}
	}
	return nil, false
}

// GetString returns the string value stored under key, or "".
func (n *Node) GetString(key string) string {
	v, ok := n.Get(key)
	if !ok || v.Kind != ScalarNode {
		return ""
	}
	return v.Value
}

// Len returns the number of children of a container node.
func (n *Node) Len() int {
	switch n.Kind {
	case MappingNode:
		return len(n.Pairs)
	case SequenceNode:
		return len(n.Items)
	default:
		return 0
	}
}

// ShallowCopy copies n and its child slices but shares the children.
func (n *Node) ShallowCopy() *Node {
	cp := *n
	if n.Pairs != nil {
		cp.Pairs = make([]Pair, len(n.Pairs))
		copy(cp.Pairs, n.Pairs)
	}
	if n.Items != nil {
		cp.Items = make([]*Node, len(n.Items))
		copy(cp.Items, n.Items)
	}
	return &cp
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	cp := &Node{Kind: n.Kind, Type: n.Type, Value: n.Value, Line: n.Line}
	if n.Pairs != nil {
		cp.Pairs = make([]Pair, len(n.Pairs))
		for i, p := range n.Pairs {
			cp.Pairs[i] = Pair{Key: p.Key, Value: p.Value.Clone()}
		}
	}
	if n.Items != nil {
		cp.Items = make([]*Node, len(n.Items))
		for i, it := range n.Items {
			cp.Items[i] = it.Clone()
		}
	}
	return cp
}

// Equal reports whether a and b hold the same tree, ignoring line numbers.
func Equal(a, b *Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case ScalarNode:
		return a.Type == b.Type && a.Value == b.Value
	case MappingNode:
		if len(a.Pairs) != len(b.Pairs) {
			return false
		}
		for i := range a.Pairs {
			if a.Pairs[i].Key != b.Pairs[i].Key || !Equal(a.Pairs[i].Value, b.Pairs[i].Value) {
				return false
			}
		}
		return true
	case SequenceNode:
		if len(a.Items) != len(b.Items) {
			return false
		}
		for i := range a.Items {
			if !Equal(a.Items[i], b.Items[i]) {
				return false
			}
		}
		return true
	}
	return false
}
