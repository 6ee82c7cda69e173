package document

import (
	"errors"
	"fmt"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

// ErrUnsupported is returned for input that cannot be represented as a
// template tree (empty documents, non-scalar keys, duplicate keys).
var ErrUnsupported = errors.New("unsupported document")

// Decode parses JSON or YAML bytes into a tree. JSON goes through the same
// YAML parser, which keeps key order and line numbers for both formats.
// CloudFormation short-form tags (!Ref, !Sub, ...) become their long form.
func Decode(b []byte) (*Node, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(b, &root); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrUnsupported)
	}
	return convert(root.Content[0], 0)
}

const maxAliasDepth = 64

func convert(n *yaml.Node, aliasDepth int) (*Node, error) {
	if fn, ok := intrinsicName(n.Tag); ok {
		return convertIntrinsic(fn, n, aliasDepth)
	}
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, fmt.Errorf("%w: empty document", ErrUnsupported)
		}
		return convert(n.Content[0], aliasDepth)
	case yaml.AliasNode:
		if aliasDepth >= maxAliasDepth || n.Alias == nil {
			return nil, fmt.Errorf("%w: alias nesting too deep at line %d", ErrUnsupported, n.Line)
		}
		return convert(n.Alias, aliasDepth+1)
	case yaml.MappingNode:
		out := &Node{Kind: MappingNode, Line: n.Line, Pairs: make([]Pair, 0, len(n.Content)/2)}
		seen := make(map[string]bool, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			k := n.Content[i]
			if k.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("%w: non-scalar key at line %d", ErrUnsupported, k.Line)
			}
			if seen[k.Value] {
				return nil, fmt.Errorf("%w: duplicate key %q at line %d", ErrUnsupported, k.Value, k.Line)
			}
			seen[k.Value] = true
			v, err := convert(n.Content[i+1], aliasDepth)
			if err != nil {
				return nil, err
			}
			out.Pairs = append(out.Pairs, Pair{Key: k.Value, Value: v})
		}
		return out, nil
	case yaml.SequenceNode:
		out := &Node{Kind: SequenceNode, Line: n.Line, Items: make([]*Node, 0, len(n.Content))}
		for _, c := range n.Content {
			v, err := convert(c, aliasDepth)
			if err != nil {
				return nil, err
			}
			out.Items = append(out.Items, v)
		}
		return out, nil
	case yaml.ScalarNode:
		return &Node{Kind: ScalarNode, Type: scalarType(n), Value: n.Value, Line: n.Line}, nil
	}
	return nil, fmt.Errorf("%w: unknown node kind %d at line %d", ErrUnsupported, n.Kind, n.Line)
}

func scalarType(n *yaml.Node) ScalarType {
	switch n.ShortTag() {
	case "!!int", "!!float":
		return Number
	case "!!bool":
		return Bool
	case "!!null":
		return Null
	default:
		return String
	}
}

// intrinsicName maps a local tag such as "!GetAtt" to its long-form key.
func intrinsicName(tag string) (string, bool) {
	if !strings.HasPrefix(tag, "!") || strings.HasPrefix(tag, "!!") || len(tag) < 2 {
		return "", false
	}
	name := tag[1:]
	switch name {
	case "Ref", "Condition":
		return name, true
	}
	return "Fn::" + name, true
}

func convertIntrinsic(fn string, n *yaml.Node, aliasDepth int) (*Node, error) {
	var arg *Node
	switch {
	case n.Kind == yaml.ScalarNode && fn == "Fn::GetAtt":
		// !GetAtt Resource.Attribute splits on the first dot only.
		res, attr, found := strings.Cut(n.Value, ".")
		if found {
			arg = NewSequence(NewString(res), NewString(attr))
		} else {
			arg = NewString(n.Value)
		}
		arg.Line = n.Line
	case n.Kind == yaml.ScalarNode:
		arg = &Node{Kind: ScalarNode, Type: String, Value: n.Value, Line: n.Line}
	default:
		plain := *n
		plain.Tag = ""
		v, err := convert(&plain, aliasDepth)
		if err != nil {
			return nil, err
		}
		arg = v
	}
	return &Node{Kind: MappingNode, Line: n.Line, Pairs: []Pair{{Key: fn, Value: arg}}}, nil
}
