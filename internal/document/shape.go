package document

// ShapeDiff returns the paths at which a and b differ in shape: node kind,
// scalar type, mapping keys or sequence length. Scalar values are not
// compared. Differences below a reported path are not descended into.
func ShapeDiff(a, b *Node) []Path {
	var out []Path
	shapeDiff(a, b, nil, &out)
	return out
}

func shapeDiff(a, b *Node, at Path, out *[]Path) {
	if a == nil || b == nil {
		if a != b {
			*out = append(*out, at)
		}
		return
	}
	if a.Kind != b.Kind {
		*out = append(*out, at)
		return
	}
	switch a.Kind {
	case ScalarNode:
		if a.Type != b.Type {
			*out = append(*out, at)
		}
	case MappingNode:
		if len(a.Pairs) != len(b.Pairs) {
			*out = append(*out, at)
			return
		}
		for i := range a.Pairs {
			if a.Pairs[i].Key != b.Pairs[i].Key {
				*out = append(*out, at)
				return
			}
		}
		for i, p := range a.Pairs {
			shapeDiff(p.Value, b.Pairs[i].Value, at.Child(Segment{Key: p.Key, Index: i}), out)
		}
	case SequenceNode:
		if len(a.Items) != len(b.Items) {
			*out = append(*out, at)
			return
		}
		for i := range a.Items {
			shapeDiff(a.Items[i], b.Items[i], at.Child(Segment{Index: i, Seq: true}), out)
		}
	}
}
