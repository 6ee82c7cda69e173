package document

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	yaml "gopkg.in/yaml.v3"
)

// Format selects the serialization used when writing a tree back out.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatForPath guesses the format from a file name; anything that is not
// .json is treated as YAML, the CloudFormation default.
func FormatForPath(p string) Format {
	if strings.EqualFold(filepath.Ext(p), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// ParseFormat validates a user supplied format name.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown format %q (want json|yaml)", s)
}

// Encode writes n to w in the given format.
func Encode(w io.Writer, n *Node, f Format) error {
	if f == FormatJSON {
		return EncodeJSON(w, n, "  ")
	}
	return EncodeYAML(w, n)
}

// EncodeJSON writes n as JSON keeping mapping order. indent "" produces
// compact output.
func EncodeJSON(w io.Writer, n *Node, indent string) error {
	bw := bufio.NewWriter(w)
	if err := writeJSON(bw, n, indent, 0); err != nil {
		return err
	}
	if indent != "" {
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// MarshalJSON lets a tree be embedded in other JSON payloads.
func (n *Node) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	if err := EncodeJSON(&b, n, ""); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

func writeJSON(w *bufio.Writer, n *Node, indent string, depth int) error {
	if n == nil {
		_, err := w.WriteString("null")
		return err
	}
	newline := func(d int) {
		if indent == "" {
			return
		}
		w.WriteByte('\n')
		w.WriteString(strings.Repeat(indent, d))
	}
	switch n.Kind {
	case ScalarNode:
		_, err := w.WriteString(jsonScalar(n))
		return err
	case MappingNode:
		if len(n.Pairs) == 0 {
			_, err := w.WriteString("{}")
			return err
		}
		w.WriteByte('{')
		for i, p := range n.Pairs {
			if i > 0 {
				w.WriteByte(',')
			}
			newline(depth + 1)
			w.WriteString(quoteJSON(p.Key))
			w.WriteByte(':')
			if indent != "" {
				w.WriteByte(' ')
			}
			if err := writeJSON(w, p.Value, indent, depth+1); err != nil {
				return err
			}
		}
		newline(depth)
		return w.WriteByte('}')
	case SequenceNode:
		if len(n.Items) == 0 {
			_, err := w.WriteString("[]")
			return err
		}
		w.WriteByte('[')
		for i, it := range n.Items {
			if i > 0 {
				w.WriteByte(',')
			}
			newline(depth + 1)
			if err := writeJSON(w, it, indent, depth+1); err != nil {
				return err
			}
		}
		newline(depth)
		return w.WriteByte(']')
	}
	return fmt.Errorf("%w: node kind %v", ErrUnsupported, n.Kind)
}

var reJSONNumber = regexp.MustCompile(`^-?(0|[1-9][0-9]*)(\.[0-9]+)?([eE][+-]?[0-9]+)?$`)

func jsonScalar(n *Node) string {
	switch n.Type {
	case Null:
		return "null"
	case Bool:
		if b, err := strconv.ParseBool(strings.ToLower(n.Value)); err == nil {
			return strconv.FormatBool(b)
		}
	case Number:
		if reJSONNumber.MatchString(n.Value) {
			return n.Value
		}
		// YAML spellings such as 0x1F, 0o17 or 1_000 are normalised.
		if i, err := strconv.ParseInt(n.Value, 0, 64); err == nil {
			return strconv.FormatInt(i, 10)
		}
		if f, err := strconv.ParseFloat(strings.ReplaceAll(n.Value, "_", ""), 64); err == nil {
			if s := strconv.FormatFloat(f, 'g', -1, 64); reJSONNumber.MatchString(s) {
				return s
			}
		}
	}
	return quoteJSON(n.Value)
}

// quoteJSON renders s as a JSON string without HTML escaping, so
// placeholders keep their angle brackets.
func quoteJSON(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return strconv.Quote(s)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// EncodeYAML writes n as a YAML document with two-space indentation.
func EncodeYAML(w io.Writer, n *Node) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(toYAML(n)); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

func toYAML(n *Node) *yaml.Node {
	switch n.Kind {
	case MappingNode:
		out := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, p := range n.Pairs {
			out.Content = append(out.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: p.Key},
				toYAML(p.Value))
		}
		return out
	case SequenceNode:
		out := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, it := range n.Items {
			out.Content = append(out.Content, toYAML(it))
		}
		return out
	}
	out := &yaml.Node{Kind: yaml.ScalarNode, Value: n.Value}
	switch n.Type {
	case Number:
		out.Tag = "!!int"
		if strings.ContainsAny(n.Value, ".eE") && !strings.HasPrefix(n.Value, "0x") {
			out.Tag = "!!float"
		}
	case Bool:
		out.Tag = "!!bool"
	case Null:
		out.Tag = "!!null"
	default:
		out.Tag = "!!str"
		if strings.Contains(n.Value, "\n") {
			out.Style = yaml.LiteralStyle
		}
	}
	return out
}
