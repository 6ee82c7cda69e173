// Package cfn knows about CloudFormation template structure: which top-level
// sections hold named declarations, and which elements the CDK adds during
// synthesis that carry no meaning for downstream analysis.
package cfn

import (
	"strings"

	"github.com/redactyl/cfnsanitizer/internal/document"
)

const (
	cdkMetadataResourceType = "AWS::CDK::Metadata"
	cdkBootstrapParam       = "BootstrapVersion"
	cdkMetadataCondition    = "CDKMetadataAvailable"
	cdkBootstrapRule        = "CheckBootstrapVersion"
	cdkPathMetadataKey      = "aws:cdk:path"
	cdkSkipMarker           = "[cdk:skip]"
)

// Sections lists the standard top-level template sections in the order
// CloudFormation documents them.
var Sections = []string{
	"AWSTemplateFormatVersion",
	"Description",
	"Metadata",
	"Parameters",
	"Mappings",
	"Conditions",
	"Transform",
	"Resources",
	"Outputs",
}

var declarationSections = map[string]bool{
	"Parameters": true,
	"Resources":  true,
	"Outputs":    true,
	"Mappings":   true,
	"Conditions": true,
	"Rules":      true,
}

// IsDeclarationSection reports whether the top-level key holds declarations
// keyed by logical name.
func IsDeclarationSection(key string) bool {
	return declarationSections[key]
}

// CleanOptions tunes Clean.
type CleanOptions struct {
	// KeepResourceMetadata keeps aws:cdk:path entries in resource Metadata.
	KeepResourceMetadata bool
}

// Clean returns a copy of a synthesized template without CDK-only elements:
// the CDK metadata resource and anything conditioned on it, the bootstrap
// version parameter and rule, parameters marked [cdk:skip], and aws:cdk:path
// resource metadata. Only standard sections are kept and empty ones are
// dropped. The input is not modified. Non-mapping roots are returned as is.
func Clean(root *document.Node, opts CleanOptions) *document.Node {
	if root == nil || root.Kind != document.MappingNode {
		return root
	}
	out := document.NewMapping()
	out.Line = root.Line
	for _, name := range Sections {
		v, ok := root.Get(name)
		if !ok {
			continue
		}
		switch name {
		case "Resources":
			v = cleanResources(v, opts)
		case "Parameters":
			v = cleanParameters(v)
		case "Conditions":
			v = cleanConditions(v)
		default:
			v = v.Clone()
		}
		if isEmpty(v) {
			continue
		}
		out.Pairs = append(out.Pairs, document.Pair{Key: name, Value: v})
	}
	return out
}

// IsTemplate reports whether root looks like a CloudFormation template: a
// mapping with a Resources mapping or a format version marker. Directory
// walks use it to skip unrelated JSON and YAML files.
func IsTemplate(root *document.Node) bool {
	if root == nil || root.Kind != document.MappingNode {
		return false
	}
	if _, ok := root.Get("AWSTemplateFormatVersion"); ok {
		return true
	}
	res, ok := root.Get("Resources")
	return ok && res.Kind == document.MappingNode
}

// IsCDKTemplate reports whether the template carries CDK synthesis markers.
func IsCDKTemplate(root *document.Node) bool {
	resources, _ := root.Get("Resources")
	if resources != nil && resources.Kind == document.MappingNode {
		for _, p := range resources.Pairs {
			if p.Value.GetString("Type") == cdkMetadataResourceType {
				return true
			}
		}
	}
	if params, ok := root.Get("Parameters"); ok {
		if _, ok := params.Get(cdkBootstrapParam); ok {
			return true
		}
	}
	if rules, ok := root.Get("Rules"); ok {
		if _, ok := rules.Get(cdkBootstrapRule); ok {
			return true
		}
	}
	return false
}

func cleanResources(resources *document.Node, opts CleanOptions) *document.Node {
	if resources.Kind != document.MappingNode {
		return resources.Clone()
	}
	out := &document.Node{Kind: document.MappingNode, Line: resources.Line}
	for _, p := range resources.Pairs {
		def := p.Value
		if def.GetString("Type") == cdkMetadataResourceType {
			continue
		}
		if def.GetString("Condition") == cdkMetadataCondition {
			continue
		}
		def = def.Clone()
		if !opts.KeepResourceMetadata {
			stripPathMetadata(def)
		}
		out.Pairs = append(out.Pairs, document.Pair{Key: p.Key, Value: def})
	}
	return out
}

func stripPathMetadata(def *document.Node) {
	if def.Kind != document.MappingNode {
		return
	}
	for i, p := range def.Pairs {
		if p.Key != "Metadata" || p.Value.Kind != document.MappingNode {
			continue
		}
		meta := p.Value
		kept := meta.Pairs[:0]
		for _, m := range meta.Pairs {
			if m.Key != cdkPathMetadataKey {
				kept = append(kept, m)
			}
		}
		meta.Pairs = kept
		if len(meta.Pairs) == 0 {
			def.Pairs = append(def.Pairs[:i], def.Pairs[i+1:]...)
		}
		return
	}
}

func cleanParameters(params *document.Node) *document.Node {
	if params.Kind != document.MappingNode {
		return params.Clone()
	}
	out := &document.Node{Kind: document.MappingNode, Line: params.Line}
	for _, p := range params.Pairs {
		if p.Key == cdkBootstrapParam {
			continue
		}
		if strings.Contains(p.Value.GetString("Description"), cdkSkipMarker) {
			continue
		}
		out.Pairs = append(out.Pairs, document.Pair{Key: p.Key, Value: p.Value.Clone()})
	}
	return out
}

func cleanConditions(conds *document.Node) *document.Node {
	if conds.Kind != document.MappingNode {
		return conds.Clone()
	}
	out := &document.Node{Kind: document.MappingNode, Line: conds.Line}
	for _, p := range conds.Pairs {
		if p.Key == cdkMetadataCondition {
			continue
		}
		out.Pairs = append(out.Pairs, document.Pair{Key: p.Key, Value: p.Value.Clone()})
	}
	return out
}

// isEmpty mirrors truthiness of a section value: empty containers, empty
// strings and nulls are dropped.
func isEmpty(n *document.Node) bool {
	switch n.Kind {
	case document.MappingNode, document.SequenceNode:
		return n.Len() == 0
	case document.ScalarNode:
		return n.Type == document.Null || (n.Type == document.String && n.Value == "")
	}
	return true
}
