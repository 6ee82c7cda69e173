// Package rules is the rule registry. A rule source is a YAML or JSON
// mapping of rule id to {regex?, keys?, param_name_regex?, description};
// which optional fields are present decides the rule's Kind. Sources are
// validated and compiled once, and a loaded Set is never mutated, so one Set
// can serve any number of concurrent scans.
package rules
