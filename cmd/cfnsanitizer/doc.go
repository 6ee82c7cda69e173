// Package cfnsanitizer provides the command-line interface for the
// CloudFormation sanitizer. It wires template discovery, the rule set, the
// scan engine and the report renderers into subcommands (sanitize,
// baseline, rules, history, config) and maps outcomes to exit codes.
//
// Typical usage from a main package:
//
//	package main
//	import "github.com/redactyl/cfnsanitizer/cmd/cfnsanitizer"
//	func main() { cfnsanitizer.Execute() }
package cfnsanitizer
