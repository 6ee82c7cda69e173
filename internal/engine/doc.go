// Package engine runs rule sets over parsed templates. For each document it
// walks the tree, evaluates every rule at every node, collects the findings
// and produces a redacted copy. This package is internal; external consumers
// should use the stable facade in pkg/core.
package engine
