package report

import (
	"cmp"
	"slices"

	"github.com/redactyl/cfnsanitizer/internal/document"
	"github.com/redactyl/cfnsanitizer/internal/types"
)

// Collect deduplicates findings on (document, path, rule) and orders them by
// document, then traversal order of the path, then rule declaration order.
// The result does not depend on the order of the input.
func Collect(findings []types.Finding) []types.Finding {
	seen := make(map[string]struct{}, len(findings))
	out := make([]types.Finding, 0, len(findings))
	for _, f := range findings {
		k := dedupeKey(f)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, f)
	}
	slices.SortFunc(out, compareFindings)
	return out
}

func dedupeKey(f types.Finding) string {
	return f.Document + "\x00" + f.Path + "\x00" + f.RuleID
}

func compareFindings(a, b types.Finding) int {
	if c := cmp.Compare(a.Document, b.Document); c != 0 {
		return c
	}
	if c := document.ComparePositions(a.Location.Positions(), b.Location.Positions()); c != 0 {
		return c
	}
	// same positions can only differ in key text when the findings came
	// from different trees; fall back to the rendered path
	if c := cmp.Compare(a.Path, b.Path); c != 0 {
		return c
	}
	if c := cmp.Compare(a.RuleOrder, b.RuleOrder); c != 0 {
		return c
	}
	return cmp.Compare(a.RuleID, b.RuleID)
}

// Counts tallies findings per severity.
type Counts struct {
	High, Medium, Low int
}

// CountBySeverity tallies findings per severity.
func CountBySeverity(findings []types.Finding) Counts {
	var c Counts
	for _, f := range findings {
		switch f.Severity {
		case types.SevHigh:
			c.High++
		case types.SevMed:
			c.Medium++
		default:
			c.Low++
		}
	}
	return c
}
