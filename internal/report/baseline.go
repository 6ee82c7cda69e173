package report

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"

	"github.com/goccy/go-json"

	"github.com/redactyl/cfnsanitizer/internal/types"
)

// Baseline is a set of accepted findings. Keys never include secret
// material, so a baseline can be committed next to the templates.
type Baseline struct {
	Items map[string]bool `json:"items"`
}

// LoadBaseline reads a baseline file. A missing file yields an empty
// baseline and the fs.ErrNotExist error so callers can decide.
func LoadBaseline(path string) (Baseline, error) {
	b := Baseline{Items: map[string]bool{}}
	raw, err := os.ReadFile(path)
	if err != nil {
		return b, err
	}
	if err := json.Unmarshal(raw, &b); err != nil {
		return Baseline{Items: map[string]bool{}}, fmt.Errorf("parse baseline %s: %w", path, err)
	}
	if b.Items == nil {
		b.Items = map[string]bool{}
	}
	return b, nil
}

// LoadBaselineOptional is LoadBaseline with a missing file treated as empty.
func LoadBaselineOptional(path string) (Baseline, error) {
	b, err := LoadBaseline(path)
	if errors.Is(err, fs.ErrNotExist) {
		return b, nil
	}
	return b, err
}

// SaveBaseline records every finding as accepted.
func SaveBaseline(path string, findings []types.Finding) error {
	b := Baseline{Items: map[string]bool{}}
	for _, f := range findings {
		b.Items[baselineKey(f)] = true
	}
	buf, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(buf, '\n'), 0o644)
}

// Keys returns the baseline keys in sorted order.
func (b Baseline) Keys() []string {
	out := make([]string, 0, len(b.Items))
	for k, ok := range b.Items {
		if ok {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}

// FilterNewFindings drops findings already present in base.
func FilterNewFindings(findings []types.Finding, base Baseline) []types.Finding {
	var out []types.Finding
	for _, f := range findings {
		if !base.Items[baselineKey(f)] {
			out = append(out, f)
		}
	}
	return out
}

func baselineKey(f types.Finding) string {
	return f.Document + "|" + f.Path + "|" + f.RuleID
}

// ShouldFail reports whether any finding reaches the failOn severity
// ("low", "medium" or "high"; anything else means "medium").
func ShouldFail(findings []types.Finding, failOn string) bool {
	level := map[string]int{"low": 1, "medium": 2, "high": 3}
	th := level[failOn]
	if th == 0 {
		th = 2
	}
	for _, f := range findings {
		if level[string(f.Severity)] >= th {
			return true
		}
	}
	return false
}
