package report

import (
	"io"

	"github.com/goccy/go-json"

	"github.com/redactyl/cfnsanitizer/internal/types"
)

// Output is the machine-readable summary of a sanitize run.
type Output struct {
	RulesDigest string          `json:"rules_digest,omitempty"`
	Documents   []DocumentEntry `json:"documents"`
	Findings    []types.Finding `json:"findings"`
}

// DocumentEntry describes what happened to one template.
type DocumentEntry struct {
	Name     string `json:"name"`
	Output   string `json:"output,omitempty"`
	Findings int    `json:"findings"`
	Redacted int    `json:"redacted"`
	Error    string `json:"error,omitempty"`
}

// WriteJSON writes out as indented JSON. Findings never carry raw values so
// the report is safe to share.
func WriteJSON(w io.Writer, out Output) error {
	if out.Findings == nil {
		out.Findings = []types.Finding{}
	}
	if out.Documents == nil {
		out.Documents = []DocumentEntry{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(out)
}
