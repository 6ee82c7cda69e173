package report

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"

	"github.com/redactyl/cfnsanitizer/internal/types"
)

type PrintOptions struct {
	NoColor   bool
	Duration  time.Duration
	Documents int // templates processed
	Redacted  int // scalars replaced across all templates
	Failed    int // templates that produced no output
}

var (
	highStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	medStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	lowStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
)

// PrintTable renders findings as a table followed by a summary footer.
// Findings are expected in Collect order.
func PrintTable(w io.Writer, findings []types.Finding, opts PrintOptions) error {
	if len(findings) == 0 {
		fmt.Fprintln(w, "No secrets found ✅")
	} else {
		table := tablewriter.NewWriter(w)
		table.Header("SEVERITY", "RULE", "DOCUMENT", "PATH", "FINGERPRINT")
		for _, f := range findings {
			sev := string(f.Severity)
			if !opts.NoColor {
				sev = colorSeverity(f.Severity)
			}
			fp := f.Fingerprint
			if fp == "" {
				fp = "-"
			}
			if err := table.Append([]string{sev, f.RuleID, f.Document, displayPath(f.Path), fp}); err != nil {
				return err
			}
		}
		if err := table.Render(); err != nil {
			return err
		}
	}
	if opts.Duration > 0 || opts.Documents > 0 {
		c := CountBySeverity(findings)
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Findings: %d (high: %d, medium: %d, low: %d)\n", len(findings), c.High, c.Medium, c.Low)
		if opts.Documents > 0 {
			fmt.Fprintf(w, "Templates processed: %d\n", opts.Documents)
			fmt.Fprintf(w, "Values redacted: %d\n", opts.Redacted)
		}
		if opts.Failed > 0 {
			fmt.Fprintf(w, "Templates failed: %d\n", opts.Failed)
		}
		if opts.Duration > 0 {
			fmt.Fprintf(w, "Duration: %.2fs\n", opts.Duration.Seconds())
		}
	}
	return nil
}

// displayPath shows the root pointer as "/" so table cells are never blank.
func displayPath(p string) string {
	if p == "" {
		return "/"
	}
	return p
}

func colorSeverity(s types.Severity) string {
	switch s {
	case types.SevHigh:
		return highStyle.Render("high")
	case types.SevMed:
		return medStyle.Render("medium")
	default:
		return lowStyle.Render("low")
	}
}
