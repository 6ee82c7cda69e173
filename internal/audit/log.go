// Package audit keeps an append-only JSONL history of sanitize runs. Records
// hold locations and rule ids only; no values or fingerprints are stored.
package audit

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"github.com/redactyl/cfnsanitizer/internal/types"
)

type RunRecord struct {
	Timestamp      time.Time        `json:"timestamp"`
	RunID          string           `json:"run_id"`
	Root           string           `json:"root"`
	RulesDigest    string           `json:"rules_digest,omitempty"`
	Documents      int              `json:"documents"`
	Failed         []string         `json:"failed,omitempty"`
	Redacted       int              `json:"redacted"`
	TotalFindings  int              `json:"total_findings"`
	NewFindings    int              `json:"new_findings"`
	BaselinedCount int              `json:"baselined_count"`
	SeverityCounts map[string]int   `json:"severity_counts"`
	RuleCounts     map[string]int   `json:"rule_counts"`
	Duration       string           `json:"duration"`
	BaselineFile   string           `json:"baseline_file,omitempty"`
	Findings       []FindingSummary `json:"findings,omitempty"`
}

type FindingSummary struct {
	Document string `json:"document"`
	Path     string `json:"path"`
	RuleID   string `json:"rule_id"`
	Severity string `json:"severity"`
}

type AuditLog struct {
	logPath string
}

// NewAuditLog places the log inside .git when root is a repository so it is
// never committed, next to the templates otherwise.
func NewAuditLog(root string) *AuditLog {
	gitDir := filepath.Join(root, ".git")
	logPath := filepath.Join(root, ".cfnsanitizer_audit.jsonl")
	if st, err := os.Stat(gitDir); err == nil && st.IsDir() {
		logPath = filepath.Join(gitDir, "cfnsanitizer_audit.jsonl")
	}
	return &AuditLog{logPath: logPath}
}

// Path returns the log file location.
func (a *AuditLog) Path() string { return a.logPath }

// LoadHistory returns all records, newest first. Unreadable lines are
// skipped.
func (a *AuditLog) LoadHistory() ([]RunRecord, error) {
	f, err := os.Open(a.logPath)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	var records []RunRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var r RunRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		records = append(records, r)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// LogRun appends record as one JSON line.
func (a *AuditLog) LogRun(record RunRecord) error {
	if record.RunID == "" {
		record.RunID = fmt.Sprintf("run_%d", record.Timestamp.UnixNano())
	}
	// owner-only: records list where secrets were found
	f, err := os.OpenFile(a.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	b, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode audit record: %w", err)
	}
	if _, err := f.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	return nil
}

// RunInput carries what NewRunRecord summarises.
type RunInput struct {
	Root         string
	RulesDigest  string
	Documents    int
	Failed       []string
	Redacted     int
	All          []types.Finding
	New          []types.Finding
	Duration     time.Duration
	BaselineFile string
}

// NewRunRecord summarises one run. Only new findings are listed.
func NewRunRecord(in RunInput) RunRecord {
	sev := map[string]int{}
	byRule := map[string]int{}
	for _, f := range in.All {
		sev[string(f.Severity)]++
		byRule[f.RuleID]++
	}
	summaries := make([]FindingSummary, 0, len(in.New))
	for _, f := range in.New {
		summaries = append(summaries, FindingSummary{
			Document: f.Document,
			Path:     f.Path,
			RuleID:   f.RuleID,
			Severity: string(f.Severity),
		})
	}
	now := time.Now().UTC()
	return RunRecord{
		Timestamp:      now,
		RunID:          fmt.Sprintf("run_%d", now.UnixNano()),
		Root:           in.Root,
		RulesDigest:    in.RulesDigest,
		Documents:      in.Documents,
		Failed:         in.Failed,
		Redacted:       in.Redacted,
		TotalFindings:  len(in.All),
		NewFindings:    len(in.New),
		BaselinedCount: len(in.All) - len(in.New),
		SeverityCounts: sev,
		RuleCounts:     byRule,
		Duration:       in.Duration.String(),
		BaselineFile:   in.BaselineFile,
		Findings:       summaries,
	}
}
