// Package cache remembers, per template, the content hash and outcome of
// the last sanitize run so unchanged templates with intact outputs can be
// skipped.
package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"

	"github.com/redactyl/cfnsanitizer/internal/document"
	"github.com/redactyl/cfnsanitizer/internal/redact"
	"github.com/redactyl/cfnsanitizer/internal/types"
)

// FileName is the cache file written under .git or the working root.
const FileName = "cfnsanitizer_cache.json"

const version = 2

// Finding is a finding plus the fields its JSON form omits, so restored
// findings sort and compare like fresh ones.
type Finding struct {
	Finding   types.Finding `json:"finding"`
	Location  document.Path `json:"location"`
	RuleOrder int           `json:"rule_order"`
}

// Entry is the cached outcome for one template.
type Entry struct {
	Hash       string       `json:"hash"`        // input content plus run settings
	Output     string       `json:"output"`      // sanitized file written for it
	OutputHash string       `json:"output_hash"` // content of Output when written
	Findings   []Finding    `json:"findings"`
	Stats      redact.Stats `json:"stats"`
}

// DB maps document names to entries.
type DB struct {
	Version int              `json:"version"`
	Entries map[string]Entry `json:"entries"`
}

// New returns an empty cache.
func New() *DB {
	return &DB{Version: version, Entries: map[string]Entry{}}
}

func defaultPath(root string) string {
	// under .git so the cache is never committed
	gitDir := filepath.Join(root, ".git")
	if st, err := os.Stat(gitDir); err == nil && st.IsDir() {
		return filepath.Join(gitDir, FileName)
	}
	return filepath.Join(root, "."+FileName)
}

// Path returns where the cache for root lives.
func Path(root string) string { return defaultPath(root) }

// Load reads the cache for root. A missing, unreadable or outdated cache
// yields an empty DB; the error is only informative.
func Load(root string) (*DB, error) {
	b, err := os.ReadFile(defaultPath(root))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return New(), nil
		}
		return New(), err
	}
	db := New()
	if err := json.Unmarshal(b, db); err != nil {
		return New(), fmt.Errorf("parse cache: %w", err)
	}
	if db.Version != version || db.Entries == nil {
		return New(), nil
	}
	return db, nil
}

// Save writes db for root.
func (db *DB) Save(root string) error {
	b, err := json.Marshal(db)
	if err != nil {
		return err
	}
	return os.WriteFile(defaultPath(root), b, 0o600)
}

// Key hashes content together with salt, which should capture every
// setting that changes the outcome (rules, options, output location).
func Key(content []byte, salt string) string {
	d := xxhash.New()
	_, _ = d.Write(content)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(salt)
	return fmt.Sprintf("%016x", d.Sum64())
}

// Lookup returns the entry for name when its hash matches and its output
// file still has the content that was written.
func (db *DB) Lookup(name, hash string) (Entry, bool) {
	e, ok := db.Entries[name]
	if !ok || e.Hash != hash || e.Output == "" {
		return Entry{}, false
	}
	b, err := os.ReadFile(e.Output)
	if err != nil || Key(b, "") != e.OutputHash {
		return Entry{}, false
	}
	return e, true
}

// Put records the outcome for name.
func (db *DB) Put(name string, e Entry) {
	db.Entries[name] = e
}

// NewEntry builds an entry from a processed template.
func NewEntry(hash, output string, outputContent []byte, findings []types.Finding, stats redact.Stats) Entry {
	e := Entry{
		Hash:       hash,
		Output:     output,
		OutputHash: Key(outputContent, ""),
		Stats:      stats,
		Findings:   make([]Finding, 0, len(findings)),
	}
	for _, f := range findings {
		e.Findings = append(e.Findings, Finding{Finding: f, Location: f.Location, RuleOrder: f.RuleOrder})
	}
	return e
}

// Restore returns the cached findings with their location and rule order.
func (e Entry) Restore() []types.Finding {
	out := make([]types.Finding, 0, len(e.Findings))
	for _, c := range e.Findings {
		f := c.Finding
		f.Location = c.Location
		f.RuleOrder = c.RuleOrder
		out = append(out, f)
	}
	return out
}
