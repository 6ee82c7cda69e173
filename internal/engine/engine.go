package engine

import (
	"context"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/redactyl/cfnsanitizer/internal/cfn"
	"github.com/redactyl/cfnsanitizer/internal/document"
	"github.com/redactyl/cfnsanitizer/internal/redact"
	"github.com/redactyl/cfnsanitizer/internal/report"
	"github.com/redactyl/cfnsanitizer/internal/rules"
	"github.com/redactyl/cfnsanitizer/internal/types"
	"github.com/redactyl/cfnsanitizer/internal/walk"
)

// Config controls how documents are processed.
type Config struct {
	Threads         int  // documents processed concurrently; <= 0 means GOMAXPROCS
	CleanCDK        bool // strip CDK bookkeeping before matching
	KeepCDKMetadata bool // with CleanCDK, keep aws:cdk:path resource metadata
	Logger          zerolog.Logger
}

// Document is one parsed template.
type Document struct {
	Name string
	Root *document.Node
}

// Result is the outcome for one document. When Err is set Sanitized is nil
// and no output must be written for the document.
type Result struct {
	Name      string
	Findings  []types.Finding
	Sanitized *document.Node
	Stats     redact.Stats
	Cleaned   bool // CDK cleanup was applied
	Duration  time.Duration
	Err       error
}

// Engine is safe for concurrent use; it holds only immutable state.
type Engine struct {
	cfg     Config
	set     *rules.Set
	matcher *Matcher
	log     zerolog.Logger
}

// New returns an engine over set.
func New(set *rules.Set, cfg Config) *Engine {
	log := cfg.Logger.With().Str("component", "engine").Logger()
	return &Engine{cfg: cfg, set: set, matcher: NewMatcher(set, log), log: log}
}

// Rules returns the rule set the engine evaluates.
func (e *Engine) Rules() *rules.Set { return e.set }

// ScanDocument finds and redacts secrets in one document. The input tree is
// never modified.
func (e *Engine) ScanDocument(doc Document) (res Result) {
	start := time.Now()
	res.Name = doc.Name
	defer func() { res.Duration = time.Since(start) }()

	root := doc.Root
	if e.cfg.CleanCDK && cfn.IsCDKTemplate(root) {
		root = cfn.Clean(root, cfn.CleanOptions{KeepResourceMetadata: e.cfg.KeepCDKMetadata})
		res.Cleaned = true
		e.log.Debug().Str("document", doc.Name).Msg("removed CDK metadata")
	}

	findings := e.matcher.Evaluate(walk.Walk(root))
	for i := range findings {
		findings[i].Document = doc.Name
	}
	findings = report.Collect(findings)

	out, stats, err := redact.Redact(root, findings)
	if err != nil {
		e.log.Error().Err(err).Str("document", doc.Name).Msg("redaction failed; no output")
		res.Err = err
		res.Findings = findings
		return res
	}
	res.Findings = findings
	res.Sanitized = out
	res.Stats = stats
	e.log.Debug().
		Str("document", doc.Name).
		Int("findings", len(findings)).
		Int("redacted", stats.Redacted).
		Msg("document processed")
	return res
}

// ScanAll processes docs concurrently. Results keep the order of docs, and
// a failure in one document never affects another. The returned error is
// only set when ctx is cancelled; documents not started by then carry
// ctx.Err() in their result.
func (e *Engine) ScanAll(ctx context.Context, docs []Document) ([]Result, error) {
	results := make([]Result, len(docs))
	threads := e.cfg.Threads
	if threads <= 0 {
		threads = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(threads)
	for i, doc := range docs {
		if err := gctx.Err(); err != nil {
			for j := i; j < len(docs); j++ {
				results[j] = Result{Name: docs[j].Name, Err: err}
			}
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = Result{Name: doc.Name, Err: err}
				return nil
			}
			results[i] = e.ScanDocument(doc)
			return nil
		})
	}
	_ = g.Wait()
	return results, ctx.Err()
}

// Findings flattens the findings of all successfully processed results in
// Collect order. Failed documents produce no output and report nothing.
func Findings(results []Result) []types.Finding {
	var all []types.Finding
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		all = append(all, r.Findings...)
	}
	return report.Collect(all)
}
