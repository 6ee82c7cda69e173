package cfnsanitizer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/redactyl/cfnsanitizer/internal/audit"
	"github.com/redactyl/cfnsanitizer/internal/cache"
	"github.com/redactyl/cfnsanitizer/internal/cfn"
	"github.com/redactyl/cfnsanitizer/internal/config"
	"github.com/redactyl/cfnsanitizer/internal/document"
	"github.com/redactyl/cfnsanitizer/internal/engine"
	"github.com/redactyl/cfnsanitizer/internal/files"
	"github.com/redactyl/cfnsanitizer/internal/report"
	"github.com/redactyl/cfnsanitizer/internal/rules"
	"github.com/redactyl/cfnsanitizer/internal/types"
)

const (
	defaultOutDir       = "sanitized_templates"
	defaultBaselineFile = "cfnsanitizer.baseline.json"
	defaultFailOn       = "medium"
)

var (
	flagOut             string
	flagFormat          string
	flagInclude         string
	flagExclude         string
	flagEnable          string
	flagDisable         string
	flagCleanCDK        bool
	flagKeepCDKMetadata bool
	flagBaseline        string
	flagDefaultExcludes bool
	flagDryRun          bool
	flagGitignoreOutput bool
	flagNoAudit         bool
	flagNoCache         bool
)

func init() {
	cmd := &cobra.Command{
		Use:   "sanitize [paths...]",
		Short: "Redact secrets from templates and write sanitized copies",
		Long: "Sanitize discovers CloudFormation templates under the given paths (the current\n" +
			"directory by default), replaces every detected secret with a placeholder and\n" +
			"writes the sanitized templates to the output directory.",
		RunE: runSanitize,
	}
	rootCmd.AddCommand(cmd)

	addScanFlags(cmd)
	cmd.Flags().StringVarP(&flagOut, "out", "o", "", "output directory (default "+defaultOutDir+")")
	cmd.Flags().StringVar(&flagFormat, "format", "", "output format: json|yaml (default: same as input)")
	cmd.Flags().StringVar(&flagBaseline, "baseline", "", "baseline file of accepted findings (default "+defaultBaselineFile+")")
	cmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "report findings without writing sanitized templates")
	cmd.Flags().BoolVar(&flagGitignoreOutput, "gitignore-output", false, "add the output directory to .gitignore")
	cmd.Flags().BoolVar(&flagNoAudit, "no-audit-log", false, "do not record this run in the audit log")
	cmd.Flags().BoolVar(&flagNoCache, "no-cache", false, "rescan every template even when it and its output are unchanged")
}

// addScanFlags registers the flags shared by every command that scans.
func addScanFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagInclude, "include", "", "comma-separated include globs")
	cmd.Flags().StringVar(&flagExclude, "exclude", "", "comma-separated exclude globs")
	cmd.Flags().StringVar(&flagEnable, "enable", "", "only run these rules (comma-separated IDs)")
	cmd.Flags().StringVar(&flagDisable, "disable", "", "disable these rules (comma-separated IDs)")
	cmd.Flags().BoolVar(&flagCleanCDK, "clean-cdk", false, "strip CDK bookkeeping from synthesized templates")
	cmd.Flags().BoolVar(&flagKeepCDKMetadata, "keep-cdk-metadata", false, "with --clean-cdk, keep aws:cdk:path resource metadata")
	cmd.Flags().BoolVar(&flagDefaultExcludes, "default-excludes", true, "skip dependency dirs and CDK assembly files")
}

// docRun tracks one discovered file through the pipeline.
type docRun struct {
	target    files.Target
	name      string
	format    document.Format
	dst       string          // output file reserved for this template
	dstFormat document.Format // format written to dst
	result    engine.Result
	output    string
	hash      string // content hash salted with run settings
	cached    bool   // result restored from the cache; output already on disk
}

// scanOptions carry what scanPaths needs besides the file config.
type scanOptions struct {
	outDir    string
	outFormat document.Format
	cache     *cache.DB // nil disables reuse
}

func runSanitize(cmd *cobra.Command, args []string) error {
	start := time.Now()
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	noColor := pickBool(flagNoColor, cfg.NoColor, nil)
	log := setupLogger(stderr, noColor)

	set, err := loadRuleSet(cfg, flagEnable, flagDisable)
	if err != nil {
		return err
	}
	outDir := pickString(flagOut, cfg.OutputDir, nil)
	if outDir == "" {
		outDir = defaultOutDir
	}
	var outFormat document.Format
	if f := pickString(flagFormat, cfg.Format, nil); f != "" && f != "keep" {
		if outFormat, err = document.ParseFormat(f); err != nil {
			return err
		}
	}

	opts := scanOptions{outDir: outDir, outFormat: outFormat}
	if !flagNoCache {
		db, err := cache.Load(".")
		if err != nil {
			log.Debug().Err(err).Msg("ignoring unreadable cache")
		}
		opts.cache = db
	}
	runs, err := scanPaths(cmd.Context(), args, cfg, set, opts, log)
	if err != nil {
		return err
	}

	if !flagDryRun {
		written, err := writeOutputs(runs, opts, log)
		if err != nil {
			return err
		}
		if opts.cache != nil {
			if err := written.Save("."); err != nil {
				log.Warn().Err(err).Msg("could not write cache")
			}
		}
		if pickBool(flagGitignoreOutput, nil, nil) {
			if pattern, ok := files.IgnorePattern(".", outDir); ok {
				if added, err := files.AppendIgnore(".", pattern); err != nil {
					log.Warn().Err(err).Msg("could not update .gitignore")
				} else if added {
					log.Info().Str("pattern", pattern).Msg("added output directory to .gitignore")
				}
			}
		}
	}

	results := make([]engine.Result, len(runs))
	for i, r := range runs {
		results[i] = r.result
	}
	all := engine.Findings(results)

	baselinePath := pickString(flagBaseline, cfg.Baseline, nil)
	if baselinePath == "" {
		baselinePath = defaultBaselineFile
	}
	base, err := report.LoadBaselineOptional(baselinePath)
	if err != nil {
		return err
	}
	newFindings := report.FilterNewFindings(all, base)
	if newFindings == nil {
		newFindings = []types.Finding{}
	}

	var failed []string
	redacted := 0
	for _, r := range runs {
		if r.result.Err != nil {
			failed = append(failed, r.name)
			continue
		}
		redacted += r.result.Stats.Redacted
	}
	elapsed := time.Since(start)

	if !flagNoAudit {
		rec := audit.NewRunRecord(audit.RunInput{
			Root:         ".",
			RulesDigest:  set.Digest(),
			Documents:    len(runs),
			Failed:       failed,
			Redacted:     redacted,
			All:          all,
			New:          newFindings,
			Duration:     elapsed,
			BaselineFile: baselinePath,
		})
		if err := audit.NewAuditLog(".").LogRun(rec); err != nil {
			log.Warn().Err(err).Msg("could not write audit log")
		}
	}

	switch {
	case flagSARIF:
		props := map[string]any{"rulesDigest": set.Digest(), "templates": len(runs)}
		if err := report.WriteSARIF(stdout, newFindings, version, props); err != nil {
			return fmt.Errorf("sarif error: %w", err)
		}
	case flagJSON:
		if err := report.WriteJSON(stdout, jsonOutput(set, runs, newFindings)); err != nil {
			return err
		}
	default:
		printOpts := report.PrintOptions{
			NoColor:   noColor || !isTerminal(stdout),
			Duration:  elapsed,
			Documents: len(runs),
			Redacted:  redacted,
			Failed:    len(failed),
		}
		if err := report.PrintTable(stdout, newFindings, printOpts); err != nil {
			return err
		}
		if !flagDryRun && len(runs) > len(failed) {
			fmt.Fprintf(stdout, "Sanitized templates written to %s\n", outDir)
		}
	}
	printFailures(stderr, runs)

	if len(failed) > 0 {
		return fmt.Errorf("%d template(s) could not be sanitized", len(failed))
	}
	failOn := pickString(flagFailOn, cfg.FailOn, nil)
	if failOn == "" {
		failOn = defaultFailOn
	}
	if report.ShouldFail(newFindings, failOn) {
		return &exitError{code: 1}
	}
	return nil
}

// scanPaths discovers, decodes and scans every template under roots.
// Decode failures become failed results; walked files that are valid
// JSON/YAML but not templates are skipped. Templates whose cache entry is
// still valid are restored instead of scanned.
func scanPaths(ctx context.Context, roots []string, cfg config.FileConfig, set *rules.Set, opts scanOptions, log zerolog.Logger) ([]docRun, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(roots) == 0 {
		roots = []string{"."}
	}
	targets, err := files.Discover(roots, files.Options{
		Include:         pickString(flagInclude, cfg.Include, nil),
		Exclude:         pickString(flagExclude, cfg.Exclude, nil),
		DefaultExcludes: flagDefaultExcludes,
		SkipDirs:        []string{opts.outDir},
	})
	if err != nil {
		return nil, err
	}
	log.Info().Int("files", len(targets)).Int("rules", set.Len()).Msg("scanning")

	runs := make([]docRun, 0, len(targets))
	var (
		docs   []engine.Document
		docIdx []int
	)
	ecfg := engine.Config{
		Threads:         pickInt(flagThreads, cfg.Threads, nil),
		CleanCDK:        pickBool(flagCleanCDK, cfg.CleanCDK, nil),
		KeepCDKMetadata: pickBool(flagKeepCDKMetadata, cfg.KeepCDKMetadata, nil),
		Logger:          log,
	}
	salt := cacheSalt(set, ecfg, opts)

	names, outputs := map[string]bool{}, map[string]bool{}
	for _, t := range targets {
		name := uniqueName(t.Rel, names)
		run := docRun{target: t, name: name, format: document.FormatForPath(t.Path)}
		// t.yaml and t.json must not share an output once --format rewrites the extension
		outRel, outFormat := outputPath(name, run.format, opts.outFormat)
		outRel = uniqueName(outRel, outputs)
		run.dst = filepath.Join(opts.outDir, filepath.FromSlash(outRel))
		run.dstFormat = outFormat
		b, err := os.ReadFile(t.Path)
		if err != nil {
			run.result = engine.Result{Name: name, Err: err}
			runs = append(runs, run)
			continue
		}
		run.hash = cache.Key(b, salt)
		if opts.cache != nil {
			if e, ok := opts.cache.Lookup(name, run.hash); ok && e.Output == run.dst {
				run.result = engine.Result{Name: name, Findings: e.Restore(), Stats: e.Stats}
				run.output = e.Output
				run.cached = true
				runs = append(runs, run)
				log.Debug().Str("document", name).Msg("unchanged; reusing cached result")
				continue
			}
		}
		root, err := document.Decode(b)
		if err != nil {
			run.result = engine.Result{Name: name, Err: fmt.Errorf("decode: %w", err)}
			runs = append(runs, run)
			continue
		}
		if !t.Explicit && !cfn.IsTemplate(root) {
			log.Debug().Str("file", t.Path).Msg("not a CloudFormation template; skipped")
			delete(names, name)
			delete(outputs, outRel)
			continue
		}
		docIdx = append(docIdx, len(runs))
		docs = append(docs, engine.Document{Name: name, Root: root})
		runs = append(runs, run)
	}

	eng := engine.New(set, ecfg)
	results, err := eng.ScanAll(ctx, docs)
	if err != nil {
		return nil, err
	}
	for i, r := range results {
		runs[docIdx[i]].result = r
	}
	return runs, nil
}

// uniqueName returns rel, or rel with the first free numeric suffix when
// the name is already taken, and marks the result as used.
func uniqueName(rel string, used map[string]bool) string {
	name := rel
	ext := path.Ext(rel)
	for n := 2; used[name]; n++ {
		name = fmt.Sprintf("%s~%d%s", strings.TrimSuffix(rel, ext), n, ext)
	}
	used[name] = true
	return name
}

// cacheSalt captures every setting that changes what a template's output
// looks like, so a cache entry is only reused under identical settings.
func cacheSalt(set *rules.Set, ecfg engine.Config, opts scanOptions) string {
	return strings.Join([]string{
		version,
		set.Digest(),
		strings.Join(set.IDs(), ","),
		fmt.Sprint(ecfg.CleanCDK, ecfg.KeepCDKMetadata),
		string(opts.outFormat),
		filepath.Clean(opts.outDir),
	}, "\x00")
}

// outputPath returns the slash-separated name a template is written under,
// relative to the output directory. A non-empty want overrides the input
// format and the extension.
func outputPath(name string, f, want document.Format) (string, document.Format) {
	if want == "" || want == f {
		return name, f
	}
	return strings.TrimSuffix(name, path.Ext(name)) + "." + string(want), want
}

// writeOutputs encodes every freshly scanned result and returns the cache
// describing all outputs now on disk.
func writeOutputs(runs []docRun, opts scanOptions, log zerolog.Logger) (*cache.DB, error) {
	next := cache.New()
	for i := range runs {
		r := &runs[i]
		if r.cached {
			if e, ok := opts.cache.Entries[r.name]; ok {
				next.Put(r.name, e)
			}
			continue
		}
		if r.result.Err != nil || r.result.Sanitized == nil {
			continue
		}
		dst := r.dst
		b, err := writeDocument(dst, r.result.Sanitized, r.dstFormat)
		if err != nil {
			return nil, fmt.Errorf("write %s: %w", dst, err)
		}
		r.output = dst
		next.Put(r.name, cache.NewEntry(r.hash, dst, b, r.result.Findings, r.result.Stats))
		log.Debug().Str("document", r.name).Str("output", dst).Msg("sanitized template written")
	}
	return next, nil
}

func writeDocument(dst string, n *document.Node, f document.Format) ([]byte, error) {
	var buf bytes.Buffer
	if err := document.Encode(&buf, n, f); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(dst, buf.Bytes(), 0o644); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func jsonOutput(set *rules.Set, runs []docRun, findings []types.Finding) report.Output {
	out := report.Output{RulesDigest: set.Digest(), Findings: findings}
	for _, r := range runs {
		e := report.DocumentEntry{
			Name:     r.name,
			Output:   filepath.ToSlash(r.output),
			Findings: len(r.result.Findings),
			Redacted: r.result.Stats.Redacted,
		}
		if r.result.Err != nil {
			e.Error = r.result.Err.Error()
			e.Findings = 0
		}
		out.Documents = append(out.Documents, e)
	}
	return out
}

func printFailures(w io.Writer, runs []docRun) {
	for _, r := range runs {
		if r.result.Err != nil {
			fmt.Fprintf(w, "failed: %s: %v\n", r.name, r.result.Err)
		}
	}
}
