// Package files finds template files on disk and manages the small
// repository files the CLI touches.
package files

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/redactyl/cfnsanitizer/internal/ignore"
)

// TemplateExts are the extensions considered templates during directory
// walks.
var TemplateExts = []string{".json", ".yaml", ".yml", ".template"}

var defaultExcludeDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	".venv":        true,
	"venv":         true,
	"__pycache__":  true,
	"coverage":     true,
	".terraform":   true,
}

// JSON and YAML files that are common in IaC repositories but never
// templates.
var defaultExcludeFileNames = map[string]bool{
	"package.json":               true,
	"package-lock.json":          true,
	"pnpm-lock.yaml":             true,
	"tsconfig.json":              true,
	"cdk.json":                   true,
	"cdk.context.json":           true,
	"manifest.json":              true,
	"tree.json":                  true,
	".cfnsanitizer.yml":          true,
	".cfnsanitizer.yaml":         true,
	".cfnsanitizer_cache.json":   true,
	"cfnsanitizer.baseline.json": true,
}

var defaultExcludeSuffixes = []string{".assets.json", ".metadata.json"}

// Options control discovery.
type Options struct {
	Include         string   // comma-separated globs; when set, walked files must match one
	Exclude         string   // comma-separated globs removed last
	DefaultExcludes bool     // skip dependency dirs and known non-template files
	SkipDirs        []string // directories never descended into, e.g. the output dir
}

// Target is one file to process.
type Target struct {
	Path     string // path as opened
	Rel      string // slash-separated path relative to its root, used for output naming
	Explicit bool   // named directly on the command line
}

// Discover expands roots into template files. Files named directly are
// always kept; directories are walked honouring extensions, globs, default
// excludes and each root's ignore file. The result is sorted by Path and
// free of duplicates.
func Discover(roots []string, opts Options) ([]Target, error) {
	includes := parseGlobsList(opts.Include)
	excludes := parseGlobsList(opts.Exclude)
	skip := make(map[string]bool, len(opts.SkipDirs))
	for _, d := range opts.SkipDirs {
		if abs, err := filepath.Abs(d); err == nil {
			skip[abs] = true
		}
	}

	seen := map[string]bool{}
	var out []Target
	add := func(t Target) {
		key := filepath.Clean(t.Path)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, t)
	}

	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("discover %s: %w", root, err)
		}
		if !info.IsDir() {
			add(Target{Path: root, Rel: explicitRel(root), Explicit: true})
			continue
		}
		ign, err := ignore.Load(filepath.Join(root, ignore.FileName))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", ignore.FileName, err)
		}
		err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			rel, _ := filepath.Rel(root, p)
			rel = filepath.ToSlash(rel)
			if d.IsDir() {
				if p == root {
					return nil
				}
				if opts.DefaultExcludes && defaultExcludeDirs[d.Name()] {
					return filepath.SkipDir
				}
				if abs, err := filepath.Abs(p); err == nil && skip[abs] {
					return filepath.SkipDir
				}
				if ign.Match(rel) {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() || !IsTemplateName(p) {
				return nil
			}
			if opts.DefaultExcludes && isDefaultFileExcluded(d.Name()) {
				return nil
			}
			if ign.Match(rel) || !allowedByGlobs(rel, includes, excludes) {
				return nil
			}
			add(Target{Path: p, Rel: rel})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", root, err)
		}
	}
	slices.SortFunc(out, func(a, b Target) int { return strings.Compare(a.Path, b.Path) })
	return out, nil
}

// IsTemplateName reports whether p has a template extension.
func IsTemplateName(p string) bool {
	return slices.Contains(TemplateExts, strings.ToLower(filepath.Ext(p)))
}

func isDefaultFileExcluded(name string) bool {
	lower := strings.ToLower(name)
	if defaultExcludeFileNames[lower] {
		return true
	}
	for _, s := range defaultExcludeSuffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	return false
}

// explicitRel names an explicitly given file relative to the working
// directory, or by its base name when it lives outside it.
func explicitRel(p string) string {
	if !filepath.IsAbs(p) {
		clean := filepath.Clean(p)
		if !strings.HasPrefix(clean, "..") {
			return filepath.ToSlash(clean)
		}
	}
	if wd, err := os.Getwd(); err == nil {
		if rel, err := filepath.Rel(wd, p); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.Base(p)
}

func allowedByGlobs(rel string, includes, excludes []string) bool {
	if len(includes) > 0 && !matchAnyGlob(rel, includes) {
		return false
	}
	return !matchAnyGlob(rel, excludes)
}

func parseGlobsList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
		if t := trimGlobPrefix(p); t != p {
			out = append(out, t)
		}
	}
	return out
}

// matchAnyGlob tries each glob against the relative path and the base name.
func matchAnyGlob(rel string, globs []string) bool {
	for _, g := range globs {
		if ok, _ := doublestar.Match(g, rel); ok {
			return true
		}
		if ok, _ := doublestar.Match(g, filepath.Base(rel)); ok {
			return true
		}
	}
	return false
}

func trimGlobPrefix(g string) string {
	s := strings.TrimPrefix(g, "./")
	for strings.HasPrefix(s, "**/") {
		s = strings.TrimPrefix(s, "**/")
	}
	return s
}
