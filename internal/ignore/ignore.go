// Package ignore reads .cfnsanitizerignore files: one glob per line, '#'
// comments, a trailing '/' for directories. Patterns without a '/' match the
// base name at any depth.
package ignore

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// FileName is the ignore file looked up in each discovery root.
const FileName = ".cfnsanitizerignore"

// Matcher reports whether a slash-separated relative path is ignored. The
// zero value ignores nothing.
type Matcher struct {
	patterns []pattern
}

type pattern struct {
	glob string
	dir  bool // pattern ended in '/'
	base bool // pattern had no '/' and applies to every path segment
}

// Load parses the ignore file at p. A missing file yields an empty matcher.
func Load(p string) (Matcher, error) {
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return Matcher{}, nil
	}
	if err != nil {
		return Matcher{}, err
	}
	defer f.Close()

	var m Matcher
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		m.Add(sc.Text())
	}
	return m, sc.Err()
}

// Add appends one pattern line; blank lines and comments are skipped.
func (m *Matcher) Add(line string) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return
	}
	p := pattern{}
	if strings.HasSuffix(line, "/") {
		p.dir = true
		line = strings.TrimSuffix(line, "/")
	}
	line = strings.TrimPrefix(line, "/")
	p.base = !strings.Contains(line, "/")
	p.glob = line
	m.patterns = append(m.patterns, p)
}

// Len returns the number of patterns.
func (m Matcher) Len() int { return len(m.patterns) }

// Match reports whether rel, or one of its parent directories, is ignored.
func (m Matcher) Match(rel string) bool {
	rel = strings.TrimPrefix(path.Clean(strings.ReplaceAll(rel, "\\", "/")), "./")
	segs := strings.Split(rel, "/")
	for _, p := range m.patterns {
		for i := range segs {
			last := i == len(segs)-1
			if p.dir && last {
				// directory patterns never match the file itself
				break
			}
			subject := strings.Join(segs[:i+1], "/")
			if p.base {
				subject = segs[i]
			}
			if ok, _ := doublestar.Match(p.glob, subject); ok {
				return true
			}
		}
	}
	return false
}
