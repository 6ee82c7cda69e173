package files

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// AppendIgnore adds pattern to the .gitignore in repoRoot unless a line
// with the same pattern already exists. The file is created when missing.
func AppendIgnore(repoRoot, pattern string) (bool, error) {
	p := filepath.Join(repoRoot, ".gitignore")
	needsNewline := false
	if b, err := os.ReadFile(p); err == nil {
		sc := bufio.NewScanner(strings.NewReader(string(b)))
		for sc.Scan() {
			if strings.TrimSpace(sc.Text()) == pattern {
				return false, nil
			}
		}
		needsNewline = len(b) > 0 && b[len(b)-1] != '\n'
	} else if !os.IsNotExist(err) {
		return false, err
	}

	f, err := os.OpenFile(p, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return false, err
	}
	defer f.Close()
	line := pattern + "\n"
	if needsNewline {
		line = "\n" + line
	}
	if _, err := f.WriteString(line); err != nil {
		return false, err
	}
	return true, nil
}

// IgnorePattern turns an output directory into a .gitignore pattern
// anchored at repoRoot. ok is false when dir lies outside repoRoot.
func IgnorePattern(repoRoot, dir string) (pattern string, ok bool) {
	absRoot, err := filepath.Abs(repoRoot)
	if err != nil {
		return "", false
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(absRoot, absDir)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return "/" + filepath.ToSlash(rel) + "/", true
}
