package cfnsanitizer

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/redactyl/cfnsanitizer/internal/config"
	"github.com/redactyl/cfnsanitizer/internal/logging"
	"github.com/redactyl/cfnsanitizer/internal/rules"
)

func pickString(cli string, local, global *string) string {
	if cli != "" {
		return cli
	}
	if local != nil && *local != "" {
		return *local
	}
	if global != nil && *global != "" {
		return *global
	}
	return ""
}

func pickInt(cli int, local, global *int) int {
	if cli != 0 {
		return cli
	}
	if local != nil && *local != 0 {
		return *local
	}
	if global != nil && *global != 0 {
		return *global
	}
	return 0
}

func pickBool(cli bool, local, global *bool) bool {
	if cli {
		return true
	}
	if local != nil {
		return *local
	}
	if global != nil {
		return *global
	}
	return false
}

// splitIDs parses a comma-separated id list, dropping blanks.
func splitIDs(s string) []string {
	var out []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// setupLogger configures logging on stderr; color follows the terminal.
func setupLogger(stderr io.Writer, noColor bool) zerolog.Logger {
	return logging.Setup(flagVerbose, stderr, noColor || !isTerminal(stderr))
}

// loadRuleSet resolves the rule source (flag > config > built-in), applies
// the match timeout and the enable/disable filters.
func loadRuleSet(cfg config.FileConfig, enable, disable string) (*rules.Set, error) {
	var opts []rules.Option
	if flagMatchTimeout != "" {
		d, err := time.ParseDuration(flagMatchTimeout)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid --match-timeout %q", flagMatchTimeout)
		}
		opts = append(opts, rules.WithMatchTimeout(d))
	} else if d, ok, err := cfg.MatchTimeoutDuration(); err != nil {
		return nil, err
	} else if ok {
		opts = append(opts, rules.WithMatchTimeout(d))
	}

	var (
		set *rules.Set
		err error
	)
	if src := pickString(flagRules, cfg.Rules, nil); src != "" {
		set, err = rules.LoadFile(src, opts...)
	} else {
		set, err = rules.Default(opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	filtered, err := set.Filter(
		splitIDs(pickString(enable, cfg.Enable, nil)),
		splitIDs(pickString(disable, cfg.Disable, nil)),
	)
	if err != nil {
		return nil, fmt.Errorf("filter rules: %w", err)
	}
	return filtered, nil
}
