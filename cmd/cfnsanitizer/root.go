package cfnsanitizer

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagJSON         bool
	flagSARIF        bool
	flagThreads      int
	flagFailOn       string
	flagNoColor      bool
	flagVerbose      int
	flagRules        string
	flagMatchTimeout string

	version = "0.1.0"
)

// rootCmd is the base Cobra command for the sanitizer CLI.
var rootCmd = &cobra.Command{
	Use:           "cfnsanitizer",
	Short:         "Redact secrets from CloudFormation templates",
	Long:          "cfnsanitizer finds credentials in CloudFormation and CDK templates, writes sanitized copies and reports every redaction.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// exitError carries a non-zero exit status that is not a failure of the
// command itself, such as findings at or above --fail-on.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// Execute runs the CLI. It should be called by the main package.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "emit JSON")
	rootCmd.PersistentFlags().BoolVar(&flagSARIF, "sarif", false, "emit SARIF 2.1.0")
	rootCmd.PersistentFlags().IntVar(&flagThreads, "threads", 0, "documents processed concurrently (0 = GOMAXPROCS)")
	rootCmd.PersistentFlags().StringVar(&flagFailOn, "fail-on", "", "fail on low|medium|high (default medium)")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "disable colorized output")
	rootCmd.PersistentFlags().CountVarP(&flagVerbose, "verbose", "v", "increase log verbosity (-v info, -vv debug, -vvv trace)")
	rootCmd.PersistentFlags().StringVar(&flagRules, "rules", "", "rule source file (YAML or JSON); built-in rules when empty")
	rootCmd.PersistentFlags().StringVar(&flagMatchTimeout, "match-timeout", "", "per-pattern match timeout, e.g. 250ms")
}
