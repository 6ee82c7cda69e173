package cfnsanitizer

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/redactyl/cfnsanitizer/internal/config"
	"github.com/redactyl/cfnsanitizer/internal/engine"
	"github.com/redactyl/cfnsanitizer/internal/report"
)

func init() {
	cmd := &cobra.Command{
		Use:   "baseline",
		Short: "Manage baselines",
	}

	update := &cobra.Command{
		Use:   "update [paths...]",
		Short: "Accept every current finding into the baseline",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(".")
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			log := setupLogger(cmd.ErrOrStderr(), pickBool(flagNoColor, cfg.NoColor, nil))
			set, err := loadRuleSet(cfg, flagEnable, flagDisable)
			if err != nil {
				return err
			}
			outDir := pickString("", cfg.OutputDir, nil)
			if outDir == "" {
				outDir = defaultOutDir
			}
			runs, err := scanPaths(cmd.Context(), args, cfg, set, scanOptions{outDir: outDir}, log)
			if err != nil {
				return err
			}
			results := make([]engine.Result, len(runs))
			for i, r := range runs {
				results[i] = r.result
			}
			findings := engine.Findings(results)

			path := pickString(flagBaseline, cfg.Baseline, nil)
			if path == "" {
				path = defaultBaselineFile
			}
			if err := report.SaveBaseline(path, findings); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Baseline updated: %d finding(s) accepted in %s\n", len(findings), path)
			printFailures(cmd.ErrOrStderr(), runs)
			return nil
		},
	}
	addScanFlags(update)
	update.Flags().StringVar(&flagBaseline, "baseline", "", "baseline file to write (default "+defaultBaselineFile+")")

	rootCmd.AddCommand(cmd)
	cmd.AddCommand(update)
}
