package cfnsanitizer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/redactyl/cfnsanitizer/internal/config"
)

var (
	cfgPreset   string
	cfgOutput   string
	cfgOutDir   string
	cfgCleanCDK bool
	cfgForce    bool
)

func init() {
	cfgCmd := &cobra.Command{Use: "config", Short: "Configuration helpers"}
	rootCmd.AddCommand(cfgCmd)

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a .cfnsanitizer.yml (or .toml) with a preset",
		RunE:  runConfigInit,
	}
	cfgCmd.AddCommand(initCmd)

	initCmd.Flags().StringVar(&cfgPreset, "preset", "standard", "preset: standard | strict | quiet")
	initCmd.Flags().StringVar(&cfgOutput, "output", config.LocalNames[0], "output file path (.toml selects TOML)")
	initCmd.Flags().StringVar(&cfgOutDir, "out-dir", defaultOutDir, "directory for sanitized templates")
	initCmd.Flags().BoolVar(&cfgCleanCDK, "clean-cdk", false, "strip CDK bookkeeping by default")
	initCmd.Flags().BoolVar(&cfgForce, "force", false, "overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective file configuration (global merged with local)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(".")
			if err != nil {
				return err
			}
			b, err := yaml.Marshal(&cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}
	cfgCmd.AddCommand(showCmd)
}

// presetConfig returns the file config for a named preset.
func presetConfig(preset string) (config.FileConfig, error) {
	fc := config.FileConfig{
		OutputDir: strPtr(cfgOutDir),
		CleanCDK:  boolPtr(cfgCleanCDK),
	}
	switch strings.ToLower(preset) {
	case "standard":
		fc.FailOn = strPtr("medium")
	case "strict":
		// parameter defaults flagged for review also fail the run
		fc.FailOn = strPtr("low")
	case "quiet":
		fc.FailOn = strPtr("high")
		fc.Disable = strPtr("parameter_defaults")
	default:
		return fc, fmt.Errorf("unknown preset %q (want standard|strict|quiet)", preset)
	}
	return fc, nil
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	fc, err := presetConfig(cfgPreset)
	if err != nil {
		return err
	}
	if !cfgForce {
		if _, err := os.Stat(cfgOutput); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", cfgOutput)
		}
	}

	var b []byte
	if strings.EqualFold(filepath.Ext(cfgOutput), ".toml") {
		b, err = toml.Marshal(&fc)
	} else {
		b, err = yaml.Marshal(&fc)
	}
	if err != nil {
		return err
	}
	if err := os.WriteFile(cfgOutput, b, 0o644); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Wrote", cfgOutput)
	return nil
}

func strPtr(s string) *string { return &s }
func boolPtr(v bool) *bool    { return &v }
