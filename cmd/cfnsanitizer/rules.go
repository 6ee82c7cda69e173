package cfnsanitizer

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/redactyl/cfnsanitizer/internal/config"
	"github.com/redactyl/cfnsanitizer/internal/rules"
)

func init() {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and validate detection rules",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List the active rules in evaluation order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(".")
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			set, err := loadRuleSet(cfg, flagEnable, flagDisable)
			if err != nil {
				return err
			}
			if flagJSON {
				return writeRulesJSON(cmd.OutOrStdout(), set)
			}
			return writeRulesTable(cmd.OutOrStdout(), set)
		},
	}
	list.Flags().StringVar(&flagEnable, "enable", "", "only list these rules (comma-separated IDs)")
	list.Flags().StringVar(&flagDisable, "disable", "", "hide these rules (comma-separated IDs)")

	validate := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a rule source and report the first problem",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := rules.LoadFile(args[0])
			if err != nil {
				var re *rules.RegistryError
				if errors.As(err, &re) && re.RuleID != "" {
					return fmt.Errorf("%s: invalid rule %s: %w", args[0], re.RuleID, err)
				}
				return fmt.Errorf("%s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rule(s) OK (digest %s)\n", args[0], set.Len(), set.Digest())
			return nil
		},
	}

	export := &cobra.Command{
		Use:   "export",
		Short: "Print the built-in rule source as a starting point for custom rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := cmd.OutOrStdout().Write(rules.DefaultSource())
			return err
		},
	}

	rootCmd.AddCommand(cmd)
	cmd.AddCommand(list, validate, export)
}

type ruleView struct {
	ID          string   `json:"id"`
	Kind        string   `json:"kind"`
	Keys        []string `json:"keys,omitempty"`
	Regex       string   `json:"regex,omitempty"`
	ParamName   string   `json:"param_name_regex,omitempty"`
	Description string   `json:"description"`
}

func viewOf(r *rules.Rule) ruleView {
	v := ruleView{ID: r.ID, Kind: r.Kind.String(), Keys: r.Keys(), Description: r.Description}
	if r.Regex != nil {
		v.Regex = r.Regex.String()
	}
	if r.ParamName != nil {
		v.ParamName = r.ParamName.String()
	}
	return v
}

func writeRulesJSON(w io.Writer, set *rules.Set) error {
	views := make([]ruleView, 0, set.Len())
	for _, r := range set.Rules() {
		views = append(views, viewOf(r))
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(views)
}

func writeRulesTable(w io.Writer, set *rules.Set) error {
	table := tablewriter.NewWriter(w)
	table.Header("ID", "KIND", "KEYS", "DESCRIPTION")
	for _, r := range set.Rules() {
		keys := strings.Join(r.Keys(), ", ")
		if keys == "" {
			keys = "-"
		}
		if err := table.Append([]string{r.ID, r.Kind.String(), keys, r.Description}); err != nil {
			return err
		}
	}
	return table.Render()
}
