package cfnsanitizer

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/redactyl/cfnsanitizer/internal/audit"
)

var flagHistoryLimit int

func init() {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent sanitize runs from the audit log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := audit.NewAuditLog(".")
			records, err := log.LoadHistory()
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("read %s: %w", log.Path(), err)
			}
			if flagHistoryLimit > 0 && len(records) > flagHistoryLimit {
				records = records[:flagHistoryLimit]
			}
			out := cmd.OutOrStdout()
			if flagJSON {
				if records == nil {
					records = []audit.RunRecord{}
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}
			if len(records) == 0 {
				fmt.Fprintln(out, "No runs recorded yet.")
				return nil
			}
			table := tablewriter.NewWriter(out)
			table.Header("TIME", "TEMPLATES", "FAILED", "REDACTED", "FINDINGS", "NEW", "DURATION")
			for _, r := range records {
				row := []string{
					r.Timestamp.Local().Format("2006-01-02 15:04:05"),
					strconv.Itoa(r.Documents),
					strconv.Itoa(len(r.Failed)),
					strconv.Itoa(r.Redacted),
					strconv.Itoa(r.TotalFindings),
					strconv.Itoa(r.NewFindings),
					r.Duration,
				}
				if err := table.Append(row); err != nil {
					return err
				}
			}
			return table.Render()
		},
	}
	cmd.Flags().IntVarP(&flagHistoryLimit, "limit", "n", 10, "number of runs to show (0 = all)")
	rootCmd.AddCommand(cmd)
}
