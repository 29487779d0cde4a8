package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nickmessing/firemodel/internal/cli/ui"
	"github.com/nickmessing/firemodel/internal/orm/audit"
)

var (
	auditRecord string
	auditLast   int
	auditSince  int64
)

// NewAuditCommand creates the audit command
func NewAuditCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit <model>",
		Short: "Show the audit trail of a model",
		Long: `Show the audit trail of an audited model, oldest entry first.

Only models declared with audit: true are logged.`,
		Example: `  # The last 20 entries
  firemodel audit Person

  # Everything that happened to one record
  firemodel audit Person --record p1`,
		Args: cobra.ExactArgs(1),
		RunE: runAudit,
	}

	cmd.Flags().StringVar(&auditRecord, "record", "", "Only entries of this record id")
	cmd.Flags().IntVar(&auditLast, "last", 20, "Number of most recent entries")
	cmd.Flags().Int64Var(&auditSince, "since", 0, "Entries created at or after this epoch millisecond")
	cmd.MarkFlagsMutuallyExclusive("record", "since")

	return cmd
}

func runAudit(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	l, err := audit.NewList(a.sess, args[0])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	var entries []audit.Entry
	switch {
	case auditRecord != "":
		entries, err = l.ForRecord(ctx, auditRecord)
	case cmd.Flags().Changed("since"):
		entries, err = l.Since(ctx, auditSince)
	default:
		entries, err = l.Last(ctx, auditLast, 0)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, ui.Info("No audit entries at "+l.DBPath(), noColor))
		return nil
	}

	table := ui.NewTable(out, []string{"CREATED", "RECORD", "ACTION", "CHANGES"}, &ui.TableOptions{NoColor: noColor})
	for _, e := range entries {
		table.AddRow(strconv.FormatInt(e.CreatedAt, 10), e.RecordID, string(e.Action), formatChanges(e.Changes))
	}
	table.Render()
	return nil
}

func formatChanges(changes []audit.Change) string {
	parts := make([]string, 0, len(changes))
	for _, c := range changes {
		parts = append(parts, fmt.Sprintf("%s: %s -> %s", c.Property, ui.FormatValue(c.Before), ui.FormatValue(c.After)))
	}
	return strings.Join(parts, ", ")
}
