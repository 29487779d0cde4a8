package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nickmessing/firemodel/internal/cli/ui"
	"github.com/nickmessing/firemodel/internal/orm/list"
)

var (
	listFirst    int
	listLast     int
	listRecent   int
	listInactive int
	listSince    int64
	listWhere    string
	listColumns  []string
)

// NewListCommand creates the list command
func NewListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <model>",
		Short: "List the records of a model",
		Long: `List the records of a model.

At most one selector may be given; without one every record is listed.`,
		Example: `  # Every person
  firemodel list Person

  # The five most recently updated people
  firemodel list Person --recent 5

  # People named Ann, as JSON
  firemodel list Person --where name=Ann --json`,
		Args: cobra.ExactArgs(1),
		RunE: runList,
	}

	cmd.Flags().IntVar(&listFirst, "first", 0, "First n records by creation time")
	cmd.Flags().IntVar(&listLast, "last", 0, "Last n records by creation time")
	cmd.Flags().IntVar(&listRecent, "recent", 0, "The n most recently updated records")
	cmd.Flags().IntVar(&listInactive, "inactive", 0, "The n least recently updated records")
	cmd.Flags().Int64Var(&listSince, "since", 0, "Records updated at or after this epoch millisecond")
	cmd.Flags().StringVar(&listWhere, "where", "", "Records whose property equals a value (property=value)")
	cmd.Flags().StringSliceVar(&listColumns, "columns", nil, "Columns to show (default: every property)")
	cmd.MarkFlagsMutuallyExclusive("first", "last", "recent", "inactive", "since", "where")

	return cmd
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	model := args[0]
	flags := cmd.Flags()

	var l *list.List
	switch {
	case flags.Changed("first"):
		l, err = list.First(ctx, a.sess, model, listFirst)
	case flags.Changed("last"):
		l, err = list.Last(ctx, a.sess, model, listLast)
	case flags.Changed("recent"):
		l, err = list.Recent(ctx, a.sess, model, listRecent)
	case flags.Changed("inactive"):
		l, err = list.Inactive(ctx, a.sess, model, listInactive)
	case flags.Changed("since"):
		l, err = list.Since(ctx, a.sess, model, listSince)
	case flags.Changed("where"):
		where, perr := parseAssignments([]string{listWhere})
		if perr != nil {
			return perr
		}
		for prop, value := range where {
			l, err = list.Where(ctx, a.sess, model, prop, value)
		}
	default:
		l, err = list.All(ctx, a.sess, model)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, l.Data())
	}
	if l.Len() == 0 {
		fmt.Fprintln(out, ui.Info(fmt.Sprintf("No %s found at %s", l.PluralName(), l.DBPath()), noColor))
		return nil
	}
	ui.RecordTable(out, l.Data(), listColumns, noColor).Render()
	fmt.Fprintf(out, "\n%d %s\n", l.Len(), l.PluralName())
	return nil
}
