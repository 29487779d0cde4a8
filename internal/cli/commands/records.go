package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nickmessing/firemodel/internal/cli/ui"
	"github.com/nickmessing/firemodel/internal/orm/record"
)

// NewGetCommand creates the get command
func NewGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <model> <id>",
		Short: "Show one record",
		Example: `  firemodel get Person p1
  firemodel get Person p1 --json`,
		Args: cobra.ExactArgs(2),
		RunE: runGet,
	}
}

// NewAddCommand creates the add command
func NewAddCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "add <model> [property=value...]",
		Short: "Add a record under a new id",
		Long: `Add a record under a new id and print it.

Values are parsed as JSON when they are valid JSON and taken as strings
otherwise, so age=42 stores a number and name=Ann stores a string.`,
		Example: `  firemodel add Person name=Ann age=42
  firemodel add Person 'tags=["a","b"]'`,
		Args: cobra.MinimumNArgs(1),
		RunE: runAdd,
	}
}

// NewSetCommand creates the set command
func NewSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "set <model> <id> property=value...",
		Short:   "Update properties of a record",
		Example: `  firemodel set Person p1 age=43 name=Anne`,
		Args:    cobra.MinimumNArgs(3),
		RunE:    runSet,
	}
}

// NewRemoveCommand creates the remove command
func NewRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <model> <id>",
		Aliases: []string{"rm"},
		Short:   "Remove a record",
		Example: `  firemodel remove Person p1`,
		Args:    cobra.ExactArgs(2),
		RunE:    runRemove,
	}
}

func runGet(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	r, err := record.Get(cmd.Context(), a.sess, args[0], args[1])
	if err != nil {
		return err
	}
	return printRecord(cmd.OutOrStdout(), r)
}

func runAdd(cmd *cobra.Command, args []string) error {
	payload, err := parseAssignments(args[1:])
	if err != nil {
		return err
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	a.warnEphemeral(cmd.ErrOrStderr())

	r, err := record.Add(cmd.Context(), a.sess, args[0], payload)
	if err != nil {
		return err
	}
	return printRecord(cmd.OutOrStdout(), r)
}

func runSet(cmd *cobra.Command, args []string) error {
	props, err := parseAssignments(args[2:])
	if err != nil {
		return err
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	a.warnEphemeral(cmd.ErrOrStderr())

	r, err := record.Get(cmd.Context(), a.sess, args[0], args[1])
	if err != nil {
		return err
	}
	if err := r.UpdateProps(cmd.Context(), props); err != nil {
		return err
	}
	return printRecord(cmd.OutOrStdout(), r)
}

func runRemove(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	a.warnEphemeral(cmd.ErrOrStderr())

	if err := record.Remove(cmd.Context(), a.sess, args[0], args[1]); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]string{"removed": args[1]})
	}
	ui.WriteSuccess(cmd.OutOrStdout(), fmt.Sprintf("Removed %s %s", args[0], args[1]), noColor)
	return nil
}

// parseAssignments turns property=value arguments into a payload
func parseAssignments(args []string) (map[string]interface{}, error) {
	payload := make(map[string]interface{}, len(args))
	for _, arg := range args {
		prop, raw, ok := strings.Cut(arg, "=")
		if !ok || prop == "" {
			return nil, usagef("expected property=value, got %q", arg)
		}
		var value interface{}
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		payload[prop] = value
	}
	return payload, nil
}

func printRecord(out io.Writer, r *record.Record) error {
	if jsonOutput {
		return printJSON(out, r)
	}

	ui.Header(out, r.String(), noColor)
	data := r.Data()
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	kv := ui.NewKeyValueTable(out, noColor)
	for _, k := range keys {
		kv.AddRow(k, ui.FormatValue(data[k]))
	}
	kv.Render()
	return nil
}

func printJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
