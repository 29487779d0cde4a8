package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nickmessing/firemodel/internal/cli/ui"
	"github.com/nickmessing/firemodel/internal/orm/dispatch"
	"github.com/nickmessing/firemodel/internal/orm/watch"
)

var (
	watchRecent int
	watchSince  int64
	watchWhere  string
)

// NewWatchCommand creates the watch command
func NewWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <model> [id]",
		Short: "Stream record events until interrupted",
		Long: `Watch a record (when an id is given) or the list of a model and print
every event as it happens. The current records are reported first as
RECORD_ADDED events.

With --json each event is printed as one JSON object per line.`,
		Example: `  # Every change to people
  firemodel watch Person

  # One record
  firemodel watch Person p1 --json

  # Only the ten most recently updated people
  firemodel watch Person --recent 10`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runWatch,
	}

	cmd.Flags().IntVar(&watchRecent, "recent", 0, "Watch the n most recently updated records")
	cmd.Flags().Int64Var(&watchSince, "since", 0, "Watch records updated at or after this epoch millisecond")
	cmd.Flags().StringVar(&watchWhere, "where", "", "Watch records whose property equals a value (property=value)")
	cmd.MarkFlagsMutuallyExclusive("recent", "since", "where")

	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var w *watch.Watch
	if len(args) == 2 {
		w, err = watch.Record(a.sess, args[0], args[1])
	} else {
		w, err = watch.List(a.sess, args[0])
	}
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	switch {
	case flags.Changed("recent"):
		w = w.Recent(watchRecent)
	case flags.Changed("since"):
		w = w.Since(watchSince)
	case flags.Changed("where"):
		where, err := parseAssignments([]string{watchWhere})
		if err != nil {
			return err
		}
		for prop, value := range where {
			w = w.Where(prop, value)
		}
	}

	printer := &eventPrinter{out: cmd.OutOrStdout(), json: jsonOutput}
	hash, err := w.Dispatch(printer.print).Start(ctx)
	if err != nil {
		return err
	}
	if !jsonOutput {
		fmt.Fprintln(cmd.ErrOrStderr(), ui.Info(fmt.Sprintf("Watching %s (%s); press Ctrl+C to stop", w.DBPath(), hash), noColor))
	}

	<-ctx.Done()
	return watch.Stop(a.sess, hash)
}

// eventPrinter writes events from concurrent writers one line at a time
type eventPrinter struct {
	mu   sync.Mutex
	out  io.Writer
	json bool
}

func (p *eventPrinter) print(e dispatch.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.json {
		raw, err := json.Marshal(e)
		if err != nil {
			fmt.Fprintf(p.out, "{\"error\":%q}\n", err.Error())
			return
		}
		fmt.Fprintln(p.out, string(raw))
		return
	}

	kind := color.New(kindColor(e.Type), color.Bold)
	if noColor {
		kind.DisableColor()
	}
	kind.Fprint(p.out, e.Type.String())
	fmt.Fprintf(p.out, " %s %s\n", e.DBPath, ui.FormatValue(e.Value))
}

func kindColor(k dispatch.Kind) color.Attribute {
	switch k {
	case dispatch.RecordAdded:
		return color.FgGreen
	case dispatch.RecordRemoved:
		return color.FgRed
	case dispatch.RecordMoved:
		return color.FgYellow
	default:
		return color.FgCyan
	}
}
