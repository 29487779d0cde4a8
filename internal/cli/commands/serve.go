package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nickmessing/firemodel/internal/cli/ui"
	"github.com/nickmessing/firemodel/internal/orm/watch"
	"github.com/nickmessing/firemodel/internal/web/relay"
)

var serveAddr string

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve records and relay events over HTTP and websockets",
		Long: `Start the relay server.

Routes:
  GET /healthz               server status
  GET /records/{model}       every record of a model
  GET /records/{model}/{id}  one record
  GET /ws                    websocket: join model rooms or start watchers

Websocket clients send {"type":"join","data":{"room":"people"}} to receive
the events of a model, or {"type":"watch","data":{"model":"Person"}} to
start a watcher and join its room.`,
		Example: `  firemodel serve
  firemodel serve --addr :8787`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default relay.addr from firemodel.yaml)")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := relay.DefaultConfig()
	cfg.Addr = a.cfg.Relay.Addr
	if len(a.cfg.Relay.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = a.cfg.Relay.AllowedOrigins
	}
	if serveAddr != "" {
		cfg.Addr = serveAddr
	}

	srv := relay.NewServer(a.sess, cfg, a.logger)
	fmt.Fprintln(cmd.ErrOrStderr(), ui.Info(fmt.Sprintf("Relay listening on %s; press Ctrl+C to stop", cfg.Addr), noColor))

	err = srv.ListenAndServe(ctx)
	if stopErr := watch.StopAll(a.sess); stopErr != nil {
		a.logger.Warn("failed to stop watchers", zap.Error(stopErr))
	}
	return err
}
