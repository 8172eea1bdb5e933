package commands

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/speedlocal-labs/timesviz/internal/ui"
	"github.com/speedlocal-labs/timesviz/internal/viz"
	"github.com/spf13/cobra"
)

// ServeOptions holds options for the serve command.
type ServeOptions struct {
	Port  int
	Watch bool
}

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the dashboard API server",
		Long: `Load the data source, materialize the derived tables, and serve the
dashboard API: table contents, per-browser filter state, chart specs,
exclusion reports, and reload control. Chart rendering happens in the
consuming frontend; this server only ships data.`,
		Example: `  # Serve on the default port
  timesviz serve

  # Custom port, no config-file watching
  timesviz serve --port 3000 --watch=false`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Port, "port", 0, "Port to serve on (default: 8765)")
	cmd.Flags().BoolVar(&opts.Watch, "watch", true, "Reload when the mapping or unit config changes")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	cfg := getConfig()

	port := cfg.UI.Port
	if opts.Port != 0 {
		port = opts.Port
	}
	watch := cfg.UI.Watch
	if cmd.Flags().Changed("watch") {
		watch = opts.Watch
	}

	mgr, err := newManager(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintln(cmd.OutOrStdout(), "Loading data source...")
	sess, err := mgr.Reload(ctx)
	if err != nil {
		return fmt.Errorf("initial load failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\n", sess.Report.Summary())

	server := ui.NewServer(ui.Config{
		Manager:       mgr,
		Registry:      viz.DefaultRegistry(),
		Port:          port,
		Watch:         watch,
		WatchPaths:    []string{cfg.Mapping, cfg.Units, cfg.DefaultUnits},
		SessionSecret: sessionSecret(cfg.UI.SessionSecret),
		Logger:        logger,
	})

	fmt.Fprintf(cmd.OutOrStdout(), "Serving dashboard API on http://localhost:%d\n", port)
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl+C to stop")

	return server.Serve(ctx)
}

// sessionSecret returns the configured cookie secret or a random
// per-process one. Sessions then reset on restart, which is harmless:
// they only carry filter selections.
func sessionSecret(configured string) string {
	if configured != "" {
		return configured
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "timesviz-dev-secret"
	}
	return hex.EncodeToString(buf)
}
