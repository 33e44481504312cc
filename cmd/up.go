package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zorak1103/tcfleet/internal/config"
	"github.com/zorak1103/tcfleet/internal/fleet"
	"github.com/zorak1103/tcfleet/internal/notification"
)

var upDetach bool

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Start the fleet and keep it running until interrupted",
	Long: `Up starts every container in the configuration in parallel, waits until
each is ready and prints the connection table. The manifest and env files are
written when configured.

The fleet is stopped on Ctrl+C (SIGINT) or SIGTERM. With --detach the command
returns once the fleet is ready and leaves the containers running; stop them
later with 'tcfleet down'.

If any container fails to start, the containers that did start are stopped
and every failure is reported.`,
	Example: `  # Start the fleet and block
  tcfleet up

  # Start the fleet in the background (docker driver only)
  tcfleet up --detach && go test ./... ; tcfleet down`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := GetConfig()
		if err := requireConfig(cfg, GetConfigLoadError()); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		notifier, err := notification.NewNotifier(cfg)
		if err != nil {
			return err
		}

		rt, err := newRuntime(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to open %s runtime: %w", cfg.Runtime.Driver, err)
		}
		defer func() { _ = rt.close() }() // error not actionable in defer context

		return runUp(ctx, cmd.OutOrStdout(), cfg, rt, notifier, upDetach)
	},
}

// runUp launches the fleet and, unless detached, blocks until ctx ends and
// then tears it down.
func runUp(ctx context.Context, out io.Writer, cfg *config.Config, rt fleet.Runtime, n fleetNotifier, detach bool) error {
	if detach {
		if cfg.Runtime.Driver != config.DriverDocker {
			return fmt.Errorf("--detach requires the %s driver: %s containers are reaped when tcfleet exits",
				config.DriverDocker, cfg.Runtime.Driver)
		}
		if cfg.Output.ManifestFile == "" {
			return fmt.Errorf("--detach requires output.manifest_file so 'tcfleet down' can find the containers")
		}
	}

	result, _, err := launchFleet(ctx, out, cfg, rt, n)
	if err != nil {
		return err
	}

	if detach {
		_, _ = fmt.Fprintln(out, "🔓 Fleet left running; stop it with 'tcfleet down'")
		return nil
	}

	_, _ = fmt.Fprintln(out, "⏳ Fleet running, press Ctrl+C to stop")
	<-ctx.Done()

	_, _ = fmt.Fprintln(out, "")
	_, _ = fmt.Fprintf(out, "🛑 Stopping %d container(s)...\n", len(result))
	removeOutputs(cfg)
	if err := teardown(result); err != nil {
		return fmt.Errorf("failed to stop fleet: %w", err)
	}
	_, _ = fmt.Fprintln(out, "✅ Fleet stopped")
	return nil
}

// nolint:gochecknoinits // Standard Cobra pattern for command registration
func init() {
	rootCmd.AddCommand(upCmd)

	upCmd.Flags().BoolVarP(&upDetach, "detach", "d", false, "leave the fleet running and return once it is ready")
}
