package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zorak1103/tcfleet/internal/config"
	"github.com/zorak1103/tcfleet/internal/fleet"
	"github.com/zorak1103/tcfleet/internal/notification"
)

var runCmd = &cobra.Command{
	Use:   "run -- command [args...]",
	Short: "Start the fleet, run a command against it, then stop the fleet",
	Long: `Run starts the fleet, runs the given command with the connection details
in its environment and stops the fleet when the command exits. tcfleet exits
with the command's exit status.

For every service key KEY (upper-cased, other characters replaced by "_") the
command sees:
  <PREFIX>_<KEY>_IP            host address of the published ports
  <PREFIX>_<KEY>_NAME          container name
  <PREFIX>_<KEY>_PORT_<port>   host port published for container port <port>

PREFIX is output.env_prefix (default TESTCONTAINERS).`,
	Example: `  # Run the integration tests against a fresh fleet
  tcfleet run -- go test -tags=integration ./...

  # Use a different config file
  tcfleet run --config ci/tcfleet.yaml -- make e2e`,
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		err := runE(cmd, args)
		var exitErr *ExitError
		if err != nil && !errors.As(err, &exitErr) {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
		return err
	},
}

func runE(cmd *cobra.Command, args []string) error {
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

	code, err := runCommand(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg, rt, notifier, args)
	if err != nil {
		return err
	}
	if code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}

// runCommand launches the fleet, runs argv with the connection variables
// added to the environment and tears the fleet down. It returns the exit
// status of the command.
func runCommand(ctx context.Context, stdout, stderr io.Writer, cfg *config.Config, rt fleet.Runtime, n fleetNotifier, argv []string) (int, error) {
	result, m, err := launchFleet(ctx, stdout, cfg, rt, n)
	if err != nil {
		return 0, err
	}
	defer func() {
		removeOutputs(cfg)
		if err := teardown(result); err != nil {
			logger.Warn("failed to stop fleet", "error", err)
		}
	}()

	child := exec.CommandContext(ctx, argv[0], argv[1:]...) // #nosec G204 -- running the user's command is the purpose of run
	child.Env = append(os.Environ(), m.Environ(cfg.Output.EnvPrefix)...)
	child.Stdin = os.Stdin
	child.Stdout = stdout
	child.Stderr = stderr

	logger.Debug("running command", "argv", argv)
	err = child.Run()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return 0, nil
	case errors.As(err, &exitErr):
		code := exitErr.ExitCode()
		if code < 0 {
			code = 1 // terminated by a signal
		}
		return code, nil
	default:
		return 0, fmt.Errorf("failed to run %s: %w", argv[0], err)
	}
}

// nolint:gochecknoinits // Standard Cobra pattern for command registration
func init() {
	rootCmd.AddCommand(runCmd)
}
