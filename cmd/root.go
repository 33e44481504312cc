// Package cmd implements the CLI commands.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/zorak1103/tcfleet/internal/config"
	"github.com/zorak1103/tcfleet/internal/version"
)

var (
	cfgFile       string
	verbose       bool
	cfg           *config.Config
	errConfigLoad error
	logger        = slog.Default()
)

var rootCmd = &cobra.Command{
	Use:   "tcfleet",
	Short: "Ephemeral container fleets for integration tests",
	Long: `tcfleet starts a fleet of throwaway service containers for integration
tests from a declarative YAML file, waits until each one is ready, and hands
their connection details to your tests.

It features:
  - Parallel startup with all-or-nothing failure reporting
  - Port and log-line readiness checks
  - Docker Engine API or testcontainers-go runtimes
  - Connection details as environment variables, dotenv file or JSON manifest
  - Flexible notification system via Shoutrrr`,
	Version: version.GetFullVersion(),
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		logger = setupLogging(cmd.ErrOrStderr(), verbose)

		skipConfig := cmd.Name() == "init" || cmd.Name() == "help" || cmd.Name() == "version"
		if skipConfig {
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			// Commands that need a configuration fail fast with requireConfig().
			errConfigLoad = err
			logger.Debug("could not load config", "error", err)
			return nil
		}
		errConfigLoad = nil

		logger.Debug("loaded configuration", "path", cfg.ConfigFilePath, "driver", cfg.Runtime.Driver)
		return nil
	},
}

// ExitError carries the exit status of a child process through cobra.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

// setupLogging installs a text handler on w as the default slog logger.
func setupLogging(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	l := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(l)
	return l
}

// nolint:gochecknoinits // Standard Cobra pattern for command registration
func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./tcfleet.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// GetConfig returns the loaded configuration or nil if not loaded.
// Must be called after rootCmd.PersistentPreRunE has executed.
func GetConfig() *config.Config {
	return cfg
}

// GetConfigLoadError returns any error encountered during config loading.
// Returns nil if configuration loaded successfully or was not attempted.
func GetConfigLoadError() error {
	return errConfigLoad
}
