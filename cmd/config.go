package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zorak1103/tcfleet/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Display the effective configuration",
	Long: `Display the effective configuration that tcfleet will use at runtime.

This shows the merged configuration from:
  1. Default values
  2. Configuration file (tcfleet.yaml)
  3. Environment variables (highest priority)

The notification URL is masked.`,
	Example: `  # Show current configuration
  tcfleet config

  # Show with custom config file
  tcfleet config --config ci/tcfleet.yaml`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := GetConfigLoadError(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		cfg := GetConfig()
		if cfg == nil {
			return fmt.Errorf("configuration not loaded\n\nTo get started, run: tcfleet init")
		}
		return displayConfig(cmd.OutOrStdout(), cfg)
	},
}

// nolint:gochecknoinits // Standard Cobra pattern for command registration
func init() {
	rootCmd.AddCommand(configCmd)
}

func displayConfig(out io.Writer, cfg *config.Config) error {
	source := cfg.ConfigFilePath
	if source == "" {
		source = "(defaults/environment)"
	}

	_, _ = fmt.Fprintln(out, "=== tcfleet Effective Configuration ===")
	_, _ = fmt.Fprintf(out, "Source: %s\n", source)
	_, _ = fmt.Fprintln(out)

	_, _ = fmt.Fprintln(out, "🐳 Runtime Configuration:")
	_, _ = fmt.Fprintf(out, "   Driver:          %s\n", cfg.Runtime.Driver)
	_, _ = fmt.Fprintf(out, "   Socket Path:     %s\n", orDefault(cfg.Runtime.SocketPath, "(from environment)"))
	_, _ = fmt.Fprintf(out, "   Startup Timeout: %s\n", cfg.Runtime.StartupTimeout)
	_, _ = fmt.Fprintf(out, "   Max Concurrency: %s\n", concurrencyLabel(cfg.Runtime.MaxConcurrency))
	_, _ = fmt.Fprintf(out, "   Strict Ports:    %v\n", cfg.Runtime.StrictPorts)
	_, _ = fmt.Fprintln(out)

	_, _ = fmt.Fprintln(out, "📁 Output Configuration:")
	_, _ = fmt.Fprintf(out, "   Manifest File:   %s\n", orDefault(cfg.Output.ManifestFile, "(disabled)"))
	_, _ = fmt.Fprintf(out, "   Env File:        %s\n", orDefault(cfg.Output.EnvFile, "(disabled)"))
	_, _ = fmt.Fprintf(out, "   Env Prefix:      %s\n", cfg.Output.EnvPrefix)
	_, _ = fmt.Fprintln(out)

	_, _ = fmt.Fprintln(out, "🔔 Notification Configuration:")
	_, _ = fmt.Fprintf(out, "   Enabled:         %v\n", cfg.Notification.Enabled)
	_, _ = fmt.Fprintf(out, "   Shoutrrr URL:    %s\n", maskShoutrrrURL(cfg.Notification.ShoutrrURL))
	_, _ = fmt.Fprintln(out)

	_, _ = fmt.Fprintf(out, "📦 Containers (%d):\n", len(cfg.Containers))
	if len(cfg.Containers) == 0 {
		_, _ = fmt.Fprintln(out, "   (none)")
		return nil
	}
	for _, c := range cfg.Containers {
		body, err := yaml.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to render container %q: %w", c.Key, err)
		}
		_, _ = fmt.Fprintf(out, "   %s:\n", c.Key)
		for _, line := range strings.Split(strings.TrimRight(string(body), "\n"), "\n") {
			_, _ = fmt.Fprintf(out, "     %s\n", line)
		}
	}
	return nil
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func concurrencyLabel(n int) string {
	if n <= 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d", n)
}

// maskShoutrrrURL masks sensitive parts of Shoutrrr URL
func maskShoutrrrURL(url string) string {
	if url == "" {
		return "❌ Not configured"
	}

	// Extract service type (e.g., discord://, slack://, smtp://)
	parts := strings.SplitN(url, "://", 2)
	if len(parts) != 2 {
		return "✅ Configured (invalid format)"
	}

	service := parts[0]
	// Mask the credentials/tokens
	return fmt.Sprintf("✅ Configured (%s://***)", service)
}
