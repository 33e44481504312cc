package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/zorak1103/tcfleet/internal/templates"
)

var (
	force bool
)

// initFile is one file written by init.
type initFile struct {
	name    string
	content []byte
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a sample fleet configuration",
	Long: `Init creates the configuration files for tcfleet in the current directory.

This command will create:
  - tcfleet.yaml (sample fleet with a database and a cache)
  - .env (environment variable overrides template)

Existing files are kept unless --force is given.`,
	Example: `  # Initialize in current directory
  tcfleet init

  # Force overwrite existing files
  tcfleet init --force`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runInit(cmd.OutOrStdout(), force)
	},
}

func runInit(out io.Writer, overwrite bool) error {
	_, _ = fmt.Fprintln(out, "🔧 Initializing tcfleet...")

	files := []initFile{
		{name: "tcfleet.yaml", content: templates.FleetYAML},
		{name: ".env", content: templates.EnvFile},
	}

	for _, f := range files {
		if _, err := os.Stat(f.name); err == nil && !overwrite {
			_, _ = fmt.Fprintf(out, "⚠️  Skipping %s (already exists, use --force to overwrite)\n", f.name)
			continue
		}

		if err := os.WriteFile(f.name, f.content, 0o600); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.name, err)
		}

		_, _ = fmt.Fprintf(out, "✅ Created %s\n", f.name)
	}

	_, _ = fmt.Fprintln(out, "\n🎉 Initialization complete!")
	_, _ = fmt.Fprintln(out, "\n📝 Next steps:")
	_, _ = fmt.Fprintln(out, "   1. Edit tcfleet.yaml to describe the services your tests need")
	_, _ = fmt.Fprintln(out, "   2. Run 'tcfleet config' to check the effective configuration")
	_, _ = fmt.Fprintln(out, "   3. Run 'tcfleet run -- go test ./...' to test against a fresh fleet")

	return nil
}

// nolint:gochecknoinits // Standard Cobra pattern for command registration
func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().BoolVar(&force, "force", false, "overwrite existing configuration files")
}
