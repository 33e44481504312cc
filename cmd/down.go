package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/zorak1103/tcfleet/internal/manifest"
)

const checkmark = "✓"

var (
	downDryRun   bool
	downManifest string
)

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Stop a fleet started with 'up --detach'",
	Long: `Stop and remove every container recorded in the manifest, then delete the
manifest and env files.

Containers that no longer exist are skipped. Use --dry-run to list what would
be removed without touching anything.`,
	Example: `  # Stop the fleet recorded in output.manifest_file
  tcfleet down

  # Preview what would be removed
  tcfleet down --dry-run

  # Use an explicit manifest
  tcfleet down --manifest /tmp/fleet.json`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := GetConfigLoadError(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		cfg := GetConfig()

		path, err := manifestPath(cfg, downManifest)
		if err != nil {
			return err
		}
		m, err := loadManifest(path)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if downDryRun {
			printRemovalPlan(out, m)
			_, _ = fmt.Fprintln(out, "🔍 DRY RUN - No changes made")
			_, _ = fmt.Fprintln(out, "   Run without --dry-run to stop the fleet")
			return nil
		}

		ctx := cmd.Context()
		cli, err := newDockerClient(ctx, socketPath(cfg))
		if err != nil {
			return err
		}
		defer func() { _ = cli.Close() }() // Close client; error not actionable in defer context

		failed := runDown(ctx, out, cli, m)

		outputs := []string{path}
		if cfg != nil && cfg.Output.EnvFile != "" {
			outputs = append(outputs, cfg.Output.EnvFile)
		}
		if failed > 0 {
			return fmt.Errorf("%d container(s) could not be removed; manifest kept at %s", failed, path)
		}
		for _, p := range outputs {
			if err := manifest.Delete(p); err != nil {
				return err
			}
		}
		_, _ = fmt.Fprintf(out, "   Deleted: %s\n", path)
		return nil
	},
}

// containerRemover is the subset of docker.Client used by down.
type containerRemover interface {
	RemoveContainer(ctx context.Context, id string) error
}

// runDown removes every container of m and returns the number of failures.
func runDown(ctx context.Context, out io.Writer, cli containerRemover, m *manifest.Manifest) int {
	_, _ = fmt.Fprintf(out, "🛑 Stopping %d container(s)...\n", len(m.Services))
	_, _ = fmt.Fprintln(out, "")

	var errs []string
	removed := 0
	for _, key := range m.Keys() {
		svc := m.Services[key]
		_, _ = fmt.Fprintf(out, "  Removing %s (%s)...", key, svc.Name)
		if svc.ID == "" {
			_, _ = fmt.Fprintln(out, " skipped, no container ID")
			continue
		}
		if err := cli.RemoveContainer(ctx, svc.ID); err != nil {
			_, _ = fmt.Fprintln(out, " ✗")
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
			continue
		}
		_, _ = fmt.Fprintf(out, " %s\n", checkmark)
		removed++
	}

	_, _ = fmt.Fprintln(out, "")
	_, _ = fmt.Fprintln(out, "✅ Down complete")
	_, _ = fmt.Fprintf(out, "   Removed: %d container(s)\n", removed)
	if len(errs) > 0 {
		_, _ = fmt.Fprintf(out, "   Failed: %d container(s)\n", len(errs))
		_, _ = fmt.Fprintln(out, "")
		_, _ = fmt.Fprintln(out, "⚠️  Errors encountered:")
		for _, msg := range errs {
			_, _ = fmt.Fprintf(out, "   - %s\n", msg)
		}
	}
	return len(errs)
}

func printRemovalPlan(out io.Writer, m *manifest.Manifest) {
	_, _ = fmt.Fprintf(out, "⚠️  Would remove %d container(s):\n", len(m.Services))
	_, _ = fmt.Fprintln(out, "")
	for _, key := range m.Keys() {
		svc := m.Services[key]
		_, _ = fmt.Fprintf(out, "  • %s (%s)\n", key, svc.Name)
	}
	_, _ = fmt.Fprintln(out, "")
}

// nolint:gochecknoinits // Standard Cobra pattern for command registration
func init() {
	rootCmd.AddCommand(downCmd)

	downCmd.Flags().BoolVar(&downDryRun, "dry-run", false, "show what would be removed without removing it")
	downCmd.Flags().StringVar(&downManifest, "manifest", "", "manifest file to read (default output.manifest_file)")
}
