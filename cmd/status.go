package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/zorak1103/tcfleet/internal/docker"
	"github.com/zorak1103/tcfleet/internal/manifest"
)

var statusManifest string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the fleet recorded in the manifest",
	Long: `Display every service recorded in the manifest together with its live
container state as reported by Docker.`,
	Example: `  # Show the fleet started with 'tcfleet up --detach'
  tcfleet status`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := GetConfigLoadError(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		cfg := GetConfig()

		path, err := manifestPath(cfg, statusManifest)
		if err != nil {
			return err
		}
		m, err := loadManifest(path)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		cli, err := newDockerClient(ctx, socketPath(cfg))
		if err != nil {
			return err
		}
		defer func() { _ = cli.Close() }() // Close client; error not actionable in defer context

		printStatus(ctx, cmd.OutOrStdout(), cli, m)
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Manifest: %s\n", path)
		return nil
	},
}

// containerInspector is the subset of docker.Client used by status.
type containerInspector interface {
	InspectContainer(ctx context.Context, id string) (docker.ContainerState, error)
}

func printStatus(ctx context.Context, out io.Writer, cli containerInspector, m *manifest.Manifest) {
	_, _ = fmt.Fprintln(out, "📊 Fleet Status:")
	_, _ = fmt.Fprintln(out, "")

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "Service\tContainer ID\tName\tState\tPorts")
	_, _ = fmt.Fprintln(w, "-------\t------------\t----\t-----\t-----")

	running := 0
	for _, key := range m.Keys() {
		svc := m.Services[key]
		state := containerState(ctx, cli, svc.ID)
		if state == "running" {
			running++
		}
		id := svc.ID
		if len(id) > 12 {
			id = id[:12]
		}
		if id == "" {
			id = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", key, id, svc.Name, state, formatPortMappings(svc.Ports))
	}

	_ = w.Flush() // Flush buffered output; error not actionable in CLI display context
	_, _ = fmt.Fprintln(out, "")
	_, _ = fmt.Fprintf(out, "Running: %d of %d container(s)\n", running, len(m.Services))
	_, _ = fmt.Fprintf(out, "Started: %s (%s driver)\n", m.CreatedAt.Format(time.RFC3339), m.Driver)
}

func containerState(ctx context.Context, cli containerInspector, id string) string {
	if id == "" {
		return "unknown"
	}
	st, err := cli.InspectContainer(ctx, id)
	switch {
	case errors.Is(err, docker.ErrNotFound):
		return "missing"
	case err != nil:
		return "error"
	case st.Running:
		return "running"
	default:
		return "stopped"
	}
}

// nolint:gochecknoinits // Standard Cobra pattern for command registration
func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusManifest, "manifest", "", "manifest file to read (default output.manifest_file)")
}
