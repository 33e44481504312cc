package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/zorak1103/tcfleet/internal/config"
	"github.com/zorak1103/tcfleet/internal/docker"
	"github.com/zorak1103/tcfleet/internal/fleet"
	"github.com/zorak1103/tcfleet/internal/manifest"
	"github.com/zorak1103/tcfleet/internal/tcdriver"
)

// teardownTimeout bounds stopping a fleet after the tests finished
const teardownTimeout = 2 * time.Minute

// requireConfig returns a user-friendly error when no usable configuration is loaded.
func requireConfig(cfg *config.Config, loadErr error) error {
	if loadErr != nil {
		return fmt.Errorf("invalid configuration: %w", loadErr)
	}
	if cfg == nil {
		return fmt.Errorf("configuration not loaded\n\nTo get started, run: tcfleet init")
	}
	if len(cfg.Containers) == 0 {
		source := cfg.ConfigFilePath
		if source == "" {
			source = "no configuration file found"
		}
		return fmt.Errorf("no containers configured (%s)\n\nRun 'tcfleet init' to create a sample tcfleet.yaml", source)
	}
	return nil
}

// fleetRuntime is a container runtime plus the resources to release after use.
type fleetRuntime struct {
	fleet.Runtime
	close func() error
}

// newRuntime is replaced in tests.
var newRuntime = openRuntime

// openRuntime connects the configured driver.
func openRuntime(ctx context.Context, cfg *config.Config, log *slog.Logger) (*fleetRuntime, error) {
	switch cfg.Runtime.Driver {
	case config.DriverTestcontainers:
		rt := tcdriver.New(nil, cfg.Runtime.StartupTimeout, log)
		return &fleetRuntime{Runtime: rt, close: func() error { return nil }}, nil

	case config.DriverDocker:
		cli, err := docker.NewClient(cfg.Runtime.SocketPath)
		if err != nil {
			return nil, err
		}
		if err := cli.Ping(ctx); err != nil {
			_ = cli.Close()
			return nil, err
		}
		rt := docker.NewRuntime(cli,
			docker.WithStartupTimeout(cfg.Runtime.StartupTimeout),
			docker.WithLogger(log),
		)
		log.Debug("connected to docker", "daemon", cli.DaemonHost(), "published_host", rt.Host())
		return &fleetRuntime{Runtime: rt, close: cli.Close}, nil

	default:
		return nil, fmt.Errorf("unknown runtime driver %q", cfg.Runtime.Driver)
	}
}

// newFleetLauncher applies the runtime settings to a fleet launcher.
func newFleetLauncher(cfg *config.Config, rt fleet.Runtime) *fleet.FleetLauncher {
	l := fleet.NewLauncher(rt)
	if cfg.Runtime.StrictPorts {
		l.Extractor = fleet.ExtractorFunc(fleet.StrictExtractMetaInfo)
	}
	fl := fleet.NewFleetLauncher(l)
	fl.MaxConcurrency = cfg.Runtime.MaxConcurrency
	return fl
}

// fleetNotifier is the subset of notification.Notifier used by the commands.
type fleetNotifier interface {
	SendFleetUp(m *manifest.Manifest, elapsed time.Duration) error
	SendFleetFailure(launchErr error, total int) error
}

// launchFleet starts every configured container. On failure the containers
// that did start are stopped before the error is returned.
func launchFleet(ctx context.Context, out io.Writer, cfg *config.Config, rt fleet.Runtime, n fleetNotifier) (fleet.FleetResult, *manifest.Manifest, error) {
	fc, err := cfg.Fleet()
	if err != nil {
		return nil, nil, err
	}

	_, _ = fmt.Fprintf(out, "🚀 Starting %d container(s) with the %s driver...\n", len(fc), cfg.Runtime.Driver)
	start := time.Now()

	result, err := newFleetLauncher(cfg, rt).Launch(ctx, fc)
	if err != nil {
		var ff *fleet.FleetFailure
		if errors.As(err, &ff) {
			_, _ = fmt.Fprintf(out, "❌ Failed to start: %s\n", strings.Join(ff.FailedKeys(), ", "))
		}
		if ff != nil && len(ff.Started) > 0 {
			_, _ = fmt.Fprintf(out, "🧹 Stopping %d container(s) that did start...\n", len(ff.Started))
			if stopErr := teardown(ff.Started); stopErr != nil {
				logger.Warn("teardown after failed launch was incomplete", "error", stopErr)
			}
		}
		if notifyErr := n.SendFleetFailure(err, len(fc)); notifyErr != nil {
			logger.Warn("failed to send notification", "error", notifyErr)
		}
		return nil, nil, err
	}

	elapsed := time.Since(start)
	m := manifest.FromResult(cfg.Runtime.Driver, result)
	_, _ = fmt.Fprintf(out, "✅ Fleet ready in %s\n\n", elapsed.Round(time.Millisecond))
	printFleetTable(out, fc.Keys(), m)

	if err := writeOutputs(out, cfg, m); err != nil {
		if stopErr := teardown(result); stopErr != nil {
			logger.Warn("teardown was incomplete", "error", stopErr)
		}
		return nil, nil, err
	}

	if notifyErr := n.SendFleetUp(m, elapsed); notifyErr != nil {
		logger.Warn("failed to send notification", "error", notifyErr)
	}
	return result, m, nil
}

// writeOutputs writes the manifest and dotenv files when configured.
func writeOutputs(out io.Writer, cfg *config.Config, m *manifest.Manifest) error {
	if path := cfg.Output.ManifestFile; path != "" {
		if err := m.Save(path); err != nil {
			return fmt.Errorf("failed to write manifest: %w", err)
		}
		_, _ = fmt.Fprintf(out, "📄 Manifest: %s\n", path)
	}
	if path := cfg.Output.EnvFile; path != "" {
		if err := m.WriteEnvFile(path, cfg.Output.EnvPrefix); err != nil {
			return fmt.Errorf("failed to write env file: %w", err)
		}
		_, _ = fmt.Fprintf(out, "📄 Env file: %s\n", path)
	}
	return nil
}

// removeOutputs deletes the files written by writeOutputs.
func removeOutputs(cfg *config.Config) {
	for _, path := range []string{cfg.Output.ManifestFile, cfg.Output.EnvFile} {
		if path == "" {
			continue
		}
		if err := manifest.Delete(path); err != nil {
			logger.Warn("failed to remove output file", "path", path, "error", err)
		}
	}
}

// teardown stops a fleet with a fresh context so it also runs after cancellation.
func teardown(result fleet.FleetResult) error {
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	return fleet.Teardown(ctx, result)
}

// printFleetTable writes one row per service in the given key order.
func printFleetTable(out io.Writer, keys []string, m *manifest.Manifest) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "Service\tContainer\tHost\tPorts")
	_, _ = fmt.Fprintln(w, "-------\t---------\t----\t-----")

	for _, key := range keys {
		svc, ok := m.Services[key]
		if !ok {
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", key, svc.Name, svc.IP, formatPortMappings(svc.Ports))
	}
	_ = w.Flush() // Flush buffered output; error not actionable in CLI display context
	_, _ = fmt.Fprintln(out, "")
}

// formatPortMappings renders container->host pairs sorted by container port.
func formatPortMappings(ports map[int]int) string {
	if len(ports) == 0 {
		return "-"
	}
	keys := make([]int, 0, len(ports))
	for p := range ports {
		keys = append(keys, p)
	}
	sort.Ints(keys)

	parts := make([]string, 0, len(keys))
	for _, p := range keys {
		parts = append(parts, strconv.Itoa(p)+"->"+strconv.Itoa(ports[p]))
	}
	return strings.Join(parts, ", ")
}
