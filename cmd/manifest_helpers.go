package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/zorak1103/tcfleet/internal/config"
	"github.com/zorak1103/tcfleet/internal/docker"
	"github.com/zorak1103/tcfleet/internal/manifest"
)

// newDockerClient is replaced in tests.
var newDockerClient = connectDocker

// connectDocker opens and pings a Docker client.
func connectDocker(ctx context.Context, socketPath string) (docker.Client, error) {
	cli, err := docker.NewClient(socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}
	if err := cli.Ping(ctx); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("failed to connect to Docker: %w", err)
	}
	return cli, nil
}

// manifestPath picks the --manifest flag over output.manifest_file.
func manifestPath(cfg *config.Config, flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if cfg != nil && cfg.Output.ManifestFile != "" {
		return cfg.Output.ManifestFile, nil
	}
	return "", fmt.Errorf("no manifest file: set output.manifest_file or pass --manifest")
}

// loadManifest reads the manifest and turns a missing file into a hint.
func loadManifest(path string) (*manifest.Manifest, error) {
	m, err := manifest.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("no running fleet recorded in %s\n\nStart one with: tcfleet up --detach", path)
	}
	return m, err
}

// socketPath returns the configured Docker socket, empty for the environment default.
func socketPath(cfg *config.Config) string {
	if cfg == nil {
		return ""
	}
	return cfg.Runtime.SocketPath
}
