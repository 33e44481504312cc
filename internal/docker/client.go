// Package docker provides a container runtime backed by the Docker Engine API.
package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"

	apperrors "github.com/zorak1103/tcfleet/internal/errors"
	"github.com/zorak1103/tcfleet/internal/fleet"
)

// Common errors
var (
	ErrConnectionFailed = errors.New("docker connection failed")
	ErrNotFound         = errors.New("container not found")
)

// stopTimeoutSeconds is the grace period given to containers on stop
const stopTimeoutSeconds = 10

// Client defines the Docker operations the runtime needs.
// All blocking methods accept context.Context for cancellation and timeout support.
type Client interface {
	// Ping verifies the Docker daemon is accessible. Returns error if connection fails.
	Ping(ctx context.Context) error
	// Close closes the Docker client connection and releases resources.
	Close() error
	// DaemonHost returns the daemon address the client talks to, e.g. unix:///var/run/docker.sock.
	DaemonHost() string

	// EnsureImage pulls ref unless it is already present locally.
	EnsureImage(ctx context.Context, ref string) error
	// CreateContainer creates (but does not start) a container and returns its ID.
	CreateContainer(ctx context.Context, req CreateRequest) (string, error)
	// StartContainer starts a created container.
	StartContainer(ctx context.Context, id string) error
	// InspectContainer returns name, run state and published ports of a container.
	InspectContainer(ctx context.Context, id string) (ContainerState, error)
	// FollowLogs streams the demultiplexed stdout and stderr of a container until ctx ends.
	FollowLogs(ctx context.Context, id string) (io.ReadCloser, error)
	// RemoveContainer stops and force-removes a container together with its anonymous volumes.
	RemoveContainer(ctx context.Context, id string) error
}

// dockerClientWrapper wraps the Docker SDK client to implement our interface
type dockerClientWrapper struct {
	cli        *client.Client
	socketPath string
}

// Compile-time verification that dockerClientWrapper implements Client
var _ Client = (*dockerClientWrapper)(nil)

// NewClient connects to the Docker daemon at socketPath (or default if empty).
func NewClient(socketPath string) (Client, error) {
	opts := []client.Opt{
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	}

	// Add host option if socket path is specified
	if socketPath != "" {
		opts = append(opts, client.WithHost(socketPath))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, &apperrors.DockerConnectionError{SocketPath: socketPath, Operation: "create client", Err: err}
	}

	return &dockerClientWrapper{cli: cli, socketPath: socketPath}, nil
}

func (w *dockerClientWrapper) Ping(ctx context.Context) error {
	if _, err := w.cli.Ping(ctx); err != nil {
		return &apperrors.DockerConnectionError{
			SocketPath: w.socketPath,
			Operation:  "ping",
			Err:        fmt.Errorf("%w: %w", ErrConnectionFailed, err),
		}
	}
	return nil
}

func (w *dockerClientWrapper) Close() error {
	return w.cli.Close()
}

func (w *dockerClientWrapper) DaemonHost() string {
	return w.cli.DaemonHost()
}

func (w *dockerClientWrapper) EnsureImage(ctx context.Context, ref string) error {
	if _, err := w.cli.ImageInspect(ctx, ref); err == nil {
		return nil
	}

	reader, err := w.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	// Pull progress is not actionable; drain it so the pull completes
	defer func() { _ = reader.Close() }()

	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	return nil
}

func (w *dockerClientWrapper) CreateContainer(ctx context.Context, req CreateRequest) (string, error) {
	exposed, bindings := portSpecs(req.Ports)

	cfg := &container.Config{
		Image:        req.Image,
		Env:          envList(req.Env),
		ExposedPorts: exposed,
		Labels:       fleet.Labels(req.Image),
	}
	hostCfg := &container.HostConfig{
		PortBindings: bindings,
	}

	resp, err := w.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, req.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create container from %s: %w", req.Image, err)
	}
	return resp.ID, nil
}

func (w *dockerClientWrapper) StartContainer(ctx context.Context, id string) error {
	if err := w.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container %s: %w", shortID(id), err)
	}
	return nil
}

func (w *dockerClientWrapper) InspectContainer(ctx context.Context, id string) (ContainerState, error) {
	resp, err := w.cli.ContainerInspect(ctx, id)
	if err != nil {
		if client.IsErrNotFound(err) {
			return ContainerState{}, fmt.Errorf("%w: %s", ErrNotFound, shortID(id))
		}
		return ContainerState{}, fmt.Errorf("failed to inspect container %s: %w", shortID(id), err)
	}

	state := ContainerState{
		ID:   resp.ID,
		Name: strings.TrimPrefix(resp.Name, "/"),
	}
	if resp.State != nil {
		state.Running = resp.State.Running
	}
	if resp.NetworkSettings != nil {
		state.Ports = publishedPorts(resp.NetworkSettings.Ports)
	}
	return state, nil
}

func (w *dockerClientWrapper) FollowLogs(ctx context.Context, id string) (io.ReadCloser, error) {
	reader, err := w.cli.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read logs for container %s: %w", shortID(id), err)
	}
	return demux(reader), nil
}

func (w *dockerClientWrapper) RemoveContainer(ctx context.Context, id string) error {
	timeout := stopTimeoutSeconds
	// A container that already exited cannot be stopped; removal below still applies
	_ = w.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout})

	if err := w.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to remove container %s: %w", shortID(id), err)
	}
	return nil
}

// demux splits the multiplexed log stream into a single plain text stream.
func demux(rc io.ReadCloser) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(pw, pw, rc)
		_ = rc.Close()
		pw.CloseWithError(err)
	}()
	return &demuxReader{PipeReader: pr, src: rc}
}

type demuxReader struct {
	*io.PipeReader
	src io.Closer
}

func (d *demuxReader) Close() error {
	_ = d.src.Close()
	return d.PipeReader.Close()
}

// portSpecs exposes every port over TCP and binds it to a random host port.
func portSpecs(ports []int) (nat.PortSet, nat.PortMap) {
	if len(ports) == 0 {
		return nil, nil
	}
	exposed := make(nat.PortSet, len(ports))
	bindings := make(nat.PortMap, len(ports))
	for _, p := range ports {
		port := nat.Port(fmt.Sprintf("%d/tcp", p))
		exposed[port] = struct{}{}
		bindings[port] = []nat.PortBinding{{HostIP: "", HostPort: ""}}
	}
	return exposed, bindings
}

// publishedPorts flattens a port map to container port -> first host port.
func publishedPorts(pm nat.PortMap) map[int]int {
	out := make(map[int]int, len(pm))
	for port, bindings := range pm {
		if port.Proto() != "tcp" {
			continue
		}
		for _, b := range bindings {
			hostPort, err := strconv.Atoi(b.HostPort)
			if err != nil || hostPort == 0 {
				continue
			}
			out[port.Int()] = hostPort
			break
		}
	}
	return out
}

func envList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
