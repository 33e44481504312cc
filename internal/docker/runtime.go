package docker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"time"

	apperrors "github.com/zorak1103/tcfleet/internal/errors"
	"github.com/zorak1103/tcfleet/internal/fleet"
)

const (
	defaultStartupTimeout = 60 * time.Second
	defaultPollInterval   = 250 * time.Millisecond
	dialTimeout           = time.Second
	cleanupTimeout        = 30 * time.Second
)

// DialFunc opens a connection, used to probe published ports.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Runtime creates containers through a Docker daemon.
type Runtime struct {
	cli            Client
	host           string
	startupTimeout time.Duration
	pollInterval   time.Duration
	dial           DialFunc
	logger         *slog.Logger
}

// Compile-time verification that Runtime implements fleet.Runtime
var _ fleet.Runtime = (*Runtime)(nil)

// Option configures a Runtime.
type Option func(*Runtime)

// WithStartupTimeout sets the readiness ceiling used when a container
// does not carry its own timeout, including every log wait.
func WithStartupTimeout(d time.Duration) Option {
	return func(r *Runtime) {
		if d > 0 {
			r.startupTimeout = d
		}
	}
}

// WithPollInterval sets how often port readiness is re-checked.
func WithPollInterval(d time.Duration) Option {
	return func(r *Runtime) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// WithDialer replaces the dialer used to probe published ports.
func WithDialer(dial DialFunc) Option {
	return func(r *Runtime) {
		if dial != nil {
			r.dial = dial
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runtime) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRuntime returns a runtime that manages containers through cli.
func NewRuntime(cli Client, opts ...Option) *Runtime {
	d := &net.Dialer{Timeout: dialTimeout}
	r := &Runtime{
		cli:            cli,
		host:           hostFromDaemon(cli.DaemonHost()),
		startupTimeout: defaultStartupTimeout,
		pollInterval:   defaultPollInterval,
		dial:           d.DialContext,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Host returns the address published ports are reachable on.
func (r *Runtime) Host() string {
	return r.host
}

// Create returns an unstarted container request for image:tag.
func (r *Runtime) Create(image, tag string) fleet.ContainerHandle {
	ref := image
	if tag != "" {
		ref = image + ":" + tag
	}
	return &containerRequest{rt: r, ref: ref, env: map[string]string{}}
}

// hostFromDaemon maps the daemon address to the host that published ports
// bind on. Local transports (unix, npipe) publish on localhost.
func hostFromDaemon(daemonHost string) string {
	u, err := url.Parse(daemonHost)
	if err != nil {
		return "localhost"
	}
	switch u.Scheme {
	case "tcp", "http", "https", "ssh":
		if h := u.Hostname(); h != "" {
			return h
		}
	}
	return "localhost"
}

type containerRequest struct {
	rt             *Runtime
	ref            string
	name           string
	env            map[string]string
	ports          []int
	startupTimeout time.Duration
	logText        string
}

func (c *containerRequest) WithExposedPorts(ports ...int) fleet.ContainerHandle {
	c.ports = append(c.ports, ports...)
	return c
}

func (c *containerRequest) WithEnv(key, value string) fleet.ContainerHandle {
	c.env[key] = value
	return c
}

func (c *containerRequest) WithName(name string) fleet.ContainerHandle {
	c.name = name
	return c
}

func (c *containerRequest) WithStartupTimeout(d time.Duration) fleet.ContainerHandle {
	c.startupTimeout = d
	return c
}

func (c *containerRequest) WithLogWait(text string) fleet.ContainerHandle {
	c.logText = text
	return c
}

// Start pulls the image if needed, creates and starts the container, then
// blocks until it is ready. A log wait replaces the default port wait.
func (c *containerRequest) Start(ctx context.Context) (fleet.StartedHandle, error) {
	rt := c.rt
	log := rt.logger.With("image", c.ref)

	log.Debug("ensuring image")
	if err := rt.cli.EnsureImage(ctx, c.ref); err != nil {
		return nil, err
	}

	id, err := rt.cli.CreateContainer(ctx, CreateRequest{
		Image: c.ref,
		Name:  c.name,
		Env:   c.env,
		Ports: c.ports,
	})
	if err != nil {
		return nil, err
	}
	log = log.With("container", shortID(id))

	if err := rt.cli.StartContainer(ctx, id); err != nil {
		rt.discard(ctx, id, log)
		return nil, err
	}
	log.Debug("container started")

	if err := c.waitUntilReady(ctx, id); err != nil {
		log.Debug("container not ready, removing", "error", err)
		rt.discard(ctx, id, log)
		return nil, err
	}

	state, err := rt.cli.InspectContainer(ctx, id)
	if err != nil {
		rt.discard(ctx, id, log)
		return nil, err
	}
	log.Debug("container ready", "name", state.Name, "ports", state.Ports)

	return &startedContainer{rt: rt, id: id, name: state.Name, ports: state.Ports}, nil
}

func (c *containerRequest) waitUntilReady(ctx context.Context, id string) error {
	rt := c.rt
	if c.logText != "" {
		waitCtx, cancel := context.WithTimeout(ctx, rt.startupTimeout)
		defer cancel()

		logs, err := rt.cli.FollowLogs(waitCtx, id)
		if err != nil {
			return err
		}
		if err := waitForLogText(waitCtx, logs, c.logText); err != nil {
			return timeoutError(ctx, err, fmt.Sprintf("log text %q not seen within %s", c.logText, rt.startupTimeout))
		}
		return nil
	}

	if len(c.ports) == 0 {
		return nil
	}

	timeout := c.startupTimeout
	if timeout <= 0 {
		timeout = rt.startupTimeout
	}
	return rt.waitForPorts(ctx, id, c.ports, timeout)
}

// waitForPorts polls until every published port accepts a TCP connection.
func (r *Runtime) waitForPorts(ctx context.Context, id string, ports []int, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	pending := ports[0]
	for {
		state, err := r.cli.InspectContainer(waitCtx, id)
		switch {
		case err != nil && waitCtx.Err() == nil:
			return err
		case err == nil && !state.Running:
			return fmt.Errorf("container %s exited before becoming ready", shortID(id))
		case err == nil:
			pending = r.firstUnreachable(waitCtx, state.Ports, ports)
			if pending == 0 {
				return nil
			}
		}

		select {
		case <-waitCtx.Done():
			return timeoutError(ctx, waitCtx.Err(), fmt.Sprintf("port %d not reachable within %s", pending, timeout))
		case <-ticker.C:
		}
	}
}

// firstUnreachable returns the first requested port that is unpublished or
// refuses connections, or 0 when all are reachable.
func (r *Runtime) firstUnreachable(ctx context.Context, published map[int]int, ports []int) int {
	for _, p := range ports {
		hostPort, ok := published[p]
		if !ok {
			return p
		}
		conn, err := r.dial(ctx, "tcp", net.JoinHostPort(r.host, strconv.Itoa(hostPort)))
		if err != nil {
			return p
		}
		_ = conn.Close()
	}
	return 0
}

// discard removes a container that will not be handed to the caller.
func (r *Runtime) discard(ctx context.Context, id string, log *slog.Logger) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := r.cli.RemoveContainer(cleanupCtx, id); err != nil {
		log.Warn("failed to remove container", "error", err)
	}
}

// timeoutError wraps ErrStartupTimeout when the wait ran out of time rather
// than being cancelled by the caller.
func timeoutError(parent context.Context, err error, msg string) error {
	if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
		return fmt.Errorf("%s: %w", msg, apperrors.ErrStartupTimeout)
	}
	if parent.Err() != nil {
		return parent.Err()
	}
	return err
}

type startedContainer struct {
	rt    *Runtime
	id    string
	name  string
	ports map[int]int
}

func (s *startedContainer) ID() string   { return s.id }
func (s *startedContainer) Host() string { return s.rt.host }
func (s *startedContainer) Name() string { return s.name }

func (s *startedContainer) MappedPort(port int) (int, bool) {
	p, ok := s.ports[port]
	return p, ok
}

func (s *startedContainer) Stop(ctx context.Context) error {
	s.rt.logger.Debug("removing container", "container", shortID(s.id), "name", s.name)
	return s.rt.cli.RemoveContainer(ctx, s.id)
}
