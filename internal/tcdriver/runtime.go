// Package tcdriver implements the fleet runtime on top of testcontainers-go.
package tcdriver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	apperrors "github.com/zorak1103/tcfleet/internal/errors"
	"github.com/zorak1103/tcfleet/internal/fleet"
)

const (
	defaultStartupTimeout = 60 * time.Second
	terminateTimeout      = 30 * time.Second
)

// Container is the subset of testcontainers.Container the runtime uses.
type Container interface {
	GetContainerID() string
	Host(ctx context.Context) (string, error)
	Name(ctx context.Context) (string, error)
	MappedPort(ctx context.Context, port nat.Port) (nat.Port, error)
	Terminate(ctx context.Context, opts ...testcontainers.TerminateOption) error
}

// StartFunc creates and starts a container from a request.
type StartFunc func(ctx context.Context, req testcontainers.GenericContainerRequest) (Container, error)

// GenericStart starts containers with testcontainers.GenericContainer.
func GenericStart(ctx context.Context, req testcontainers.GenericContainerRequest) (Container, error) {
	c, err := testcontainers.GenericContainer(ctx, req)
	if c == nil {
		return nil, err
	}
	return c, err
}

// Runtime creates containers through testcontainers-go.
type Runtime struct {
	start          StartFunc
	startupTimeout time.Duration
	logger         *slog.Logger
}

// Compile-time verification that Runtime implements fleet.Runtime
var _ fleet.Runtime = (*Runtime)(nil)

// New returns a runtime. A nil start uses GenericStart; startupTimeout is the
// readiness ceiling for containers without their own timeout and for log waits.
func New(start StartFunc, startupTimeout time.Duration, logger *slog.Logger) *Runtime {
	if start == nil {
		start = GenericStart
	}
	if startupTimeout <= 0 {
		startupTimeout = defaultStartupTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{start: start, startupTimeout: startupTimeout, logger: logger}
}

// Create returns an unstarted container request for image:tag.
func (r *Runtime) Create(image, tag string) fleet.ContainerHandle {
	ref := image
	if tag != "" {
		ref = image + ":" + tag
	}
	return &request{rt: r, ref: ref, env: map[string]string{}}
}

type request struct {
	rt             *Runtime
	ref            string
	name           string
	env            map[string]string
	ports          []int
	startupTimeout time.Duration
	logText        string
}

func (q *request) WithExposedPorts(ports ...int) fleet.ContainerHandle {
	q.ports = append(q.ports, ports...)
	return q
}

func (q *request) WithEnv(key, value string) fleet.ContainerHandle {
	q.env[key] = value
	return q
}

func (q *request) WithName(name string) fleet.ContainerHandle {
	q.name = name
	return q
}

func (q *request) WithStartupTimeout(d time.Duration) fleet.ContainerHandle {
	q.startupTimeout = d
	return q
}

func (q *request) WithLogWait(text string) fleet.ContainerHandle {
	q.logText = text
	return q
}

// containerRequest translates the accumulated options into a testcontainers request.
func (q *request) containerRequest() testcontainers.GenericContainerRequest {
	exposed := make([]string, 0, len(q.ports))
	for _, p := range q.ports {
		exposed = append(exposed, string(portOf(p)))
	}

	req := testcontainers.ContainerRequest{
		Image:        q.ref,
		Name:         q.name,
		ExposedPorts: exposed,
		Labels:       fleet.Labels(q.ref),
		WaitingFor:   q.waitStrategy(),
	}
	if len(q.env) > 0 {
		req.Env = q.env
	}
	return testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true}
}

// waitStrategy: a log wait replaces the default wait on every exposed port.
func (q *request) waitStrategy() wait.Strategy {
	if q.logText != "" {
		return wait.ForLog(q.logText).WithStartupTimeout(q.rt.startupTimeout)
	}
	if len(q.ports) == 0 {
		return nil
	}

	timeout := q.startupTimeout
	if timeout <= 0 {
		timeout = q.rt.startupTimeout
	}
	strategies := make([]wait.Strategy, 0, len(q.ports))
	for _, p := range q.ports {
		strategies = append(strategies, wait.ForListeningPort(portOf(p)).WithStartupTimeout(timeout))
	}
	return wait.ForAll(strategies...).WithDeadline(timeout)
}

func (q *request) Start(ctx context.Context) (fleet.StartedHandle, error) {
	log := q.rt.logger.With("image", q.ref)
	log.Debug("starting container")

	c, err := q.rt.start(ctx, q.containerRequest())
	if err != nil {
		if c != nil {
			q.rt.terminate(ctx, c, log)
		}
		return nil, classify(ctx, err)
	}

	started, err := q.describe(ctx, c)
	if err != nil {
		q.rt.terminate(ctx, c, log)
		return nil, err
	}
	log.Debug("container ready", "name", started.name, "ports", started.ports)
	return started, nil
}

// describe reads host, name and the published ports once so the handle
// answers without further daemon calls.
func (q *request) describe(ctx context.Context, c Container) (*startedContainer, error) {
	host, err := c.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve host of %s: %w", q.ref, err)
	}
	name, err := c.Name(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve name of %s: %w", q.ref, err)
	}

	ports := make(map[int]int, len(q.ports))
	for _, p := range q.ports {
		mapped, err := c.MappedPort(ctx, portOf(p))
		if err != nil {
			continue
		}
		ports[p] = mapped.Int()
	}

	return &startedContainer{
		rt:    q.rt,
		c:     c,
		host:  host,
		name:  strings.TrimPrefix(name, "/"),
		ports: ports,
	}, nil
}

func (r *Runtime) terminate(ctx context.Context, c Container, log *slog.Logger) {
	termCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminateTimeout)
	defer cancel()
	if err := c.Terminate(termCtx); err != nil {
		log.Warn("failed to terminate container", "error", err)
	}
}

// classify marks wait deadlines as startup timeouts unless the caller's
// context ended first.
func classify(ctx context.Context, err error) error {
	if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", apperrors.ErrStartupTimeout, err)
	}
	return err
}

func portOf(p int) nat.Port {
	return nat.Port(fmt.Sprintf("%d/tcp", p))
}

type startedContainer struct {
	rt    *Runtime
	c     Container
	host  string
	name  string
	ports map[int]int
}

func (s *startedContainer) ID() string   { return s.c.GetContainerID() }
func (s *startedContainer) Host() string { return s.host }
func (s *startedContainer) Name() string { return s.name }

func (s *startedContainer) MappedPort(port int) (int, bool) {
	p, ok := s.ports[port]
	return p, ok
}

func (s *startedContainer) Stop(ctx context.Context) error {
	s.rt.logger.Debug("terminating container", "name", s.name)
	return s.c.Terminate(ctx)
}
