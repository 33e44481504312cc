package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zorak1103/tcfleet/internal/docker"
	"github.com/zorak1103/tcfleet/internal/fleet"
	"github.com/zorak1103/tcfleet/internal/manifest"
)

// fakeRuntime implements fleet.Runtime. Every exposed port p is published as p+30000.
type fakeRuntime struct {
	failImages map[string]error

	mu      sync.Mutex
	started []*fakeStarted
	seq     atomic.Int32
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{failImages: map[string]error{}}
}

func (r *fakeRuntime) Create(image, _ string) fleet.ContainerHandle {
	return &fakeHandle{rt: r, image: image}
}

func (r *fakeRuntime) stoppedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.started {
		if s.stopped.Load() {
			n++
		}
	}
	return n
}

type fakeHandle struct {
	rt    *fakeRuntime
	image string
	name  string
	ports []int
}

func (h *fakeHandle) WithExposedPorts(ports ...int) fleet.ContainerHandle {
	h.ports = append(h.ports, ports...)
	return h
}

func (h *fakeHandle) WithEnv(_, _ string) fleet.ContainerHandle { return h }

func (h *fakeHandle) WithName(name string) fleet.ContainerHandle {
	h.name = name
	return h
}

func (h *fakeHandle) WithStartupTimeout(_ time.Duration) fleet.ContainerHandle { return h }

func (h *fakeHandle) WithLogWait(_ string) fleet.ContainerHandle { return h }

func (h *fakeHandle) Start(_ context.Context) (fleet.StartedHandle, error) {
	if err := h.rt.failImages[h.image]; err != nil {
		return nil, err
	}
	n := h.rt.seq.Add(1)
	name := h.name
	if name == "" {
		name = fmt.Sprintf("%s-%d", h.image, n)
	}
	ports := make(map[int]int, len(h.ports))
	for _, p := range h.ports {
		ports[p] = p + 30000
	}
	s := &fakeStarted{id: fmt.Sprintf("id-%s-%d", h.image, n), name: name, ports: ports}

	h.rt.mu.Lock()
	h.rt.started = append(h.rt.started, s)
	h.rt.mu.Unlock()
	return s, nil
}

type fakeStarted struct {
	id      string
	name    string
	ports   map[int]int
	stopped atomic.Bool
}

func (s *fakeStarted) ID() string   { return s.id }
func (s *fakeStarted) Host() string { return "127.0.0.1" }
func (s *fakeStarted) Name() string { return s.name }

func (s *fakeStarted) MappedPort(port int) (int, bool) {
	p, ok := s.ports[port]
	return p, ok
}

func (s *fakeStarted) Stop(_ context.Context) error {
	s.stopped.Store(true)
	return nil
}

// captureNotifier records notifications instead of sending them.
type captureNotifier struct {
	ups      int
	failures int
	lastErr  error
}

func (c *captureNotifier) SendFleetUp(_ *manifest.Manifest, _ time.Duration) error {
	c.ups++
	return nil
}

func (c *captureNotifier) SendFleetFailure(err error, _ int) error {
	c.failures++
	c.lastErr = err
	return nil
}

// fakeDocker implements the container lookups used by down and status.
type fakeDocker struct {
	states    map[string]docker.ContainerState
	removeErr map[string]error
	removed   []string
}

func (f *fakeDocker) RemoveContainer(_ context.Context, id string) error {
	if err := f.removeErr[id]; err != nil {
		return err
	}
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeDocker) InspectContainer(_ context.Context, id string) (docker.ContainerState, error) {
	st, ok := f.states[id]
	if !ok {
		return docker.ContainerState{}, fmt.Errorf("%w: %s", docker.ErrNotFound, id)
	}
	if st.ID == "broken" {
		return docker.ContainerState{}, errors.New("daemon error")
	}
	return st, nil
}
