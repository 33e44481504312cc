package fleet

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// fakeRuntime implements Runtime for testing. Every started container shares
// the same host and the same container->host port table.
type fakeRuntime struct {
	host     string
	mappings map[int]int
	startErr map[string]error // keyed by image

	mu      sync.Mutex
	handles []*fakeHandle
	starts  atomic.Int32
	seq     atomic.Int32
}

func newFakeRuntime(mappings map[int]int) *fakeRuntime {
	return &fakeRuntime{
		host:     "127.0.0.1",
		mappings: mappings,
		startErr: map[string]error{},
	}
}

func (r *fakeRuntime) Create(image, tag string) ContainerHandle {
	h := &fakeHandle{rt: r, image: image, tag: tag, env: map[string]string{}}
	r.mu.Lock()
	r.handles = append(r.handles, h)
	r.mu.Unlock()
	return h
}

type fakeHandle struct {
	rt             *fakeRuntime
	image          string
	tag            string
	name           string
	ports          []int
	env            map[string]string
	envOrder       []string
	startupTimeout time.Duration
	logWait        string
	exposeCalls    int
}

func (h *fakeHandle) WithExposedPorts(ports ...int) ContainerHandle {
	h.exposeCalls++
	h.ports = append(h.ports, ports...)
	return h
}

func (h *fakeHandle) WithEnv(key, value string) ContainerHandle {
	h.env[key] = value
	h.envOrder = append(h.envOrder, key)
	return h
}

func (h *fakeHandle) WithName(name string) ContainerHandle {
	h.name = name
	return h
}

func (h *fakeHandle) WithStartupTimeout(d time.Duration) ContainerHandle {
	h.startupTimeout = d
	return h
}

func (h *fakeHandle) WithLogWait(text string) ContainerHandle {
	h.logWait = text
	return h
}

func (h *fakeHandle) Start(_ context.Context) (StartedHandle, error) {
	h.rt.starts.Add(1)
	if err := h.rt.startErr[h.image]; err != nil {
		return nil, err
	}

	n := h.rt.seq.Add(1)
	name := h.name
	if name == "" {
		name = fmt.Sprintf("fake-%s-%d", h.image, n)
	}

	ports := make(map[int]int)
	for _, p := range h.ports {
		if mapped, ok := h.rt.mappings[p]; ok {
			ports[p] = mapped
		}
	}

	return &fakeStarted{
		id:        fmt.Sprintf("id-%d", n),
		host:      h.rt.host,
		name:      name,
		ports:     ports,
		logWaited: h.logWait,
	}, nil
}

type fakeStarted struct {
	id        string
	host      string
	name      string
	ports     map[int]int
	logWaited string
	stopErr   error
	stopped   atomic.Bool
}

func (s *fakeStarted) ID() string   { return s.id }
func (s *fakeStarted) Host() string { return s.host }
func (s *fakeStarted) Name() string { return s.name }

func (s *fakeStarted) MappedPort(port int) (int, bool) {
	p, ok := s.ports[port]
	return p, ok
}

func (s *fakeStarted) Stop(_ context.Context) error {
	s.stopped.Store(true)
	return s.stopErr
}

// launcherFunc adapts a function to ContainerLauncher.
type launcherFunc func(ctx context.Context, spec ContainerSpec) (*StartedContainerInfo, error)

func (f launcherFunc) Start(ctx context.Context, spec ContainerSpec) (*StartedContainerInfo, error) {
	return f(ctx, spec)
}
