package fleet

import (
	"errors"
	"sort"

	apperrors "github.com/zorak1103/tcfleet/internal/errors"
)

// Mutation configures one aspect of a container handle.
type Mutation func(ContainerHandle) ContainerHandle

func identity(h ContainerHandle) ContainerHandle { return h }

// Builder turns a ContainerSpec into an unstarted, fully configured handle.
type Builder interface {
	Build(spec ContainerSpec) (ContainerHandle, error)
}

// RuntimeBuilder builds handles from a Runtime.
type RuntimeBuilder struct {
	Runtime Runtime
}

// Compile-time verification that RuntimeBuilder implements Builder
var _ Builder = (*RuntimeBuilder)(nil)

// NewBuilder returns a Builder backed by rt.
func NewBuilder(rt Runtime) *RuntimeBuilder {
	return &RuntimeBuilder{Runtime: rt}
}

// Build creates a handle for spec and applies its name, ports, environment and
// wait strategy. Nothing is started.
func (b *RuntimeBuilder) Build(spec ContainerSpec) (ContainerHandle, error) {
	if spec.Image == "" {
		return nil, &apperrors.ConfigurationError{Key: "image", Err: errors.New("image is required")}
	}

	wait, err := ResolveWait(spec.Wait)
	if err != nil {
		return nil, err
	}

	mutations := []Mutation{
		WithName(spec.Name),
		WithPorts(spec.Ports),
		WithEnv(spec.Env),
		wait,
	}

	h := b.Runtime.Create(spec.Image, spec.Tag)
	for _, m := range mutations {
		h = m(h)
	}
	return h, nil
}

// WithName sets the container name unless name is empty.
func WithName(name string) Mutation {
	if name == "" {
		return identity
	}
	return func(h ContainerHandle) ContainerHandle {
		return h.WithName(name)
	}
}

// WithPorts exposes ports; a nil or empty slice exposes nothing.
func WithPorts(ports []int) Mutation {
	if len(ports) == 0 {
		return identity
	}
	return func(h ContainerHandle) ContainerHandle {
		return h.WithExposedPorts(ports...)
	}
}

// WithEnv sets each variable individually. Keys are applied in sorted order so
// runtimes observe a stable sequence.
func WithEnv(env map[string]string) Mutation {
	if len(env) == 0 {
		return identity
	}
	return func(h ContainerHandle) ContainerHandle {
		keys := make([]string, 0, len(env))
		for k := range env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			h = h.WithEnv(k, env[k])
		}
		return h
	}
}
