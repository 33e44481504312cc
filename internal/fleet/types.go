// Package fleet turns a named set of container specifications into running,
// ready containers and reports how to reach each of them.
//
// The container runtime itself is abstract: a Runtime creates ContainerHandles,
// which are configured by the Builder and started by the Launcher. The
// FleetLauncher starts every member concurrently and returns a FleetResult
// keyed exactly like its input.
package fleet

import (
	"context"
	"time"
)

// ContainerSpec describes a single desired container.
type ContainerSpec struct {
	Image string
	Tag   string
	Ports []int             // Container ports to expose (optional)
	Name  string            // Container name; empty lets the runtime assign one
	Env   map[string]string // Environment variables (optional)
	Wait  WaitSpec          // Readiness condition; nil means none
}

// ImageRef returns the "image:tag" reference.
func (s ContainerSpec) ImageRef() string {
	if s.Tag == "" {
		return s.Image
	}
	return s.Image + ":" + s.Tag
}

// Service binds a logical key to its container spec.
type Service struct {
	Key  string
	Spec ContainerSpec
}

// FleetConfig is the ordered set of services to launch. Keys must be unique.
type FleetConfig []Service

// Keys returns the service keys in configuration order.
func (c FleetConfig) Keys() []string {
	keys := make([]string, len(c))
	for i, svc := range c {
		keys[i] = svc.Key
	}
	return keys
}

// StartedContainerInfo is the connection metadata of a ready container.
type StartedContainerInfo struct {
	IP           string
	Name         string
	PortMappings map[int]int // requested container port -> published host port
	Handle       StartedHandle
}

// FleetResult maps every key of a FleetConfig to its started container.
type FleetResult map[string]*StartedContainerInfo

// Labels put on every container a runtime creates.
const (
	LabelManagedBy = "tcfleet.managed-by"
	LabelImage     = "tcfleet.image"
	ManagedBy      = "tcfleet"
)

// Labels returns the labels for a container started from imageRef.
func Labels(imageRef string) map[string]string {
	return map[string]string{
		LabelManagedBy: ManagedBy,
		LabelImage:     imageRef,
	}
}

// Runtime creates unstarted container handles.
type Runtime interface {
	Create(image, tag string) ContainerHandle
}

// ContainerHandle is an unstarted container under construction.
// The With* methods return the configured handle; callers must use the
// returned value.
type ContainerHandle interface {
	WithExposedPorts(ports ...int) ContainerHandle
	WithEnv(key, value string) ContainerHandle
	WithName(name string) ContainerHandle
	// WithStartupTimeout makes Start block until every exposed port accepts
	// connections, failing after d.
	WithStartupTimeout(d time.Duration) ContainerHandle
	// WithLogWait makes Start block until a log line containing text is emitted.
	WithLogWait(text string) ContainerHandle
	// Start creates and starts the container, blocking on any configured
	// readiness condition.
	Start(ctx context.Context) (StartedHandle, error)
}

// StartedHandle is a running container.
type StartedHandle interface {
	ID() string
	// Host returns the address at which mapped ports are reachable.
	Host() string
	Name() string
	// MappedPort returns the published host port for a container port.
	MappedPort(port int) (int, bool)
	Stop(ctx context.Context) error
}
