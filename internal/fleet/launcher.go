package fleet

import (
	"context"
	"errors"

	apperrors "github.com/zorak1103/tcfleet/internal/errors"
)

// ContainerLauncher starts a single container and reports its metadata.
type ContainerLauncher interface {
	Start(ctx context.Context, spec ContainerSpec) (*StartedContainerInfo, error)
}

// Launcher builds, starts and inspects one container.
type Launcher struct {
	Builder   Builder
	Extractor Extractor
}

// Compile-time verification that Launcher implements ContainerLauncher
var _ ContainerLauncher = (*Launcher)(nil)

// NewLauncher returns a Launcher using the default builder and extractor for rt.
func NewLauncher(rt Runtime) *Launcher {
	return &Launcher{
		Builder:   NewBuilder(rt),
		Extractor: ExtractorFunc(ExtractMetaInfo),
	}
}

// Start builds a handle for spec, starts it (blocking on its readiness
// condition) and extracts its metadata.
//
// Build failures are returned as *apperrors.ConfigurationError, start and
// extraction failures as *apperrors.StartupFailure. Nothing is retried.
func (l *Launcher) Start(ctx context.Context, spec ContainerSpec) (*StartedContainerInfo, error) {
	h, err := l.Builder.Build(spec)
	if err != nil {
		var cfgErr *apperrors.ConfigurationError
		if errors.As(err, &cfgErr) {
			return nil, err
		}
		return nil, &apperrors.ConfigurationError{Err: err}
	}

	started, err := h.Start(ctx)
	if err != nil {
		return nil, &apperrors.StartupFailure{Image: spec.ImageRef(), Name: spec.Name, Err: err}
	}

	info, err := l.Extractor.Extract(started, spec.Ports)
	if err != nil {
		// The caller never sees this handle, so it cannot be torn down later.
		if stopErr := started.Stop(ctx); stopErr != nil {
			err = errors.Join(err, stopErr)
		}
		return nil, &apperrors.StartupFailure{Image: spec.ImageRef(), Name: spec.Name, Err: err}
	}
	return info, nil
}
