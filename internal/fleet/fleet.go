package fleet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/zorak1103/tcfleet/internal/errors"
	"golang.org/x/sync/errgroup"
)

// MemberFailure records the error of a single fleet member.
type MemberFailure struct {
	Key string
	Err error
}

// FleetFailure is returned when at least one member of a fleet failed to
// launch. Members that did start are reported in Started and left running;
// stopping them is up to the caller.
type FleetFailure struct {
	Failures []MemberFailure
	Started  FleetResult
}

// Error implements the error interface for FleetFailure.
func (e *FleetFailure) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Key, f.Err))
	}
	return fmt.Sprintf("fleet launch failed (%d of %d containers): %s",
		len(e.Failures), len(e.Failures)+len(e.Started), strings.Join(parts, "; "))
}

// Unwrap returns the member errors so errors.Is and errors.As see through the aggregate.
func (e *FleetFailure) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// FailedKeys returns the keys of the failed members in configuration order.
func (e *FleetFailure) FailedKeys() []string {
	keys := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		keys = append(keys, f.Key)
	}
	return keys
}

// FleetLauncher starts every service of a FleetConfig concurrently.
type FleetLauncher struct {
	Launcher ContainerLauncher
	// MaxConcurrency caps the number of simultaneous launches; 0 means unbounded.
	MaxConcurrency int
}

// NewFleetLauncher returns an unbounded FleetLauncher using l.
func NewFleetLauncher(l ContainerLauncher) *FleetLauncher {
	return &FleetLauncher{Launcher: l}
}

// Launch starts all services and waits for every launch to settle.
//
// On success the result holds exactly the keys of cfg. If any launch fails no
// result is returned; the error is a *FleetFailure naming every failed key.
// A failing member does not cancel its siblings.
func (f *FleetLauncher) Launch(ctx context.Context, cfg FleetConfig) (FleetResult, error) {
	if err := validateKeys(cfg); err != nil {
		return nil, err
	}

	infos := make([]*StartedContainerInfo, len(cfg))
	errs := make([]error, len(cfg))

	var g errgroup.Group
	if f.MaxConcurrency > 0 {
		g.SetLimit(f.MaxConcurrency)
	}
	for i, svc := range cfg {
		g.Go(func() error {
			infos[i], errs[i] = f.Launcher.Start(ctx, svc.Spec)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // member errors are collected in errs

	result := make(FleetResult, len(cfg))
	var failures []MemberFailure
	for i, svc := range cfg {
		if errs[i] != nil {
			failures = append(failures, MemberFailure{Key: svc.Key, Err: errs[i]})
			continue
		}
		result[svc.Key] = infos[i]
	}

	if len(failures) > 0 {
		return nil, &FleetFailure{Failures: failures, Started: result}
	}
	return result, nil
}

func validateKeys(cfg FleetConfig) error {
	seen := make(map[string]struct{}, len(cfg))
	for _, svc := range cfg {
		if svc.Key == "" {
			return &apperrors.ConfigurationError{Key: "containers", Err: errors.New("service key must not be empty")}
		}
		if _, dup := seen[svc.Key]; dup {
			return &apperrors.ConfigurationError{Key: "containers." + svc.Key, Err: errors.New("duplicate service key")}
		}
		seen[svc.Key] = struct{}{}
	}
	return nil
}

// Teardown stops every container of result concurrently. All containers are
// attempted; errors are joined and prefixed with their key.
func Teardown(ctx context.Context, result FleetResult) error {
	keys := make([]string, 0, len(result))
	for k := range result {
		keys = append(keys, k)
	}

	errs := make([]error, len(keys))
	var g errgroup.Group
	for i, key := range keys {
		info := result[key]
		if info == nil || info.Handle == nil {
			continue
		}
		g.Go(func() error {
			if err := info.Handle.Stop(ctx); err != nil {
				errs[i] = fmt.Errorf("%s: %w", key, err)
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // errors are collected in errs

	return errors.Join(errs...)
}
