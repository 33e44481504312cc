package fleet

import (
	"fmt"
	"time"

	apperrors "github.com/zorak1103/tcfleet/internal/errors"
)

// Wait strategy tags accepted in configuration files.
const (
	WaitTypePorts = "ports"
	WaitTypeText  = "text"
)

// WaitSpec is a readiness condition. It is a closed set: only PortsWait and
// LogTextWait implement it.
type WaitSpec interface {
	waitType() string
}

// PortsWait waits until all exposed ports accept connections.
type PortsWait struct {
	TimeoutSeconds int
}

func (PortsWait) waitType() string { return WaitTypePorts }

// Timeout returns the wait bound as a duration.
func (w PortsWait) Timeout() time.Duration {
	return time.Duration(w.TimeoutSeconds) * time.Second
}

// LogTextWait waits until a log line containing Text is emitted.
type LogTextWait struct {
	Text string
}

func (LogTextWait) waitType() string { return WaitTypeText }

// ParseWaitSpec converts an untyped wait definition into a WaitSpec.
// "No wait" is expressed by not calling it; an empty kind is an error.
func ParseWaitSpec(kind string, timeoutSeconds int, text string) (WaitSpec, error) {
	switch kind {
	case "":
		return nil, &apperrors.ConfigurationError{
			Key: "wait.type",
			Err: fmt.Errorf("wait strategy type is required (expected %q or %q)", WaitTypePorts, WaitTypeText),
		}
	case WaitTypePorts:
		if timeoutSeconds <= 0 {
			return nil, &apperrors.ConfigurationError{
				Key: "wait.timeout",
				Err: fmt.Errorf("ports wait requires a positive timeout, got %d", timeoutSeconds),
			}
		}
		return PortsWait{TimeoutSeconds: timeoutSeconds}, nil
	case WaitTypeText:
		if text == "" {
			return nil, &apperrors.ConfigurationError{
				Key: "wait.text",
				Err: fmt.Errorf("text wait requires non-empty text"),
			}
		}
		return LogTextWait{Text: text}, nil
	default:
		return nil, &apperrors.ConfigurationError{
			Key: "wait.type",
			Err: fmt.Errorf("unknown wait strategy %q (expected %q or %q)", kind, WaitTypePorts, WaitTypeText),
		}
	}
}

// ResolveWait returns the mutation that attaches w to a handle.
func ResolveWait(w WaitSpec) (Mutation, error) {
	switch w := w.(type) {
	case nil:
		return identity, nil
	case PortsWait:
		return func(h ContainerHandle) ContainerHandle {
			return h.WithStartupTimeout(w.Timeout())
		}, nil
	case LogTextWait:
		return func(h ContainerHandle) ContainerHandle {
			return h.WithLogWait(w.Text)
		}, nil
	default:
		return nil, &apperrors.ConfigurationError{
			Key: "wait.type",
			Err: fmt.Errorf("unsupported wait strategy %T", w),
		}
	}
}
