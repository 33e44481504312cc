// Package apperrors provides domain-specific error types for tcfleet.
// These error types include contextual information to aid debugging and error reporting.
package apperrors

import (
	"errors"
	"fmt"
)

// ErrStartupTimeout is wrapped by runtime drivers when a readiness condition
// was not met before its deadline.
var ErrStartupTimeout = errors.New("startup timeout exceeded")

// ConfigurationError represents configuration-related errors.
// It includes the configuration file path and specific key that caused the error.
type ConfigurationError struct {
	ConfigPath string // Path to the configuration file
	Key        string // Configuration key that caused the error
	Err        error  // Underlying error
}

// Error implements the error interface for ConfigurationError.
func (e *ConfigurationError) Error() string {
	switch {
	case e.ConfigPath != "" && e.Key != "":
		return fmt.Sprintf("configuration error in %s (key: %s): %v", e.ConfigPath, e.Key, e.Err)
	case e.Key != "":
		return fmt.Sprintf("configuration error (key: %s): %v", e.Key, e.Err)
	case e.ConfigPath != "":
		return fmt.Sprintf("configuration error in %s: %v", e.ConfigPath, e.Err)
	default:
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
}

// Unwrap returns the underlying error for error wrapping chains.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// StartupFailure represents a container that was rejected by the runtime or
// never became ready.
type StartupFailure struct {
	Image string // Image reference, e.g. "postgres:13"
	Name  string // Requested container name (empty when runtime-assigned)
	Err   error  // Underlying error
}

// Error implements the error interface for StartupFailure.
func (e *StartupFailure) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("container %s (image: %s) failed to start: %v", e.Name, e.Image, e.Err)
	}
	return fmt.Sprintf("container (image: %s) failed to start: %v", e.Image, e.Err)
}

// Unwrap returns the underlying error for error wrapping chains.
func (e *StartupFailure) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was caused by a readiness deadline.
func (e *StartupFailure) Timeout() bool {
	return errors.Is(e.Err, ErrStartupTimeout)
}

// DockerConnectionError represents Docker connection and operation errors.
// It includes the socket path and the operation that failed.
type DockerConnectionError struct {
	SocketPath string // Docker socket path (e.g., /var/run/docker.sock)
	Operation  string // Operation that failed (e.g., "Ping", "ContainerCreate")
	Err        error  // Underlying error
}

// Error implements the error interface for DockerConnectionError.
func (e *DockerConnectionError) Error() string {
	if e.SocketPath != "" {
		return fmt.Sprintf("docker %s failed (socket: %s): %v", e.Operation, e.SocketPath, e.Err)
	}
	return fmt.Sprintf("docker %s failed: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error for error wrapping chains.
func (e *DockerConnectionError) Unwrap() error {
	return e.Err
}
