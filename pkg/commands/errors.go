package commands

import (
	"fmt"

	"github.com/go-errors/errors"
)

// The error taxonomy shared by the orchestrator and the infrastructure
// manager. Everything fallible returns an error; callers test the kind with
// errors.Is rather than inspecting booleans.
var (
	// ErrRuntimeUnavailable means the container daemon could not be reached.
	// Fatal and never retried.
	ErrRuntimeUnavailable = errors.New("container runtime unavailable")

	// ErrNotInstalled means an infrastructure operation was attempted before
	// Install().
	ErrNotInstalled = errors.New("shared infrastructure is not installed")

	// ErrOperationFailed means a runtime subprocess exited non-zero.
	ErrOperationFailed = errors.New("runtime operation failed")
)

// OperationError wraps ErrOperationFailed with the captured stderr of the
// failed subprocess so callers can surface the runtime's own message.
type OperationError struct {
	Args   []string
	Stderr string
	Cause  error
}

func (e *OperationError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("runtime operation failed: %s", e.Stderr)
	}
	return fmt.Sprintf("runtime operation failed: %v", e.Cause)
}

func (e *OperationError) Unwrap() error { return ErrOperationFailed }
