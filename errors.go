package ndd

import (
	"fmt"
	"syscall"

	"github.com/pkg/errors"
)

// Error kinds.
// Every error produced by this module's packages
// matches exactly one of these under errors.Is.
var (
	// ErrConfig is a configuration problem detected before any process is spawned:
	// mutually exclusive flags, a missing address, a failed chain-position lookup.
	ErrConfig = errors.New("configuration error")

	// ErrLaunch means a node could not be spawned.
	ErrLaunch = errors.New("launch error")

	// ErrNodeFailure means a node exited non-zero or was killed by a signal.
	ErrNodeFailure = errors.New("node failure")

	// ErrLocked means a transfer lock is already held elsewhere.
	ErrLocked = errors.New("lock contention")
)

// Process exit statuses of the orchestrator.
const (
	ExitOK       = 0
	ExitFailed   = 1
	ExitInternal = 2
)

// Error is a kinded error with a message.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Kind }

// Configf produces an ErrConfig-kinded error.
func Configf(format string, args ...interface{}) error {
	return &Error{Kind: ErrConfig, Msg: fmt.Sprintf(format, args...)}
}

// Lockedf produces an ErrLocked-kinded error.
func Lockedf(format string, args ...interface{}) error {
	return &Error{Kind: ErrLocked, Msg: fmt.Sprintf(format, args...)}
}

// LaunchError reports that a node could not be started.
// Nodes started before it have already been terminated and reaped
// by the time a LaunchError is returned.
type LaunchError struct {
	Node string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("%s: starting node %s: %s", ErrLaunch, e.Node, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrLaunch) succeed
// while still unwrapping to the underlying spawn error.
func (e *LaunchError) Is(target error) bool { return target == ErrLaunch }

// NodeFailure reports the first node whose failure aborted a transfer.
// Exactly one of Code and Signal is meaningful:
// Signal is non-zero when the node was killed by a signal.
type NodeFailure struct {
	Node   string
	Desc   string
	Code   int
	Signal syscall.Signal
	Err    error // set when the failure was not an ordinary exit, e.g. cancellation
}

func (e *NodeFailure) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %s (%s): %s", ErrNodeFailure, e.Node, e.Desc, e.Err)
	case e.Signal != 0:
		return fmt.Sprintf("%s: %s (%s) killed by %s", ErrNodeFailure, e.Node, e.Desc, e.Signal)
	default:
		return fmt.Sprintf("%s: %s (%s) exited with status %d", ErrNodeFailure, e.Node, e.Desc, e.Code)
	}
}

func (e *NodeFailure) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrNodeFailure) succeed.
func (e *NodeFailure) Is(target error) bool { return target == ErrNodeFailure }

// ExitCode maps an error from a transfer onto the orchestrator's exit status.
// A nil error is success.
// Node failures and lock contention are ordinary transfer failures;
// everything else,
// including configuration and launch errors,
// is an internal orchestration error.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrNodeFailure), errors.Is(err, ErrLocked):
		return ExitFailed
	default:
		return ExitInternal
	}
}
