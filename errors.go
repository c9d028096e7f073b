package toolpipe

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the toolpipe package.
var (
	// ErrConfigInvalid indicates the provided configuration failed validation.
	ErrConfigInvalid = errors.New("toolpipe: invalid configuration")

	// ErrSessionClosed indicates the session has already been closed.
	ErrSessionClosed = errors.New("toolpipe: session already closed")

	// ErrCommandDenied indicates a command was rejected by the active policy.
	ErrCommandDenied = errors.New("toolpipe: command denied by policy")

	// ErrPathOutsideRoots indicates a path falls outside the workspace roots.
	ErrPathOutsideRoots = errors.New("toolpipe: path outside workspace roots")

	// ErrSandboxUnavailable indicates the namespace isolation runtime is
	// missing or unusable and no fallback policy is configured.
	ErrSandboxUnavailable = errors.New("toolpipe: sandbox runtime unavailable")
)

// DeniedCommandError is returned when the security validator rejects a
// command. It wraps ErrCommandDenied so errors.Is still works.
type DeniedCommandError struct {
	// Command is the command string that was denied.
	Command string
	// Name is the specific constituent command name that caused the
	// denial, if the denial is name-based.
	Name string
	// Reason explains why the command was denied.
	Reason string
}

func (e *DeniedCommandError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCommandDenied.Error(), e.Reason)
}

func (e *DeniedCommandError) Unwrap() error {
	return ErrCommandDenied
}

// PathDeniedError is returned when path confinement rejects a target. It
// wraps ErrPathOutsideRoots so errors.Is still works.
type PathDeniedError struct {
	// Path is the path that was rejected, as requested.
	Path string
	// Reason distinguishes syntactic traversal from landing outside the
	// roots.
	Reason string
}

func (e *PathDeniedError) Error() string {
	return fmt.Sprintf("%s: %s: %q", ErrPathOutsideRoots.Error(), e.Reason, e.Path)
}

func (e *PathDeniedError) Unwrap() error {
	return ErrPathOutsideRoots
}
