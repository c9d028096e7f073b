package toolpipe

import "time"

// ErrorKind categorizes why an invocation did not succeed cleanly.
type ErrorKind int

const (
	// ErrorNone indicates the invocation succeeded.
	ErrorNone ErrorKind = iota

	// ErrorValidationDenied indicates the active policy rejected the
	// invocation.
	ErrorValidationDenied

	// ErrorPathOutsideRoots indicates path confinement rejected the target.
	ErrorPathOutsideRoots

	// ErrorRuntimeUnavailable indicates the sandbox runtime was required
	// but not usable.
	ErrorRuntimeUnavailable

	// ErrorNonZeroExit indicates the command ran but exited non-zero,
	// including timeouts, which report a synthetic exit code.
	ErrorNonZeroExit

	// ErrorIO indicates a file operation failed at the filesystem level.
	ErrorIO
)

// String returns the string representation of an ErrorKind.
func (k ErrorKind) String() string {
	switch k {
	case ErrorNone:
		return "none"
	case ErrorValidationDenied:
		return "validation_denied"
	case ErrorPathOutsideRoots:
		return "path_outside_roots"
	case ErrorRuntimeUnavailable:
		return "runtime_unavailable"
	case ErrorNonZeroExit:
		return "non_zero_exit"
	case ErrorIO:
		return "io_error"
	default:
		return unknownStr
	}
}

// noExitCode is the ExitCode value recorded when no process ran to
// completion (denied, IO failure, or spawn failure).
const noExitCode = -1

// ExecutionResult is the immutable outcome of one invocation. It is
// created once per invocation and consumed only by the result formatter.
type ExecutionResult struct {
	// OK reports overall success.
	OK bool

	// Output holds combined stdout and stderr for exec invocations, file
	// contents for reads, directory listings for list_dir, and status
	// messages for writes.
	Output string

	// ExitCode is the process exit code for exec invocations, or
	// noExitCode (-1) when no process ran.
	ExitCode int

	// Kind categorizes the failure; ErrorNone on success.
	Kind ErrorKind

	// Detail carries the denial reason or error cause for failures, and
	// supplementary notes (truncation, size mismatch) otherwise.
	Detail string

	// Duration is the wall-clock time spent executing, zero for denials.
	Duration time.Duration

	// Truncated reports that captured output hit the configured byte limit.
	Truncated bool
}

// deniedResult builds an ExecutionResult for an invocation that never
// reached an execution backend.
func deniedResult(kind ErrorKind, detail string) ExecutionResult {
	return ExecutionResult{
		OK:       false,
		ExitCode: noExitCode,
		Kind:     kind,
		Detail:   detail,
	}
}
