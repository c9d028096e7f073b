package toolpipe

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/axekit/toolpipe/internal/shellscan"
)

// timeoutExitCode is the synthetic exit code reported when the per-command
// timeout fires, matching the timeout(1) convention.
const timeoutExitCode = 124

// spawnExitCode is the synthetic exit code reported when the process could
// not be started at all, matching the shell's command-not-found convention.
const spawnExitCode = 127

// directCommand builds an *exec.Cmd for an argv-only command, split by
// shell word-splitting rules and executed without a shell. If tokenization
// fails, the whole string becomes a single argv element rather than an
// error.
func directCommand(ctx context.Context, command string) *exec.Cmd {
	argv, err := shellscan.SplitArgv(command)
	if err != nil || len(argv) == 0 {
		argv = []string{command}
	}
	return exec.CommandContext(ctx, argv[0], argv[1:]...)
}

// shellCommand builds an *exec.Cmd that runs command through the shell.
func shellCommand(ctx context.Context, shell, command string) *exec.Cmd {
	return exec.CommandContext(ctx, shell, "-c", command)
}

// limitedWriter copies into buf up to limit bytes and silently discards
// the rest, so a runaway command cannot exhaust memory. dropped records
// whether any byte was actually discarded; output that lands exactly on
// the limit is complete, not truncated.
type limitedWriter struct {
	buf     *bytes.Buffer
	limit   int
	dropped bool
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	remaining := w.limit - w.buf.Len()
	if remaining >= len(p) {
		w.buf.Write(p)
		return len(p), nil
	}
	if remaining > 0 {
		w.buf.Write(p[:remaining])
	}
	if len(p) > 0 {
		w.dropped = true
	}
	return len(p), nil
}

// runCommand executes a prepared command and captures combined
// stdout+stderr into an ExecutionResult. The command runs in its own
// session so a fired timeout reaps the entire process group; timeouts
// surface as a synthetic exit code, not a Go error.
func runCommand(ctx context.Context, cmd *exec.Cmd, maxOutput int) ExecutionResult {
	var buf bytes.Buffer
	var out io.Writer = &buf
	var lw *limitedWriter
	if maxOutput > 0 {
		lw = &limitedWriter{buf: &buf, limit: maxOutput}
		out = lw
	}
	cmd.Stdout = out
	cmd.Stderr = out

	setupProcessGroup(cmd)

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	truncated := lw != nil && lw.dropped

	res := ExecutionResult{
		Output:    buf.String(),
		Duration:  duration,
		Truncated: truncated,
	}

	switch {
	case err == nil:
		res.OK = true
		res.ExitCode = 0
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.ExitCode = timeoutExitCode
		res.Kind = ErrorNonZeroExit
		res.Detail = "timed out"
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			res.Kind = ErrorNonZeroExit
			res.Detail = "exited non-zero"
		} else {
			// The process never started (missing binary, permission).
			res.ExitCode = spawnExitCode
			res.Kind = ErrorNonZeroExit
			res.Detail = err.Error()
		}
	}
	if truncated {
		if res.Detail != "" {
			res.Detail += "; "
		}
		res.Detail += "output truncated"
	}
	return res
}

// applyEnv sets the command environment: the parent environment plus any
// per-call additions.
func applyEnv(cmd *exec.Cmd, extra []string) {
	if len(extra) == 0 {
		return
	}
	cmd.Env = append(os.Environ(), extra...)
}
