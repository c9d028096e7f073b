package toolpipe

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/axekit/toolpipe/internal/confine"
)

// confinePath confines path to roots and maps failures onto the package
// sentinel: the returned error is a *PathDeniedError wrapping
// ErrPathOutsideRoots.
func confinePath(path string, roots []string, opts confine.Options) (string, error) {
	abs, err := confine.Confine(path, roots, opts)
	if err != nil {
		reason := "path outside workspace roots"
		if errors.Is(err, confine.ErrTraversal) {
			reason = "parent-directory traversal rejected"
		}
		return "", &PathDeniedError{Path: path, Reason: reason}
	}
	return abs, nil
}

// confineResult maps a confinement failure to an ExecutionResult.
func confineResult(err error) ExecutionResult {
	detail := "path outside workspace roots"
	var denied *PathDeniedError
	if errors.As(err, &denied) {
		detail = denied.Reason
	}
	return deniedResult(ErrorPathOutsideRoots, detail)
}

// readFile confines path and reads up to maxBytes, marking truncation.
// Not-found, is-a-directory, and outside-roots failures report distinctly.
func readFile(path string, roots []string, opts confine.Options, maxBytes int) ExecutionResult {
	abs, err := confinePath(path, roots, opts)
	if err != nil {
		return confineResult(err)
	}

	info, err := os.Stat(abs)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return deniedResult(ErrorIO, "file not found")
	case err != nil:
		return deniedResult(ErrorIO, err.Error())
	case info.IsDir():
		return deniedResult(ErrorIO, "is a directory")
	}

	f, err := os.Open(abs)
	if err != nil {
		return deniedResult(ErrorIO, err.Error())
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, int64(maxBytes)+1))
	if err != nil {
		return deniedResult(ErrorIO, err.Error())
	}

	res := ExecutionResult{OK: true, ExitCode: noExitCode}
	if len(data) > maxBytes {
		data = data[:maxBytes]
		res.Truncated = true
		res.Detail = fmt.Sprintf("read %d bytes (truncated at limit)", len(data))
	} else {
		res.Detail = fmt.Sprintf("read %d bytes", len(data))
	}
	res.Output = string(data)
	return res
}

// writeFile confines path, creates intermediate directories, writes or
// appends content, and verifies the resulting size against the expected
// byte length. A mismatch reports "written but size mismatch" rather than
// bare success so callers can detect silent truncation.
func writeFile(path, content string, roots []string, opts confine.Options, appendMode bool) ExecutionResult {
	abs, err := confinePath(path, roots, opts)
	if err != nil {
		return confineResult(err)
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return deniedResult(ErrorIO, fmt.Sprintf("create directories: %v", err))
	}

	var priorSize int64
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	verb := "wrote"
	if appendMode {
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
		verb = "appended"
		if info, statErr := os.Stat(abs); statErr == nil {
			priorSize = info.Size()
		}
	}

	f, err := os.OpenFile(abs, flags, 0o644)
	if err != nil {
		return deniedResult(ErrorIO, err.Error())
	}
	_, writeErr := f.WriteString(content)
	closeErr := f.Close()
	if writeErr != nil {
		return deniedResult(ErrorIO, writeErr.Error())
	}
	if closeErr != nil {
		return deniedResult(ErrorIO, closeErr.Error())
	}

	// Verify by re-reading the size: a bare success must mean the bytes
	// actually landed.
	info, err := os.Stat(abs)
	if err != nil {
		return deniedResult(ErrorIO, fmt.Sprintf("verify: %v", err))
	}
	expected := priorSize + int64(len(content))
	if info.Size() != expected {
		return ExecutionResult{
			OK:       false,
			ExitCode: noExitCode,
			Kind:     ErrorIO,
			Detail: fmt.Sprintf("written but size mismatch: expected %d bytes, file has %d",
				expected, info.Size()),
		}
	}

	return ExecutionResult{
		OK:       true,
		ExitCode: noExitCode,
		Output:   fmt.Sprintf("%s %d bytes to %s", verb, len(content), path),
		Detail:   fmt.Sprintf("%s %d bytes", verb, len(content)),
	}
}

// listDir confines path and lists the directory, one entry per line with
// a trailing separator on subdirectories.
func listDir(path string, roots []string, opts confine.Options) ExecutionResult {
	abs, err := confinePath(path, roots, opts)
	if err != nil {
		return confineResult(err)
	}

	entries, err := os.ReadDir(abs)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return deniedResult(ErrorIO, "directory not found")
	case err != nil:
		return deniedResult(ErrorIO, err.Error())
	}

	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.Name())
		if e.IsDir() {
			b.WriteString(string(filepath.Separator))
		}
		b.WriteByte('\n')
	}
	return ExecutionResult{
		OK:       true,
		ExitCode: noExitCode,
		Output:   b.String(),
		Detail:   fmt.Sprintf("%d entries", len(entries)),
	}
}
