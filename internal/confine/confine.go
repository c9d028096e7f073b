// Package confine restricts filesystem paths to a set of permitted root
// directories. It is the single path-security primitive used by the file
// operation handlers, the security validator, and the sandbox bind planner.
package confine

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Sentinel errors returned by Confine.
var (
	// ErrOutsideRoots indicates the resolved path is not inside any
	// permitted root.
	ErrOutsideRoots = errors.New("confine: path outside permitted roots")

	// ErrTraversal indicates the candidate path contains a parent-directory
	// traversal component. Traversal is rejected syntactically, even when
	// the cleaned path would land back inside a root.
	ErrTraversal = errors.New("confine: parent-directory traversal rejected")

	// ErrEmptyRoots indicates no roots were supplied.
	ErrEmptyRoots = errors.New("confine: no permitted roots configured")

	// ErrNullByte indicates the candidate path contains a NUL byte.
	ErrNullByte = errors.New("confine: path contains null byte")
)

// DeniedError wraps a confinement failure with the offending path so
// callers can produce a specific diagnostic. It unwraps to one of the
// sentinel errors above.
type DeniedError struct {
	Path   string
	Reason error
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%v: %q", e.Reason, e.Path)
}

func (e *DeniedError) Unwrap() error { return e.Reason }

// Options controls optional confinement behavior.
type Options struct {
	// WorkDir is the directory relative candidate paths are resolved
	// against. If empty, the process working directory is used via
	// filepath.Abs.
	WorkDir string

	// ResolveSymlinks resolves symlinks in the candidate path before the
	// root comparison. Off by default: absolute-path comparison does not
	// follow symlinks, so a symlink inside a permitted root that targets
	// outside it can defeat confinement. Enabling this flag closes that
	// gap at the cost of rejecting paths whose parents do not exist yet.
	ResolveSymlinks bool
}

// Confine resolves candidate against roots and returns its absolute form.
// The candidate is accepted iff its absolute form equals a root or sits
// strictly below one (segment-aware: root "/tmp/AXE" does not admit
// "/tmp/AXE-evil"). Any ".." component in the candidate is rejected before
// resolution. Returns a *DeniedError wrapping ErrTraversal, ErrOutsideRoots,
// ErrNullByte, or ErrEmptyRoots on failure.
func Confine(candidate string, roots []string, opts Options) (string, error) {
	if len(roots) == 0 {
		return "", &DeniedError{Path: candidate, Reason: ErrEmptyRoots}
	}
	if strings.ContainsRune(candidate, '\x00') {
		return "", &DeniedError{Path: candidate, Reason: ErrNullByte}
	}
	if HasTraversal(candidate) {
		return "", &DeniedError{Path: candidate, Reason: ErrTraversal}
	}

	abs, err := resolve(candidate, opts)
	if err != nil {
		return "", &DeniedError{Path: candidate, Reason: fmt.Errorf("%w: %v", ErrOutsideRoots, err)}
	}

	for _, root := range roots {
		cleanRoot := filepath.Clean(root)
		if Within(abs, cleanRoot) {
			return abs, nil
		}
	}
	return "", &DeniedError{Path: candidate, Reason: ErrOutsideRoots}
}

// Within reports whether abs equals root or is strictly below it.
// Both arguments must already be absolute and cleaned.
func Within(abs, root string) bool {
	if abs == root {
		return true
	}
	if root == string(filepath.Separator) {
		return strings.HasPrefix(abs, root)
	}
	return strings.HasPrefix(abs, root+string(filepath.Separator))
}

// HasTraversal reports whether the path contains a ".." component.
// The check is purely syntactic and runs before any cleaning, so
// "/tmp/AXE/../etc/passwd" is caught even though its cleaned form is a
// plain absolute path.
func HasTraversal(path string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

// resolve produces the absolute, cleaned form of candidate, optionally
// following symlinks.
func resolve(candidate string, opts Options) (string, error) {
	abs := candidate
	if !filepath.IsAbs(abs) {
		if opts.WorkDir != "" {
			abs = filepath.Join(opts.WorkDir, abs)
		} else {
			var err error
			abs, err = filepath.Abs(abs)
			if err != nil {
				return "", err
			}
		}
	}
	abs = filepath.Clean(abs)

	if opts.ResolveSymlinks {
		resolved, err := filepath.EvalSymlinks(abs)
		if err == nil {
			return resolved, nil
		}
		// The leaf may not exist yet (e.g. a WRITE target). Resolve the
		// deepest existing ancestor instead and re-join the remainder.
		dir, base := filepath.Dir(abs), filepath.Base(abs)
		resolvedDir, dirErr := filepath.EvalSymlinks(dir)
		if dirErr != nil {
			return "", err
		}
		return filepath.Join(resolvedDir, base), nil
	}
	return abs, nil
}
