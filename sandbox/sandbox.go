// Package sandbox executes shell commands inside Linux namespace isolation.
//
// The parent process computes a declarative mount plan (read-write binds
// for workspace roots, read-only remounts for host system paths, tmpfs
// overmounts hiding configured paths), then re-executes itself with the
// requested namespace clone flags. The re-exec child seals the entire
// host tree read-only inside the new mount namespace, applies the plan on
// top (only planned paths regain writability), and execs the payload
// command through the shell. A path the plan never mentions is therefore
// visible but never writable, and hidden paths are not visible at all. User-namespace isolation is requested in "try" mode: when uid/gid
// mapping is not permitted, execution continues with filesystem/process
// separation only, and the caller is expected to surface that degradation
// once per session.
//
// Call MaybeInit at the very beginning of main, before any other
// initialization:
//
//	func main() {
//	    if sandbox.MaybeInit() {
//	        return
//	    }
//	    // ... rest of main
//	}
package sandbox

import (
	"errors"
	"path/filepath"
)

// ErrUnavailable indicates namespace isolation cannot be established on
// this system at all.
var ErrUnavailable = errors.New("sandbox: namespace isolation unavailable")

// NamespaceConfig selects which namespaces to unshare for sandboxed
// commands. Mount namespace isolation is always requested; it is the
// mechanism the bind plan depends on.
type NamespaceConfig struct {
	// User requests a user namespace with the current uid/gid mapped to
	// root inside it. Denied mappings degrade, they do not fail.
	User bool `yaml:"user"`

	// PID isolates the process ID space.
	PID bool `yaml:"pid"`

	// IPC isolates System V IPC and POSIX message queues.
	IPC bool `yaml:"ipc"`

	// UTS isolates hostname and domain name.
	UTS bool `yaml:"uts"`

	// Cgroup isolates the cgroup root directory.
	Cgroup bool `yaml:"cgroup"`

	// Network gives the command an empty network namespace, cutting all
	// network access.
	Network bool `yaml:"network"`
}

// DefaultNamespaces enables user, PID, IPC, and UTS isolation and leaves
// the network reachable.
func DefaultNamespaces() NamespaceConfig {
	return NamespaceConfig{User: true, PID: true, IPC: true, UTS: true}
}

// HostBinds configures how host paths appear inside the sandbox.
type HostBinds struct {
	// ReadOnly paths are bind-mounted read-only.
	ReadOnly []string `yaml:"readonly"`

	// Writable paths are bind-mounted read-write in addition to the
	// workspace roots.
	Writable []string `yaml:"writable"`

	// Hidden paths are masked with an empty tmpfs.
	Hidden []string `yaml:"hidden"`
}

// IsolationLevel is the result of the one-time capability probe performed
// at session start. It is immutable for the lifetime of a session; the
// backend never re-probes per command.
type IsolationLevel int

const (
	// LevelUnavailable means no usable namespace isolation exists. It is
	// the zero value so an unprobed level never silently executes.
	LevelUnavailable IsolationLevel = iota

	// LevelNoUidMapping means mount/PID namespaces work but user
	// namespaces do not: filesystem and process separation only, no
	// privilege remapping and never any setuid fallback.
	LevelNoUidMapping

	// LevelFull means user namespace isolation with uid/gid mapping is
	// available.
	LevelFull
)

// String returns the string representation of an IsolationLevel.
func (l IsolationLevel) String() string {
	switch l {
	case LevelFull:
		return "full"
	case LevelNoUidMapping:
		return "no-uid-mapping"
	case LevelUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Usable reports whether sandboxed commands can run at this level.
func (l IsolationLevel) Usable() bool {
	return l == LevelFull || l == LevelNoUidMapping
}

// Spec describes one sandboxed command execution.
type Spec struct {
	// Shell is the shell binary used to interpret Command.
	Shell string

	// Command is the payload, byte-for-byte as the agent wrote it. Heredoc
	// stripping and other validation views must never leak into this field.
	Command string

	// WorkDir is the working directory inside the sandbox.
	WorkDir string

	// Roots are the session workspace roots, bind-mounted read-write.
	Roots []string

	// Binds configures additional host path visibility.
	Binds HostBinds

	// Namespaces selects the namespace toggles.
	Namespaces NamespaceConfig
}

// Mount operation kinds applied by the re-exec child, in plan order.
const (
	// OpBindRW bind-mounts a path over itself read-write.
	OpBindRW = "bind-rw"

	// OpBindRO bind-mounts a path over itself and remounts it read-only.
	OpBindRO = "bind-ro"

	// OpHide mounts an empty tmpfs over a path.
	OpHide = "hide"
)

// MountEntry is one step of the mount plan.
type MountEntry struct {
	Op   string `json:"op"`
	Path string `json:"path"`
}

// MountPlan computes the ordered mount plan for a spec: hidden paths are
// masked first so a later read-only bind cannot re-expose them, then host
// read-only binds, then the read-write workspace roots and extra writable
// paths. Relative paths are cleaned; duplicates keep their first entry.
func MountPlan(spec *Spec) []MountEntry {
	var plan []MountEntry
	seen := make(map[string]bool)
	add := func(op, path string) {
		p := filepath.Clean(path)
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		plan = append(plan, MountEntry{Op: op, Path: p})
	}

	for _, p := range spec.Binds.Hidden {
		add(OpHide, p)
	}
	for _, p := range spec.Binds.ReadOnly {
		add(OpBindRO, p)
	}
	for _, p := range spec.Roots {
		add(OpBindRW, p)
	}
	for _, p := range spec.Binds.Writable {
		add(OpBindRW, p)
	}
	return plan
}

// initConfig is the configuration passed to the re-exec child via a pipe.
type initConfig struct {
	Shell   string       `json:"shell"`
	Command string       `json:"command"`
	WorkDir string       `json:"work_dir,omitempty"`
	Mounts  []MountEntry `json:"mounts,omitempty"`
}
