//go:build linux

package sandbox

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
)

// Function variables for dependency injection in tests.
var (
	mountFn       = unix.Mount
	syscallExecFn = syscall.Exec
	osExitFn      = os.Exit
)

// MaybeInit checks whether the current process was re-executed as a
// sandbox helper. If so it applies the mount plan and execs the payload
// command, never returning. Returns false when the process is a normal
// invocation and should continue with main.
func MaybeInit() bool {
	if os.Getenv(probeEnvKey) != "" {
		osExitFn(0)
		return true
	}
	fdStr := os.Getenv(initEnvKey)
	if fdStr == "" {
		return false
	}
	osExitFn(sandboxInit(fdStr))
	return true // unreachable, but satisfies the compiler
}

// sandboxInit is the entry point for the re-exec sandbox helper. It reads
// the configuration from the given file descriptor, applies the mount
// plan inside the new mount namespace, and execs the payload through the
// shell.
func sandboxInit(fdStr string) int {
	// Mount operations affect the whole namespace but setns-style calls
	// are per-thread; lock and never unlock, the process will exec or exit.
	runtime.LockOSThread()

	fd, err := strconv.Atoi(fdStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "toolpipe-sandbox: invalid config fd %q: %v\n", fdStr, err)
		return 1
	}
	configFile := os.NewFile(uintptr(fd), "config-pipe")
	if configFile == nil {
		fmt.Fprintf(os.Stderr, "toolpipe-sandbox: cannot open config fd %d\n", fd)
		return 1
	}
	defer func() { _ = configFile.Close() }()

	var cfg initConfig
	if err := json.NewDecoder(configFile).Decode(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "toolpipe-sandbox: decode config: %v\n", err)
		return 1
	}

	if err := applyMounts(cfg.Mounts); err != nil {
		fmt.Fprintf(os.Stderr, "toolpipe-sandbox: %v\n", err)
		return 1
	}

	if cfg.WorkDir != "" {
		if err := os.Chdir(cfg.WorkDir); err != nil {
			fmt.Fprintf(os.Stderr, "toolpipe-sandbox: chdir: %v\n", err)
			return 1
		}
	}

	// Clear the init env var so the payload cannot re-enter init mode.
	_ = os.Unsetenv(initEnvKey)

	shell := cfg.Shell
	if shell == "" {
		shell = "/bin/sh"
	}
	argv := []string{shell, "-c", cfg.Command}
	if err := syscallExecFn(shell, argv, os.Environ()); err != nil {
		fmt.Fprintf(os.Stderr, "toolpipe-sandbox: exec %s: %v\n", shell, err)
		return 1
	}
	return 0 // unreachable
}

// applyMounts makes the mount tree private, seals the host tree
// read-only, and applies the plan in order. Entries whose path does not
// exist on the host are skipped with a note on stderr rather than failing
// the whole command.
func applyMounts(plan []MountEntry) error {
	// Stop mount events from propagating back to the host namespace.
	if err := mountFn("", "/", "", unix.MS_REC|unix.MS_PRIVATE, ""); err != nil {
		return fmt.Errorf("make mounts private: %w", err)
	}

	// Seal the host tree before any plan entry runs: bind / over itself
	// and remount the whole tree read-only. The read-only flag is
	// per-mountpoint, so the plan's later rw binds come up writable while
	// every path the plan never mentions stays read-only.
	if err := mountFn("/", "/", "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("bind root: %w", err)
	}
	if err := mountFn("", "/", "", unix.MS_BIND|unix.MS_REMOUNT|unix.MS_RDONLY|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("seal root read-only: %w", err)
	}

	for _, e := range plan {
		if _, err := os.Stat(e.Path); err != nil {
			fmt.Fprintf(os.Stderr, "toolpipe-sandbox: skipping %s mount for %s: %v\n", e.Op, e.Path, err)
			continue
		}
		if err := applyMount(e); err != nil {
			return fmt.Errorf("%s %s: %w", e.Op, e.Path, err)
		}
	}
	return nil
}

// applyMount performs one mount plan entry.
func applyMount(e MountEntry) error {
	switch e.Op {
	case OpHide:
		return mountFn("tmpfs", e.Path, "tmpfs", unix.MS_NOSUID|unix.MS_NODEV, "")
	case OpBindRW:
		return mountFn(e.Path, e.Path, "", unix.MS_BIND|unix.MS_REC, "")
	case OpBindRO:
		if err := mountFn(e.Path, e.Path, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
			return err
		}
		return mountFn("", e.Path, "", unix.MS_BIND|unix.MS_REMOUNT|unix.MS_RDONLY|unix.MS_REC, "")
	default:
		return fmt.Errorf("unknown mount op %q", e.Op)
	}
}
