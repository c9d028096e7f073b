//go:build linux

package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// Environment variables used to communicate with the re-exec child.
const (
	// initEnvKey signals init mode; its value is the file descriptor
	// number of the pipe carrying the serialized initConfig.
	initEnvKey = "_TOOLPIPE_SANDBOX_CONFIG"

	// probeEnvKey signals probe mode; the child exits 0 immediately.
	probeEnvKey = "_TOOLPIPE_SANDBOX_PROBE"
)

// cloneNewCgroup is CLONE_NEWCGROUP, not exported by the syscall package.
const cloneNewCgroup = 0x02000000

// Command builds an *exec.Cmd that runs spec.Command inside namespace
// isolation at the given level. The returned cleanup must be called after
// the command finishes (or fails to start); it releases the config pipe.
//
// The command re-executes /proc/self/exe; the calling binary must invoke
// MaybeInit at the top of main.
func Command(ctx context.Context, spec *Spec, level IsolationLevel) (cmd *exec.Cmd, cleanup func(), err error) {
	if !level.Usable() {
		return nil, nil, ErrUnavailable
	}

	cfg := initConfig{
		Shell:   spec.Shell,
		Command: spec.Command,
		WorkDir: spec.WorkDir,
		Mounts:  MountPlan(spec),
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("sandbox: marshal config: %w", err)
	}

	r, w, err := os.Pipe()
	if err != nil {
		return nil, nil, fmt.Errorf("sandbox: config pipe: %w", err)
	}

	cmd = exec.CommandContext(ctx, "/proc/self/exe")
	// The child inherits r as fd 3 (after stdin/stdout/stderr).
	cmd.ExtraFiles = []*os.File{r}
	cmd.Env = append(os.Environ(), initEnvKey+"=3")
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags: cloneFlags(spec.Namespaces, level),
	}
	if spec.Namespaces.User && level == LevelFull {
		cmd.SysProcAttr.UidMappings = []syscall.SysProcIDMap{
			{ContainerID: 0, HostID: os.Getuid(), Size: 1},
		}
		cmd.SysProcAttr.GidMappings = []syscall.SysProcIDMap{
			{ContainerID: 0, HostID: os.Getgid(), Size: 1},
		}
		cmd.SysProcAttr.GidMappingsEnableSetgroups = false
	}

	// The config may exceed the pipe buffer (large heredoc payloads), so
	// feed it from a goroutine; it unblocks once the child reads or the
	// cleanup closes the write end.
	go func() {
		_, _ = w.Write(payload)
		_ = w.Close()
	}()

	cleanup = func() {
		_ = r.Close()
		_ = w.Close()
	}
	return cmd, cleanup, nil
}

// cloneFlags maps a NamespaceConfig to clone(2) flags. A mount namespace
// is always included; the bind plan depends on it.
func cloneFlags(ns NamespaceConfig, level IsolationLevel) uintptr {
	flags := uintptr(syscall.CLONE_NEWNS)
	if ns.User && level == LevelFull {
		flags |= syscall.CLONE_NEWUSER
	}
	if ns.PID {
		flags |= syscall.CLONE_NEWPID
	}
	if ns.IPC {
		flags |= syscall.CLONE_NEWIPC
	}
	if ns.UTS {
		flags |= syscall.CLONE_NEWUTS
	}
	if ns.Cgroup {
		flags |= cloneNewCgroup
	}
	if ns.Network {
		flags |= syscall.CLONE_NEWNET
	}
	return flags
}

// Probe determines the isolation level available on this system. It is
// intended to run once at session start; callers cache the result for the
// session lifetime.
//
// The probe actually clones namespaces rather than inspecting sysctls:
// container runtimes and seccomp profiles deny clone flags in ways no
// static check predicts.
func Probe(ctx context.Context) IsolationLevel {
	if tryClone(ctx, true) {
		return LevelFull
	}
	if tryClone(ctx, false) {
		return LevelNoUidMapping
	}
	return LevelUnavailable
}

// tryClone re-executes the current binary in probe mode with mount and PID
// namespaces, optionally wrapped in a user namespace with uid/gid mapping.
func tryClone(ctx context.Context, userNS bool) bool {
	cmd := exec.CommandContext(ctx, "/proc/self/exe")
	cmd.Env = append(os.Environ(), probeEnvKey+"=1")
	attr := &syscall.SysProcAttr{
		Cloneflags: syscall.CLONE_NEWNS | syscall.CLONE_NEWPID,
	}
	if userNS {
		attr.Cloneflags |= syscall.CLONE_NEWUSER
		attr.UidMappings = []syscall.SysProcIDMap{
			{ContainerID: 0, HostID: os.Getuid(), Size: 1},
		}
		attr.GidMappings = []syscall.SysProcIDMap{
			{ContainerID: 0, HostID: os.Getgid(), Size: 1},
		}
		attr.GidMappingsEnableSetgroups = false
	}
	cmd.SysProcAttr = attr
	return cmd.Run() == nil
}
