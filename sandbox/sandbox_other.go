//go:build !linux

package sandbox

import (
	"context"
	"os/exec"
)

// Command is unsupported off Linux; namespace isolation requires clone(2)
// namespace flags.
func Command(_ context.Context, _ *Spec, _ IsolationLevel) (*exec.Cmd, func(), error) {
	return nil, nil, ErrUnavailable
}

// Probe reports LevelUnavailable on non-Linux systems.
func Probe(_ context.Context) IsolationLevel {
	return LevelUnavailable
}

// MaybeInit is a no-op off Linux.
func MaybeInit() bool {
	return false
}
