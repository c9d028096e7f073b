//go:build darwin || linux

package toolpipe

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// processGroupWaitDelay is the time to wait for a process group to exit
// after SIGKILL before giving up on pipe reads.
const processGroupWaitDelay = 3 * time.Second

// setupProcessGroup configures cmd to run in its own session (via Setsid)
// and installs a Cancel function that kills the entire process group when
// the context fires. A fired timeout must reap grandchildren too:
// orphaned descendants would otherwise hold the output pipes open past the
// command's lifetime.
//
// Sandboxed commands arrive with SysProcAttr already carrying namespace
// clone flags; Setsid composes with those.
func setupProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setsid = true

	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return os.ErrProcessDone
		}
		pid := cmd.Process.Pid
		// kill(-1) kills all user processes and kill(0) the caller's own
		// group; treat invalid PIDs as done rather than risking either.
		if pid <= 1 {
			return os.ErrProcessDone
		}
		if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
			if errors.Is(err, syscall.ESRCH) {
				return os.ErrProcessDone
			}
			return err
		}
		return nil
	}
	cmd.WaitDelay = processGroupWaitDelay
}
