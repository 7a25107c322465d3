//go:build unix

// ABOUTME: Process-group stop handling for supervised processes on unix
// ABOUTME: SIGINT the whole group on cancel, SIGKILL it after the grace period

package devstack

import (
	"os/exec"
	"syscall"
	"time"
)

// configureStop runs cmd in its own process group so wrappers like
// `go run` take their children down with them.
func configureStop(cmd *exec.Cmd, grace time.Duration) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		pgid := -cmd.Process.Pid
		if err := syscall.Kill(pgid, syscall.SIGINT); err != nil {
			return syscall.Kill(pgid, syscall.SIGKILL)
		}
		time.AfterFunc(grace, func() {
			// ESRCH once the group is gone
			_ = syscall.Kill(pgid, syscall.SIGKILL)
		})
		return nil
	}
	cmd.WaitDelay = grace + time.Second
}
