//go:build !unix

// ABOUTME: Stop handling for supervised processes on platforms without process groups
// ABOUTME: Falls back to killing the process after the grace period

package devstack

import (
	"os/exec"
	"time"
)

func configureStop(cmd *exec.Cmd, grace time.Duration) {
	cmd.WaitDelay = grace
}
