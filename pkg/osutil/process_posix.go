//go:build unix

package osutil

import (
	"os/exec"
	"syscall"
	"time"
)

// GracefulShutdownDelay bounds how long Wait keeps draining output pipes
// after the process group was killed.
const GracefulShutdownDelay = 2 * time.Second

// SetProcessGroup places the command in a new process group so that a
// timeout can take down PMD's JVM together with its launcher script.
func SetProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// SetProcessGroupKill makes context cancellation SIGKILL the whole group.
// Must be called after SetProcessGroup and before cmd.Start().
func SetProcessGroupKill(cmd *exec.Cmd) {
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = GracefulShutdownDelay
}
