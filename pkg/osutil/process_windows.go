//go:build windows

package osutil

import (
	"os"
	"os/exec"
	"time"
)

// GracefulShutdownDelay bounds how long Wait keeps draining output pipes
// after the process was killed.
const GracefulShutdownDelay = 2 * time.Second

// SetProcessGroup is a no-op on Windows.
func SetProcessGroup(_ *exec.Cmd) {}

// SetProcessGroupKill kills the direct child on cancellation. Grandchildren
// may outlive it since Windows has no Unix-style process groups.
func SetProcessGroupKill(cmd *exec.Cmd) {
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Kill)
	}
	cmd.WaitDelay = GracefulShutdownDelay
}
