// Package osutil holds the subprocess helpers shared by provisioning,
// analysis and the analyzer tool.
package osutil

import (
	"context"
	"errors"
	"os/exec"
)

// CommandContext builds a command that runs in its own process group and
// whose whole group is killed when ctx is done.
func CommandContext(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	SetProcessGroup(cmd)
	SetProcessGroupKill(cmd)
	return cmd
}

// ExitCode extracts the exit status from an error returned by cmd.Run or
// cmd.Wait. ok is false when err did not come from a process that exited.
func ExitCode(err error) (code int, ok bool) {
	if err == nil {
		return 0, true
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), true
	}
	return -1, false
}
