//go:build !windows

package task

import (
	osexec "os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setProcessGroup starts the build tool in its own group so cancellation
// also stops the compilers it spawns.
func setProcessGroup(cmd *osexec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killProcessGroup(cmd *osexec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	if err == unix.ESRCH {
		return nil
	}
	return err
}
