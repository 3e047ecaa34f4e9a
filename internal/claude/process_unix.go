//go:build unix

package claude

import (
	"os/exec"
	"syscall"
)

// setupProcessGroup configures the command to run in its own process group
// so that timeout termination reaches the whole process tree, not just the
// immediate child.
func setupProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// killProcessGroup terminates the process group associated with the command.
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process != nil {
		// Signal the entire group via the negative PID
		syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
