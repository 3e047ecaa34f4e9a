//go:build windows

package claude

import (
	"os/exec"
	"syscall"
)

// setupProcessGroup configures the command to run in its own process group.
// On Windows this uses CREATE_NEW_PROCESS_GROUP.
func setupProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.CreationFlags = syscall.CREATE_NEW_PROCESS_GROUP
}

// killProcessGroup terminates the process group associated with the command.
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process != nil {
		cmd.Process.Kill()
	}
}
