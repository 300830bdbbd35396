//go:build windows

package traceroute

import (
	"os/exec"
	"syscall"
)

// processGroupAttr: tracert.exe has no child processes worth isolating
// into a group; nothing to set.
func processGroupAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{}
}

// killProcessGroup kills the tracert.exe process directly.
func killProcessGroup(cmd *exec.Cmd) {
	_ = cmd.Process.Kill()
}

// selfTerminated reports whether waitErr reflects a clean (exit-code 0)
// termination; Windows processes killed via TerminateProcess don't carry
// the POSIX SIGKILL/SIGTERM distinction, so only the zero exit code
// counts as self-termination here.
func selfTerminated(waitErr error) bool {
	exitErr, ok := waitErr.(*exec.ExitError)
	if !ok {
		return false
	}
	return exitErr.ExitCode() == 0
}
