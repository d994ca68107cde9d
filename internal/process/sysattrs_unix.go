//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr places the scan in a new process group so one signal
// reaches every child it spawns.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalGroup sends sig to every process in the group led by pgid.
func signalGroup(pgid int, sig syscall.Signal) error {
	return syscall.Kill(-pgid, sig)
}
