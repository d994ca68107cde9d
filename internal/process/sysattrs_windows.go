//go:build windows

package process

import (
	"errors"
	"os/exec"
	"syscall"
)

func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

func signalGroup(pgid int, sig syscall.Signal) error {
	return errors.New("signalling a process group is not supported on windows")
}
