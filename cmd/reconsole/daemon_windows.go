//go:build windows

package main

import (
	"os/exec"
	"syscall"
)

// createNoWindow keeps the background reconsole serve from opening a console.
const createNoWindow = 0x08000000

// configureDaemonAttrs starts the reconsole daemon in its own process group so
// Ctrl+C in the launching terminal does not reach it.
func configureDaemonAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP | createNoWindow,
	}
}
