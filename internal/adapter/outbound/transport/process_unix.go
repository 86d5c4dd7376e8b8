//go:build !windows

package transport

import (
	"os"
	"os/exec"
	"syscall"
)

// configureProcess applies platform process attributes before start.
func configureProcess(cmd *exec.Cmd) {}

// terminate asks the process to exit with SIGTERM.
func terminate(proc *os.Process) error {
	return proc.Signal(syscall.SIGTERM)
}
