//go:build unix

package runner

import (
	"os/exec"
	"syscall"
)

// killTree puts the child in its own process group and makes
// cancellation kill the whole group.
func killTree(c *exec.Cmd) {
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	c.Cancel = func() error {
		return syscall.Kill(-c.Process.Pid, syscall.SIGKILL)
	}
}
