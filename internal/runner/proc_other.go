//go:build !unix

package runner

import "os/exec"

// killTree keeps the default cancel, which kills the direct child only.
// WaitDelay and the pipe watchdog in Run cover leftover descendants.
func killTree(c *exec.Cmd) {}
