//go:build !unix

package process

import "os/exec"

// configureProcessGroup keeps exec's default cancellation (kill the child).
func configureProcessGroup(cmd *exec.Cmd) {}

func killProcessGroup(pid int) {}
