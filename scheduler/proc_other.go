//go:build !windows

package scheduler

import "os/exec"

func hideWindow(cmd *exec.Cmd) {}
