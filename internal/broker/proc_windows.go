//go:build windows

package broker

import "os/exec"

func configureProcess(cmd *exec.Cmd) {}

// Windows has no portable termination signal for arbitrary processes.
func requestTermination(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}
