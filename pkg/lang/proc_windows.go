//go:build windows

package lang

import "os/exec"

func setProcessGroup(cmd *exec.Cmd) {}

func forceKill(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
