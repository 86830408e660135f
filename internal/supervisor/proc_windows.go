//go:build windows

package supervisor

import (
	"os/exec"
)

// setProcAttr is a no-op on Windows, there are no process groups via Setpgid.
func setProcAttr(cmd *exec.Cmd) {}

// terminate kills the process. Windows has no SIGTERM.
func terminate(p *process) error {
	if p == nil || p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

// kill is a second terminate attempt.
func kill(p *process) error {
	return terminate(p)
}
