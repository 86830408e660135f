//go:build !windows

package supervisor

import (
	"syscall"
)

// terminate sends SIGTERM to the process group of p.
func terminate(p *process) error {
	return signalGroup(p, syscall.SIGTERM)
}

// kill sends SIGKILL to the process group of p.
func kill(p *process) error {
	return signalGroup(p, syscall.SIGKILL)
}

func signalGroup(p *process, sig syscall.Signal) error {
	if p == nil || p.cmd.Process == nil {
		return nil
	}
	pgid, err := syscall.Getpgid(p.pid)
	if err == nil {
		if err = syscall.Kill(-pgid, sig); err == nil {
			return nil
		}
	}
	return p.cmd.Process.Signal(sig)
}
