package supervisor

import (
	"os/exec"
	"syscall"
)

// setProcAttr puts the child in its own process group. Pdeathsig makes the kernel
// send SIGTERM to the wrapper if the manager dies without stopping it.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGTERM,
	}
}
