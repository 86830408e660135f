package supervisor

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"
)

// process is a spawned child. Its liveness is the state of the wait goroutine.
type process struct {
	cmd       *exec.Cmd
	pid       int
	startedAt time.Time

	done chan struct{}
	err  error // exit error, valid once done is closed
}

func startProcess(cmd *exec.Cmd, stderr io.WriteCloser) (*process, error) {
	cmd.Stderr = stderr
	cmd.WaitDelay = time.Second
	setProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		_ = stderr.Close()
		return nil, fmt.Errorf("failed to spawn %s: %w", cmd.Path, err)
	}

	p := &process{
		cmd:       cmd,
		pid:       cmd.Process.Pid,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
	go func() {
		p.err = cmd.Wait()
		_ = stderr.Close()
		close(p.done)
	}()
	return p, nil
}

// Alive never blocks.
func (p *process) Alive() bool {
	if p == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// wait blocks until the process exits, d elapses or ctx is done. It reports whether the
// process exited.
func (p *process) wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-p.done:
		return true
	case <-t.C:
		return false
	case <-ctx.Done():
		return !p.Alive()
	}
}

// exitErr returns the Wait error, or nil while the process is running.
func (p *process) exitErr() error {
	if p.Alive() {
		return nil
	}
	return p.err
}
