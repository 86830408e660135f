package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

// TransportEnv carries the JSON encoded transport to the wrapper. The environment keeps
// headers and secrets out of the process list.
const TransportEnv = "LOCAL_MCP_MANAGER_TRANSPORT"

// Launcher builds the command that runs one service.
type Launcher interface {
	Command(ctx context.Context, d Descriptor) (*exec.Cmd, error)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context, d Descriptor) (*exec.Cmd, error)

func (f LauncherFunc) Command(ctx context.Context, d Descriptor) (*exec.Cmd, error) {
	return f(ctx, d)
}

// WrapperLauncher re-executes the current binary with the hidden wrap subcommand.
type WrapperLauncher struct {
	// Executable defaults to os.Executable().
	Executable string
	// ExtraArgs are appended after the wrap flags, e.g. --debug.
	ExtraArgs []string
}

func (l WrapperLauncher) Command(_ context.Context, d Descriptor) (*exec.Cmd, error) {
	exe := l.Executable
	if exe == "" {
		var err error
		if exe, err = os.Executable(); err != nil {
			return nil, fmt.Errorf("failed to locate executable: %w", err)
		}
	}

	transport, err := json.Marshal(d.Transport)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transport: %w", err)
	}

	args := []string{
		"wrap",
		"--name", d.Name,
		"--host", d.BindHost,
		"--port", strconv.Itoa(d.BindPort),
	}
	args = append(args, l.ExtraArgs...)

	// The process must outlive the request that started it, so ctx is not bound.
	cmd := exec.Command(exe, args...)
	cmd.Env = append(os.Environ(), TransportEnv+"="+string(transport))
	if d.Transport.Local != nil && d.Transport.Local.Cwd != "" {
		if info, err := os.Stat(d.Transport.Local.Cwd); err == nil && info.IsDir() {
			cmd.Dir = d.Transport.Local.Cwd
		}
	}
	return cmd, nil
}
