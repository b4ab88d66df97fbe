package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// stopGrace is how long a cancelled child gets between SIGINT and SIGKILL.
var stopGrace = 10 * time.Second

// Cmd is a single external command invocation.
type Cmd struct {
	Path   string
	Args   []string
	Env    map[string]string // additional env vars
	Dir    string            // working directory
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// RunCmd runs c to completion and returns its exit code. A non-zero exit is
// not an error; err is set only when the command could not be started or
// waited on. When ctx is cancelled the child receives SIGINT first so docker
// can forward it to the container, and is killed after stopGrace.
func RunCmd(ctx context.Context, c Cmd) (int, error) {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	if c.Dir != "" {
		cmd.Dir = c.Dir
	}
	cmd.Env = os.Environ()
	for k, v := range c.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Stdin = c.Stdin
	cmd.Stdout = orStdout(c.Stdout)
	cmd.Stderr = c.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = cmd.Stdout
	}
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = stopGrace

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return exitCode(ee), nil
	}
	return -1, err
}

func exitCode(ee *exec.ExitError) int {
	if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return ee.ExitCode()
}

func orStdout(w io.Writer) io.Writer {
	if w == nil {
		return os.Stdout
	}
	return w
}
