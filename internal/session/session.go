// Package session starts the Job Container in its long-running operator
// modes: the web UI and a diagnostic shell.
package session

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"musectl/internal/config"
	"musectl/internal/container"
	"musectl/internal/job"
)

var shellCmd = []string{"/bin/bash"}

// webContainerPort is where app.py listens inside the Job Container; only the
// host side of the mapping is configurable.
const webContainerPort = 7860

// Launcher starts interactive sessions. Preflight must have passed.
type Launcher struct {
	rt  container.Runtime
	cfg config.Config
	log zerolog.Logger
	// Output receives the web service's output; nil means os.Stdout.
	Output io.Writer
}

func NewLauncher(rt container.Runtime, cfg config.Config, log zerolog.Logger) *Launcher {
	return &Launcher{rt: rt, cfg: cfg, log: log}
}

// WebCommand is the web-service entry point with the configured precision
// flag, e.g. "python app.py --use_float16".
func WebCommand(cfg config.Config) []string {
	cmd := []string{"python", "app.py"}
	if strings.EqualFold(strings.TrimSpace(cfg.Precision), config.PrecisionNone) {
		return cmd
	}
	return append(cmd, strings.Fields(cfg.Precision)...)
}

// LaunchWebService runs the web UI until it exits or ctx is cancelled. An
// operator interrupt that stops the container is a clean exit.
func (l *Launcher) LaunchWebService(ctx context.Context) error {
	out := l.Output
	if out == nil {
		out = os.Stdout
	}
	tail := container.NewTailBuffer(l.cfg.TailLines)
	spec := container.RunSpec{
		Image:   l.cfg.Image,
		Name:    container.NewName("gradio"),
		Cmd:     WebCommand(l.cfg),
		WorkDir: l.cfg.ContainerWorkDir,
		Mounts:  job.SystemMounts(l.cfg),
		Ports:   []container.PortBinding{{HostPort: l.cfg.WebPort, ContainerPort: webContainerPort}},
		GPUs:    l.cfg.GPUs,
		Labels:  container.Labels("gradio"),
		Output:  io.MultiWriter(out, tail),
	}
	l.log.Info().
		Str("container", spec.Name).
		Str("url", "http://localhost:"+strconv.Itoa(l.cfg.WebPort)).
		Msg("starting web service; press Ctrl+C to stop")

	code, err := l.rt.Run(ctx, spec)
	if ctx.Err() != nil {
		l.log.Info().Int("code", code).Msg("web service stopped")
		return nil
	}
	if err != nil {
		return &job.RuntimeError{Op: "web service", Code: -1, Tail: tail.String(), Err: err}
	}
	if code != 0 {
		return &job.RuntimeError{Op: "web service", Code: code, Tail: tail.String()}
	}
	return nil
}

// LaunchShell attaches the operator's terminal to a shell in the Job
// Container and returns when the shell exits. The shell's exit status is
// mirrored: a non-zero status is a RuntimeError.
func (l *Launcher) LaunchShell(ctx context.Context) error {
	spec := container.RunSpec{
		Image:   l.cfg.Image,
		Name:    container.NewName("shell"),
		Cmd:     shellCmd,
		WorkDir: l.cfg.ContainerWorkDir,
		Mounts:  job.SystemMounts(l.cfg),
		GPUs:    l.cfg.GPUs,
		Labels:  container.Labels("shell"),
	}
	l.log.Info().Str("container", spec.Name).Msg("opening shell; type exit to leave")
	code, err := l.rt.RunInteractive(ctx, spec)
	if err != nil {
		return &job.RuntimeError{Op: "shell", Code: -1, Err: fmt.Errorf("start shell: %w", err)}
	}
	if code != 0 {
		return &job.RuntimeError{Op: "shell", Code: code}
	}
	return nil
}
