// Package preflight verifies the host can run the Job Container before any
// build, run or interactive operation touches it.
package preflight

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"musectl/internal/container"
)

// gpuProbeCmd is executed inside the reference image; it exits non-zero when
// no GPU is visible to the container.
var gpuProbeCmd = []string{"nvidia-smi", "-L"}

// Checker runs the daemon and GPU-passthrough checks.
type Checker struct {
	rt       container.Runtime
	refImage string
	gpus     string
	log      zerolog.Logger
	// Output receives the probe container's output; nil discards it.
	Output io.Writer
}

// NewChecker builds a checker probing GPU access with refImage.
func NewChecker(rt container.Runtime, refImage, gpus string, log zerolog.Logger) *Checker {
	return &Checker{rt: rt, refImage: refImage, gpus: gpus, log: log}
}

// Check runs both checks in order and stops at the first failure.
func (c *Checker) Check(ctx context.Context) error {
	if err := c.checkDaemon(ctx); err != nil {
		return err
	}
	return c.checkGPU(ctx)
}

func (c *Checker) checkDaemon(ctx context.Context) error {
	c.log.Debug().Msg("checking container daemon")
	if err := c.rt.Ping(ctx); err != nil {
		return &EnvironmentError{
			Kind:   DaemonUnavailable,
			Detail: "is the Docker daemon running and is your user allowed to use it?",
			Err:    err,
		}
	}
	return nil
}

func (c *Checker) checkGPU(ctx context.Context) error {
	c.log.Debug().Str("image", c.refImage).Msg("checking GPU passthrough")
	out := c.Output
	if out == nil {
		out = io.Discard
	}
	tail := container.NewTailBuffer(5)
	code, err := c.rt.Run(ctx, container.RunSpec{
		Image:  c.refImage,
		Name:   container.NewName("gpucheck"),
		Cmd:    gpuProbeCmd,
		GPUs:   c.gpus,
		Labels: container.Labels("gpucheck"),
		Output: io.MultiWriter(out, tail),
	})
	if err != nil {
		return &EnvironmentError{
			Kind:   GpuRuntimeUnavailable,
			Detail: fmt.Sprintf("could not start %s with GPU access; is the NVIDIA Container Toolkit installed?", c.refImage),
			Err:    err,
		}
	}
	if code != 0 {
		return &EnvironmentError{
			Kind:   GpuRuntimeUnavailable,
			Detail: fmt.Sprintf("%s exited with status %d: %s", c.refImage, code, tail.String()),
		}
	}
	c.log.Info().Msg("GPU runtime available")
	return nil
}
