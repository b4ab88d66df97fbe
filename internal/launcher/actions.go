package launcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"musectl/internal/config"
	"musectl/internal/container"
	"musectl/internal/image"
	"musectl/internal/job"
	"musectl/internal/logging"
	"musectl/internal/preflight"
	"musectl/internal/session"
	"musectl/internal/staging"
)

// Indirection layer to allow stubbing in tests

var (
	fnNewRuntime = newDockerRuntime
	fnGetwd      = os.Getwd
)

func newDockerRuntime(cfg config.Config, log zerolog.Logger) (container.Runtime, error) {
	d, err := container.NewDocker(cfg.DockerBin, log)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Deps is everything a command needs, assembled once per invocation.
type Deps struct {
	Config  config.Config
	Runtime container.Runtime
	Params  job.Params
	Log     zerolog.Logger
	Stdout  io.Writer
	Stderr  io.Writer
	// JSON switches doctor output to JSON.
	JSON bool
}

// Run executes one command. For run, the input files are validated before
// anything is started; host directories exist and preflight has passed
// before any Job Container is started.
func Run(ctx context.Context, c Command, args []string, d *Deps) error {
	var j staging.Job
	switch c {
	case CommandHelp:
		usage(d.Stdout, "")
		return nil
	case CommandDoctor:
		return runDoctor(ctx, d)
	case CommandRun:
		if len(args) < 2 {
			return errUsage("run requires a video and an audio file")
		}
		j = staging.Job{VideoPath: args[0], AudioPath: args[1]}
		if err := newStager(d).Validate(j); err != nil {
			return err
		}
	}

	if err := d.Config.EnsureDirs(); err != nil {
		return err
	}
	if c.NeedsPreflight() {
		chk := preflight.NewChecker(d.Runtime, d.Config.GPUCheckImage, d.Config.GPUs, logging.Component(d.Log, "preflight"))
		if err := chk.Check(ctx); err != nil {
			return err
		}
	}

	switch c {
	case CommandBuild:
		_, err := imageManager(d).Build(ctx)
		return err
	case CommandRebuild:
		return imageManager(d).Rebuild(ctx)
	case CommandClean:
		return imageManager(d).Clean(ctx)
	case CommandRun:
		return runInference(ctx, d, j)
	case CommandGradio:
		l := session.NewLauncher(d.Runtime, d.Config, logging.Component(d.Log, "session"))
		l.Output = d.Stdout
		return l.LaunchWebService(ctx)
	case CommandShell:
		return session.NewLauncher(d.Runtime, d.Config, logging.Component(d.Log, "session")).LaunchShell(ctx)
	}
	return fmt.Errorf("unhandled command %s", c)
}

func imageManager(d *Deps) *image.Manager {
	return image.NewManager(d.Runtime, image.Options{
		Tag:        d.Config.Image,
		ContextDir: d.Config.BuildContext,
		Dockerfile: d.Config.Dockerfile,
		TailLines:  d.Config.TailLines,
		Output:     d.Stdout,
	}, logging.Component(d.Log, "image"))
}

func newStager(d *Deps) *staging.Stager {
	return staging.NewStager(d.Config.InputDir, d.Config.ContainerInputDir, logging.Component(d.Log, "staging"))
}

func runInference(ctx context.Context, d *Deps, j staging.Job) error {
	staged, err := newStager(d).Stage(j)
	if err != nil {
		return err
	}
	r := job.NewRunner(d.Runtime, d.Config, d.Params, logging.Component(d.Log, "job"))
	r.Output = d.Stdout
	res, err := r.RunInference(ctx, staged)
	if err != nil {
		return err
	}
	if res.Output != nil {
		fmt.Fprintf(d.Stdout, "Output: %s (%s)\n", res.Output.Path, humanize.Bytes(uint64(res.Output.Size)))
	}
	return nil
}

func runDoctor(ctx context.Context, d *Deps) error {
	if err := d.Config.EnsureDirs(); err != nil {
		d.Log.Debug().Err(err).Msg("could not create host directories")
	}
	chk := preflight.NewChecker(d.Runtime, d.Config.GPUCheckImage, d.Config.GPUs, logging.Component(d.Log, "preflight"))
	rep := chk.Report(ctx, preflight.Target{
		DockerBin: d.Config.DockerBin,
		Image:     d.Config.Image,
		Dirs:      []string{d.Config.InputDir, d.Config.OutputDir, d.Config.ConfigDir},
	})
	if d.JSON {
		enc := json.NewEncoder(d.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			return err
		}
	} else {
		rep.Render(d.Stdout)
	}
	if rep.HasFailures {
		return errChecksFailed
	}
	return nil
}
