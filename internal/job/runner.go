// Package job runs a single batch inference in the Job Container.
package job

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"musectl/internal/config"
	"musectl/internal/container"
	"musectl/internal/staging"
)

// Result describes a finished inference run.
type Result struct {
	JobID      string
	TaskConfig TaskFile
	Code       int
	// Output is nil when the container succeeded but no rendered video
	// could be found.
	Output *Output
}

// Runner launches the Job Container in batch mode for staged jobs.
type Runner struct {
	rt     container.Runtime
	cfg    config.Config
	params Params
	log    zerolog.Logger
	// Output receives the container's output; nil means os.Stdout.
	Output io.Writer

	now func() time.Time
}

func NewRunner(rt container.Runtime, cfg config.Config, params Params, log zerolog.Logger) *Runner {
	return &Runner{rt: rt, cfg: cfg, params: params, log: log, now: time.Now}
}

// RunInference writes the task config for staged, runs the container to
// completion and locates the rendered video. A non-zero container exit is
// returned as *RuntimeError; there is no retry.
func (r *Runner) RunInference(ctx context.Context, staged staging.StagedJob) (Result, error) {
	if err := r.params.Validate(); err != nil {
		return Result{}, err
	}
	res := Result{JobID: uuid.NewString()}
	tf, err := writeTaskConfig(r.cfg.ConfigDir, r.cfg.ContainerConfigDir, res.JobID,
		staged.ContainerVideo, staged.ContainerAudio, r.params)
	if err != nil {
		return res, err
	}
	res.TaskConfig = tf

	out := r.Output
	if out == nil {
		out = os.Stdout
	}
	tail := container.NewTailBuffer(r.cfg.TailLines)
	// Filesystem mtimes may be coarser than the wall clock.
	start := r.now().Truncate(time.Second)
	spec := container.RunSpec{
		Image:   r.cfg.Image,
		Name:    container.NewName("run"),
		Cmd:     r.command(tf.ContainerPath, staged),
		WorkDir: r.cfg.ContainerWorkDir,
		Mounts:  SystemMounts(r.cfg),
		GPUs:    r.cfg.GPUs,
		Labels:  container.Labels("run"),
		Output:  io.MultiWriter(out, tail),
	}
	r.log.Info().
		Str("job", res.JobID).
		Str("container", spec.Name).
		Int("bbox_shift", r.params.BBoxShift).
		Int("batch_size", r.params.BatchSize).
		Msg("starting inference")

	code, err := r.rt.Run(ctx, spec)
	res.Code = code
	if err != nil {
		return res, &RuntimeError{Op: "inference", Code: -1, Tail: tail.String(), Err: err}
	}
	if ctx.Err() != nil {
		return res, &RuntimeError{Op: "inference", Code: code, Tail: tail.String(), Err: fmt.Errorf("interrupted: %w", ctx.Err())}
	}
	if code != 0 {
		return res, &RuntimeError{Op: "inference", Code: code, Tail: tail.String()}
	}

	if o, ok := FindOutput(r.cfg.OutputDir, r.params.ResultName, start); ok {
		res.Output = &o
		r.log.Info().
			Str("job", res.JobID).
			Str("output", o.Path).
			Str("size", humanize.Bytes(uint64(o.Size))).
			Msg("inference finished")
	} else {
		r.log.Warn().
			Str("job", res.JobID).
			Str("output_dir", r.cfg.OutputDir).
			Msg("inference exited 0 but no output video was found")
	}
	return res, nil
}

func (r *Runner) command(taskConfig string, staged staging.StagedJob) []string {
	p := r.params
	return []string{
		"python", "-m", "scripts.inference",
		"--inference_config", taskConfig,
		"--result_dir", r.cfg.ContainerOutputDir,
		"--unet_model_path", p.UNetModelPath,
		"--unet_config", p.UNetConfig,
		"--version", p.Version,
		"--ffmpeg_path", p.FFmpegPath,
		"--whisper_dir", p.WhisperDir,
		"--batch_size", strconv.Itoa(p.BatchSize),
		"--fps", strconv.Itoa(p.FPS),
		"--video_path", staged.ContainerVideo,
		"--audio_path", staged.ContainerAudio,
	}
}

// SystemMounts returns the input, output and config bind mounts shared by
// every Job Container mode. All are read-write.
func SystemMounts(cfg config.Config) []container.Mount {
	return []container.Mount{
		{HostPath: cfg.InputDir, ContainerPath: cfg.ContainerInputDir},
		{HostPath: cfg.OutputDir, ContainerPath: cfg.ContainerOutputDir},
		{HostPath: cfg.ConfigDir, ContainerPath: cfg.ContainerConfigDir},
	}
}
