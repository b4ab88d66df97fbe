// Package launcher is the musectl command dispatcher: it parses the
// invocation, assembles configuration and runtime, routes to one component
// and owns the exit-code policy.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"musectl/internal/config"
	"musectl/internal/job"
	"musectl/internal/logging"
	"musectl/internal/metrics"
)

// Options collects flag values. Zero values defer to env, file and defaults.
type Options struct {
	ConfigFile  string
	EnvFile     string
	LogLevel    string
	Image       string
	InputDir    string
	OutputDir   string
	ConfigDir   string
	WebPort     int
	MetricsFile string

	// run
	Preset     string
	BBoxShift  int
	bboxSet    bool
	BatchSize  int
	FPS        int
	ResultName string

	// doctor
	JSON bool
}

func (o *Options) overrides() config.Config {
	return config.Config{
		Image:       o.Image,
		InputDir:    o.InputDir,
		OutputDir:   o.OutputDir,
		ConfigDir:   o.ConfigDir,
		WebPort:     o.WebPort,
		LogLevel:    o.LogLevel,
		MetricsFile: o.MetricsFile,
	}
}

func usage(w io.Writer, flags string) {
	fmt.Fprintln(w, "Usage: musectl [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  build                  Build the MuseTalk image if it is not present")
	fmt.Fprintln(w, "  rebuild                Rebuild the image from scratch (no cache)")
	fmt.Fprintln(w, "  run <video> <audio>    Lip-sync a video to an audio track")
	fmt.Fprintln(w, "  gradio                 Start the web UI (port 7860 by default)")
	fmt.Fprintln(w, "  shell                  Open a shell inside the container")
	fmt.Fprintln(w, "  clean                  Remove the image and prune build cache")
	fmt.Fprintln(w, "  doctor                 Diagnose Docker, GPU and directory setup")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Examples:")
	fmt.Fprintln(w, "  musectl run input/video.mp4 input/audio.wav")
	fmt.Fprintln(w, "  musectl gradio")
	fmt.Fprintln(w, "  musectl build")
	if flags != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Flags:")
		fmt.Fprint(w, flags)
	}
}

// loadConfig layers defaults, config file, environment (after .env) and
// flags, then resolves host paths against the working directory.
func loadConfig(o *Options) (config.Config, error) {
	wd, err := fnGetwd()
	if err != nil {
		return config.Config{}, err
	}
	envFile := o.EnvFile
	if envFile != "" && !filepath.IsAbs(envFile) {
		envFile = filepath.Join(wd, envFile)
	}
	if err := config.LoadDotEnv(envFile); err != nil {
		return config.Config{}, &configError{err}
	}

	cfg := config.Default()
	path := o.ConfigFile
	if path == "" {
		path = strings.TrimSpace(os.Getenv(config.EnvPrefix + "CONFIG"))
	}
	if path != "" {
		fc, err := config.Load(path)
		if err != nil {
			return config.Config{}, &configError{err}
		}
		cfg = config.Merge(cfg, fc)
	}
	ec, err := config.FromEnv()
	if err != nil {
		return config.Config{}, &configError{err}
	}
	cfg = config.Merge(cfg, ec)
	cfg = config.Merge(cfg, o.overrides())

	if err := cfg.Resolve(wd); err != nil {
		return config.Config{}, &configError{err}
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, &configError{err}
	}
	return cfg, nil
}

func jobParams(cfg config.Config, o *Options) (job.Params, error) {
	p, err := job.ParamsFromConfig(cfg.Inference).WithPreset(o.Preset)
	if err != nil {
		return p, errUsage("%v", err)
	}
	if o.bboxSet {
		p.BBoxShift = o.BBoxShift
	}
	if o.BatchSize != 0 {
		p.BatchSize = o.BatchSize
	}
	if o.FPS != 0 {
		p.FPS = o.FPS
	}
	if o.ResultName != "" {
		p.ResultName = o.ResultName
	}
	if err := p.Validate(); err != nil {
		return p, errUsage("%v", err)
	}
	return p, nil
}

// invoke assembles Deps for c, runs it and records metrics.
func invoke(ctx context.Context, c Command, args []string, o *Options, stdout, stderr io.Writer) error {
	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}
	log := logging.New(stderr, cfg.LogLevel)
	d := &Deps{Config: cfg, Log: log, Stdout: stdout, Stderr: stderr, JSON: o.JSON}
	if c == CommandRun {
		if d.Params, err = jobParams(cfg, o); err != nil {
			return err
		}
	}
	if d.Runtime, err = fnNewRuntime(cfg, logging.Component(log, "container")); err != nil {
		return err
	}

	rec := metrics.NewRecorder()
	start := time.Now()
	err = Run(ctx, c, args, d)
	rec.Observe(c.String(), time.Since(start), err)
	if c.startsJobContainer() {
		if code, ok := containerExit(err); ok {
			rec.ContainerExit(c.String(), code)
		}
	}
	if werr := rec.WriteTextfile(cfg.MetricsFile); werr != nil {
		log.Warn().Err(werr).Str("path", cfg.MetricsFile).Msg("could not write metrics")
	}
	return err
}

// execute runs one invocation and maps its outcome to an exit code. Every
// error is printed once, prefixed with its category.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	o := &Options{}
	root := buildRootCmdWith(o, stdout, stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	fmt.Fprintf(stderr, "%s: %v\n", category(err), err)
	var ue *usageError
	if errors.As(err, &ue) {
		fmt.Fprintln(stderr)
		usage(stderr, root.PersistentFlags().FlagUsages())
	}
	return exitCode(err)
}

// MainWithArgs is a testable variant of Main that accepts args explicitly.
// SIGINT and SIGTERM cancel the running command, which stops its container.
func MainWithArgs(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return execute(ctx, args, os.Stdout, os.Stderr)
}

// Main returns an exit code (0 for success, non-zero on error) for use by cmd/musectl.
func Main() int { return MainWithArgs(os.Args[1:]) }
