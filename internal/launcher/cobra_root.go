package launcher

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// buildRootCmdWith constructs the command tree; flag values land in o.
func buildRootCmdWith(o *Options, stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "musectl",
		Short:         "Build and run the MuseTalk lip-sync container",
		SilenceUsage:  true,
		SilenceErrors: true,
		// unknown commands fall through to usage
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
			}
			usage(stdout, cmd.PersistentFlags().FlagUsages())
			return nil
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.CompletionOptions.HiddenDefaultCmd = true
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return errUsage("%v", err)
	})
	defaultHelp := root.HelpFunc()
	root.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if cmd == root {
			usage(stdout, root.PersistentFlags().FlagUsages())
			return
		}
		defaultHelp(cmd, args)
	})

	pf := root.PersistentFlags()
	pf.StringVar(&o.ConfigFile, "config", "", "Config file (.yaml, .json or .toml; defaults MUSECTL_CONFIG)")
	pf.StringVar(&o.EnvFile, "env-file", ".env", "dotenv file loaded before reading MUSECTL_* variables")
	pf.StringVar(&o.LogLevel, "log-level", "", "Log level: debug|info|warn|error (defaults MUSECTL_LOG_LEVEL or info)")
	pf.StringVar(&o.Image, "image", "", "Job image tag (default musetalk:latest)")
	pf.StringVar(&o.InputDir, "input-dir", "", "Host input directory (default ./input)")
	pf.StringVar(&o.OutputDir, "output-dir", "", "Host output directory (default ./output)")
	pf.StringVar(&o.ConfigDir, "config-dir", "", "Host config directory (default ./configs)")
	pf.IntVar(&o.WebPort, "web-port", 0, "Web UI port (default 7860)")
	pf.StringVar(&o.MetricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile")

	simple := func(c Command, short string) *cobra.Command {
		return &cobra.Command{
			Use:   c.String(),
			Short: short,
			Args:  noArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return invoke(cmd.Context(), c, args, o, stdout, stderr)
			},
		}
	}

	runCmd := &cobra.Command{
		Use:     "run <video> <audio>",
		Short:   "Lip-sync a video to an audio track",
		Example: "  musectl run input/video.mp4 input/audio.wav\n  musectl run --preset natural clip.mp4 voice.wav",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) < 2 {
				return errUsage("run requires a video and an audio file")
			}
			if len(args) > 2 {
				return errUsage("run takes exactly two files, got %d", len(args))
			}
			o.bboxSet = cmd.Flags().Changed("bbox-shift")
			return invoke(cmd.Context(), CommandRun, args, o, stdout, stderr)
		},
	}
	rf := runCmd.Flags()
	rf.StringVar(&o.Preset, "preset", "", "bbox_shift preset: natural|subtle")
	rf.IntVar(&o.BBoxShift, "bbox-shift", 0, "Mouth bounding-box shift; negative opens the mouth less")
	rf.IntVar(&o.BatchSize, "batch-size", 0, "Inference batch size (default 4)")
	rf.IntVar(&o.FPS, "fps", 0, "Output frame rate (default 25)")
	rf.StringVar(&o.ResultName, "result-name", "", "Result file name (default lipsync_output.mp4)")

	doctorCmd := simple(CommandDoctor, "Diagnose Docker, GPU and directory setup")
	doctorCmd.Flags().BoolVar(&o.JSON, "json", false, "Print the report as JSON")

	root.AddCommand(
		simple(CommandBuild, "Build the MuseTalk image if it is not present"),
		simple(CommandRebuild, "Rebuild the image from scratch (no cache)"),
		runCmd,
		simple(CommandGradio, "Start the web UI"),
		simple(CommandShell, "Open a shell inside the container"),
		simple(CommandClean, "Remove the image and prune build cache"),
		doctorCmd,
	)
	return root
}

func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return errUsage("%s takes no arguments, got %q", cmd.Name(), args[0])
	}
	return nil
}
