package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"musectl/internal/common/fsutil"
)

// Inference holds the fixed parameters handed to the Job Container's batch
// entry point. Zero values mean "unspecified".
type Inference struct {
	BBoxShift     int    `json:"bbox_shift" yaml:"bbox_shift" toml:"bbox_shift"`
	BatchSize     int    `json:"batch_size" yaml:"batch_size" toml:"batch_size"`
	FPS           int    `json:"fps" yaml:"fps" toml:"fps"`
	Version       string `json:"version" yaml:"version" toml:"version"`
	ResultName    string `json:"result_name" yaml:"result_name" toml:"result_name"`
	UNetModelPath string `json:"unet_model_path" yaml:"unet_model_path" toml:"unet_model_path"`
	UNetConfig    string `json:"unet_config" yaml:"unet_config" toml:"unet_config"`
	WhisperDir    string `json:"whisper_dir" yaml:"whisper_dir" toml:"whisper_dir"`
	FFmpegPath    string `json:"ffmpeg_path" yaml:"ffmpeg_path" toml:"ffmpeg_path"`
}

// Config holds every path, tag and parameter the launcher components need.
// Zero values mean "unspecified" and are filled from Default by Merge.
type Config struct {
	Image         string `json:"image" yaml:"image" toml:"image"`
	BuildContext  string `json:"build_context" yaml:"build_context" toml:"build_context"`
	Dockerfile    string `json:"dockerfile" yaml:"dockerfile" toml:"dockerfile"`
	GPUCheckImage string `json:"gpu_check_image" yaml:"gpu_check_image" toml:"gpu_check_image"`
	DockerBin     string `json:"docker_bin" yaml:"docker_bin" toml:"docker_bin"`
	GPUs          string `json:"gpus" yaml:"gpus" toml:"gpus"`

	InputDir  string `json:"input_dir" yaml:"input_dir" toml:"input_dir"`
	OutputDir string `json:"output_dir" yaml:"output_dir" toml:"output_dir"`
	ConfigDir string `json:"config_dir" yaml:"config_dir" toml:"config_dir"`

	ContainerWorkDir   string `json:"container_workdir" yaml:"container_workdir" toml:"container_workdir"`
	ContainerInputDir  string `json:"container_input_dir" yaml:"container_input_dir" toml:"container_input_dir"`
	ContainerOutputDir string `json:"container_output_dir" yaml:"container_output_dir" toml:"container_output_dir"`
	ContainerConfigDir string `json:"container_config_dir" yaml:"container_config_dir" toml:"container_config_dir"`

	WebPort int `json:"web_port" yaml:"web_port" toml:"web_port"`
	// Precision is extra flags for the web entry point. PrecisionNone runs
	// it with no flag, since an empty value falls through to Default.
	Precision string `json:"precision" yaml:"precision" toml:"precision"`

	Inference Inference `json:"inference" yaml:"inference" toml:"inference"`

	LogLevel    string `json:"log_level" yaml:"log_level" toml:"log_level"`
	MetricsFile string `json:"metrics_file" yaml:"metrics_file" toml:"metrics_file"`
	TailLines   int    `json:"tail_lines" yaml:"tail_lines" toml:"tail_lines"`
}

// PrecisionNone disables the web entry point's precision flag.
const PrecisionNone = "none"

// Default returns the stock configuration: working-directory-relative host
// folders mounted under /app in the Job Container.
func Default() Config {
	return Config{
		Image:              "musetalk:latest",
		BuildContext:       ".",
		Dockerfile:         "Dockerfile",
		GPUCheckImage:      "nvidia/cuda:12.1.0-base-ubuntu22.04",
		DockerBin:          "docker",
		GPUs:               "all",
		InputDir:           "input",
		OutputDir:          "output",
		ConfigDir:          "configs",
		ContainerWorkDir:   "/app",
		ContainerInputDir:  "/app/input",
		ContainerOutputDir: "/app/output",
		ContainerConfigDir: "/app/configs",
		WebPort:            7860,
		Precision:          "--use_float16",
		Inference: Inference{
			BBoxShift:     0,
			BatchSize:     4,
			FPS:           25,
			Version:       "v15",
			ResultName:    "lipsync_output.mp4",
			UNetModelPath: "models/musetalkV15/unet.pth",
			UNetConfig:    "models/musetalkV15/musetalk.json",
			WhisperDir:    "./models/whisper",
			FFmpegPath:    "/usr/bin/ffmpeg",
		},
		LogLevel:  "info",
		TailLines: 40,
	}
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// Merge overlays the non-zero fields of over onto base.
func Merge(base, over Config) Config {
	out := base
	setStr(&out.Image, over.Image)
	setStr(&out.BuildContext, over.BuildContext)
	setStr(&out.Dockerfile, over.Dockerfile)
	setStr(&out.GPUCheckImage, over.GPUCheckImage)
	setStr(&out.DockerBin, over.DockerBin)
	setStr(&out.GPUs, over.GPUs)
	setStr(&out.InputDir, over.InputDir)
	setStr(&out.OutputDir, over.OutputDir)
	setStr(&out.ConfigDir, over.ConfigDir)
	setStr(&out.ContainerWorkDir, over.ContainerWorkDir)
	setStr(&out.ContainerInputDir, over.ContainerInputDir)
	setStr(&out.ContainerOutputDir, over.ContainerOutputDir)
	setStr(&out.ContainerConfigDir, over.ContainerConfigDir)
	setInt(&out.WebPort, over.WebPort)
	setStr(&out.Precision, over.Precision)
	setInt(&out.Inference.BBoxShift, over.Inference.BBoxShift)
	setInt(&out.Inference.BatchSize, over.Inference.BatchSize)
	setInt(&out.Inference.FPS, over.Inference.FPS)
	setStr(&out.Inference.Version, over.Inference.Version)
	setStr(&out.Inference.ResultName, over.Inference.ResultName)
	setStr(&out.Inference.UNetModelPath, over.Inference.UNetModelPath)
	setStr(&out.Inference.UNetConfig, over.Inference.UNetConfig)
	setStr(&out.Inference.WhisperDir, over.Inference.WhisperDir)
	setStr(&out.Inference.FFmpegPath, over.Inference.FFmpegPath)
	setStr(&out.LogLevel, over.LogLevel)
	setStr(&out.MetricsFile, over.MetricsFile)
	setInt(&out.TailLines, over.TailLines)
	return out
}

func setStr(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

// Validate rejects configurations no component can work with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Image) == "" {
		return fmt.Errorf("image tag is empty")
	}
	if strings.TrimSpace(c.GPUs) == "" {
		return fmt.Errorf("gpus is empty; every container needs GPU access")
	}
	if c.WebPort <= 0 || c.WebPort > 65535 {
		return fmt.Errorf("web port out of range: %d", c.WebPort)
	}
	if c.Inference.BatchSize <= 0 {
		return fmt.Errorf("inference batch_size must be positive, got %d", c.Inference.BatchSize)
	}
	if c.Inference.FPS <= 0 {
		return fmt.Errorf("inference fps must be positive, got %d", c.Inference.FPS)
	}
	for name, p := range map[string]string{
		"container_input_dir":  c.ContainerInputDir,
		"container_output_dir": c.ContainerOutputDir,
		"container_config_dir": c.ContainerConfigDir,
	} {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("%s must be an absolute container path, got %q", name, p)
		}
	}
	return nil
}

// Resolve makes host-side paths absolute against baseDir. Bind mounts
// require absolute host paths.
func (c *Config) Resolve(baseDir string) error {
	for _, p := range []*string{&c.InputDir, &c.OutputDir, &c.ConfigDir, &c.BuildContext, &c.MetricsFile} {
		if *p == "" {
			continue
		}
		exp, err := fsutil.ExpandHome(*p)
		if err != nil {
			return err
		}
		if !filepath.IsAbs(exp) {
			exp = filepath.Join(baseDir, exp)
		}
		*p = filepath.Clean(exp)
	}
	return nil
}

// EnsureDirs creates the host input, output and config directories.
func (c Config) EnsureDirs() error {
	return fsutil.EnsureDirs(c.InputDir, c.OutputDir, c.ConfigDir)
}
