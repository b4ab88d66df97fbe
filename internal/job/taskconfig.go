package job

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// taskDir is the config subdirectory holding per-job task files.
const taskDir = "inference"

type task struct {
	VideoPath  string `yaml:"video_path"`
	AudioPath  string `yaml:"audio_path"`
	BBoxShift  int    `yaml:"bbox_shift"`
	ResultName string `yaml:"result_name"`
}

// TaskFile is a task config written on the host and its in-container path.
type TaskFile struct {
	HostPath      string
	ContainerPath string
}

// writeTaskConfig writes the single-task inference config for id under
// hostConfigDir/inference. Video and audio paths are container-side.
func writeTaskConfig(hostConfigDir, containerConfigDir, id, video, audio string, p Params) (TaskFile, error) {
	doc := map[string]task{
		"task1": {
			VideoPath:  video,
			AudioPath:  audio,
			BBoxShift:  p.BBoxShift,
			ResultName: p.ResultName,
		},
	}
	b, err := yaml.Marshal(doc)
	if err != nil {
		return TaskFile{}, fmt.Errorf("encode task config: %w", err)
	}
	dir := filepath.Join(hostConfigDir, taskDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return TaskFile{}, fmt.Errorf("create %s: %w", dir, err)
	}
	name := id + ".yaml"
	hostPath := filepath.Join(dir, name)
	if err := os.WriteFile(hostPath, b, 0o644); err != nil {
		return TaskFile{}, fmt.Errorf("write task config: %w", err)
	}
	return TaskFile{
		HostPath:      hostPath,
		ContainerPath: path.Join(containerConfigDir, taskDir, name),
	}, nil
}
