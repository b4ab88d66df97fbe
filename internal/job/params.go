package job

import (
	"fmt"
	"sort"
	"strings"

	"musectl/internal/config"
)

// Presets name common bbox_shift values. Negative shifts open the mouth
// less.
var Presets = map[string]int{
	"natural": -3,
	"subtle":  -5,
}

// Params are the per-job knobs passed to the batch entry point.
type Params struct {
	BBoxShift     int
	BatchSize     int
	FPS           int
	Version       string
	ResultName    string
	UNetModelPath string
	UNetConfig    string
	WhisperDir    string
	FFmpegPath    string
}

// ParamsFromConfig copies the inference section of cfg.
func ParamsFromConfig(inf config.Inference) Params {
	return Params{
		BBoxShift:     inf.BBoxShift,
		BatchSize:     inf.BatchSize,
		FPS:           inf.FPS,
		Version:       inf.Version,
		ResultName:    inf.ResultName,
		UNetModelPath: inf.UNetModelPath,
		UNetConfig:    inf.UNetConfig,
		WhisperDir:    inf.WhisperDir,
		FFmpegPath:    inf.FFmpegPath,
	}
}

// WithPreset returns p with BBoxShift set from the named preset. An empty
// name leaves p unchanged.
func (p Params) WithPreset(name string) (Params, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return p, nil
	}
	shift, ok := Presets[name]
	if !ok {
		return p, fmt.Errorf("unknown preset %q (have %s)", name, strings.Join(PresetNames(), ", "))
	}
	p.BBoxShift = shift
	return p, nil
}

// Validate rejects parameters the entry point would choke on.
func (p Params) Validate() error {
	if p.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", p.BatchSize)
	}
	if p.FPS <= 0 {
		return fmt.Errorf("fps must be positive, got %d", p.FPS)
	}
	if strings.TrimSpace(p.ResultName) == "" {
		return fmt.Errorf("result name is empty")
	}
	if strings.ContainsAny(p.ResultName, `/\`) {
		return fmt.Errorf("result name must be a bare file name, got %q", p.ResultName)
	}
	return nil
}

// PresetNames lists the preset names in stable order.
func PresetNames() []string {
	out := make([]string, 0, len(Presets))
	for k := range Presets {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
