package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"musectl/internal/common/fsutil"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "MUSECTL_"

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if path == "" || !fsutil.PathExists(path) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// FromEnv returns a partial Config populated from MUSECTL_* variables. A
// numeric variable that does not parse is an error, never a silent default.
func FromEnv() (Config, error) {
	var errs []error
	c := Config{
		Image:         envStr(EnvPrefix+"IMAGE", ""),
		BuildContext:  envStr(EnvPrefix+"BUILD_CONTEXT", ""),
		Dockerfile:    envStr(EnvPrefix+"DOCKERFILE", ""),
		GPUCheckImage: envStr(EnvPrefix+"GPU_CHECK_IMAGE", ""),
		DockerBin:     envStr(EnvPrefix+"DOCKER_BIN", ""),
		GPUs:          envStr(EnvPrefix+"GPUS", ""),
		InputDir:      envStr(EnvPrefix+"INPUT_DIR", ""),
		OutputDir:     envStr(EnvPrefix+"OUTPUT_DIR", ""),
		ConfigDir:     envStr(EnvPrefix+"CONFIG_DIR", ""),
		WebPort:       envInt(EnvPrefix+"WEB_PORT", &errs),
		Precision:     envStr(EnvPrefix+"PRECISION", ""),
		LogLevel:      envStr(EnvPrefix+"LOG_LEVEL", ""),
		MetricsFile:   envStr(EnvPrefix+"METRICS_FILE", ""),
		TailLines:     envInt(EnvPrefix+"TAIL_LINES", &errs),
	}
	return c, errors.Join(errs...)
}

func envStr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// envInt returns 0 for an unset variable and records a parse failure in errs.
func envInt(key string, errs *[]error) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s=%q is not an integer", key, v))
		return 0
	}
	return n
}
