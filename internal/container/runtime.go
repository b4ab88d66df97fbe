// Package container is the narrow capability layer between musectl and the
// container engine. Orchestration code depends on Runtime only, so it can be
// exercised against containertest.Fake without a Docker daemon.
package container

import (
	"context"
	"io"
	"strings"

	"github.com/google/uuid"
)

const (
	// LabelCreator marks every container musectl starts.
	LabelCreator = "creator"
	// LabelPurpose records which operation started the container.
	LabelPurpose = "musectl.purpose"
	creatorValue = "musectl"
)

// Runtime is everything the launcher needs from a container engine.
type Runtime interface {
	// Ping reports whether the engine daemon is reachable.
	Ping(ctx context.Context) error
	// ImageExists reports whether tag is present locally.
	ImageExists(ctx context.Context, tag string) (bool, error)
	// Build builds an image and blocks until the build finishes.
	Build(ctx context.Context, spec BuildSpec) error
	// Run starts a non-interactive container, streams its output to
	// spec.Output, waits for it to exit and removes it. The returned int is
	// the container exit code.
	Run(ctx context.Context, spec RunSpec) (int, error)
	// RunInteractive is Run with the operator's terminal attached.
	RunInteractive(ctx context.Context, spec RunSpec) (int, error)
	// RemoveImage deletes tag. A missing image is not an error.
	RemoveImage(ctx context.Context, tag string) error
	// Prune removes dangling images and build cache.
	Prune(ctx context.Context) (PruneReport, error)
}

// Mount binds a host directory into the container.
type Mount struct {
	HostPath      string
	ContainerPath string
	ReadOnly      bool
}

// PortBinding publishes ContainerPort/tcp on HostPort.
type PortBinding struct {
	HostIP        string
	HostPort      int
	ContainerPort int
}

// RunSpec describes one container invocation.
type RunSpec struct {
	Image   string
	Name    string
	Cmd     []string
	WorkDir string
	Env     map[string]string
	Labels  map[string]string
	Mounts  []Mount
	Ports   []PortBinding
	// GPUs uses the docker --gpus syntax ("all", "device=0", "count=2").
	// Empty disables GPU access.
	GPUs string
	// Output receives the container's combined stdout/stderr. Nil means
	// os.Stdout.
	Output io.Writer
}

// BuildSpec describes an image build.
type BuildSpec struct {
	Tag        string
	ContextDir string
	Dockerfile string
	NoCache    bool
	Pull       bool
	Output     io.Writer
}

// PruneReport summarizes what Prune reclaimed.
type PruneReport struct {
	ImagesDeleted  int
	CacheDeleted   int
	SpaceReclaimed uint64
}

// NewName returns a unique container name for the given purpose, e.g.
// "musectl-run-1a2b3c4d".
func NewName(purpose string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "musectl-" + purpose + "-" + id[:8]
}

// Labels returns the standard label set for a container started for purpose.
func Labels(purpose string) map[string]string {
	return map[string]string{
		LabelCreator: creatorValue,
		LabelPurpose: purpose,
	}
}
