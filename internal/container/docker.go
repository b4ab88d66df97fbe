package container

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/docker/cli/opts"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	docker "github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/rs/zerolog"
)

// logDrainTimeout bounds how long Run waits for trailing log lines after the
// container has exited.
var logDrainTimeout = 2 * time.Second

// DockerAPI is the subset of the Engine SDK client Docker uses.
// NOTE: keep in sync with the methods called below; mocked in tests.
type DockerAPI interface {
	Ping(ctx context.Context) (types.Ping, error)
	ImageInspectWithRaw(ctx context.Context, imageID string) (types.ImageInspect, []byte, error)
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	ImageRemove(ctx context.Context, imageID string, options image.RemoveOptions) ([]image.DeleteResponse, error)
	ImagesPrune(ctx context.Context, pruneFilter filters.Args) (image.PruneReport, error)
	BuildCachePrune(ctx context.Context, options types.BuildCachePruneOptions) (*types.BuildCachePruneReport, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

var _ DockerAPI = (*docker.Client)(nil)

// Docker implements Runtime with the Engine SDK for API operations and the
// docker CLI for BuildKit builds and TTY sessions.
type Docker struct {
	api    DockerAPI
	bin    string
	log    zerolog.Logger
	runCmd func(context.Context, Cmd) (int, error)
	stdin  io.Reader
	stderr io.Writer
}

var _ Runtime = (*Docker)(nil)

// NewDocker connects to the daemon configured by the DOCKER_* environment.
// No request is made until the first call.
func NewDocker(bin string, log zerolog.Logger) (*Docker, error) {
	cli, err := docker.NewClientWithOpts(docker.FromEnv, docker.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return NewDockerWithAPI(cli, bin, log), nil
}

// NewDockerWithAPI wires an existing API client; used by tests.
func NewDockerWithAPI(api DockerAPI, bin string, log zerolog.Logger) *Docker {
	if bin == "" {
		bin = "docker"
	}
	return &Docker{api: api, bin: bin, log: log, runCmd: RunCmd, stdin: os.Stdin, stderr: os.Stderr}
}

func (d *Docker) Ping(ctx context.Context) error {
	if _, err := d.api.Ping(ctx); err != nil {
		return err
	}
	return nil
}

func (d *Docker) ImageExists(ctx context.Context, tag string) (bool, error) {
	_, _, err := d.api.ImageInspectWithRaw(ctx, tag)
	if err == nil {
		return true, nil
	}
	if errdefs.IsNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("inspect image %s: %w", tag, err)
}

func (d *Docker) Build(ctx context.Context, spec BuildSpec) error {
	args := BuildArgs(spec)
	d.log.Debug().Strs("args", args).Msg("docker build")
	code, err := d.runCmd(ctx, Cmd{Path: d.bin, Args: args, Stdout: spec.Output})
	if err != nil {
		return fmt.Errorf("docker build: %w", err)
	}
	if code != 0 {
		return &ExitError{Op: "docker build", Code: code}
	}
	return nil
}

// BuildArgs renders spec as docker CLI arguments.
func BuildArgs(spec BuildSpec) []string {
	args := []string{"build", "-t", spec.Tag}
	if spec.Dockerfile != "" {
		df := spec.Dockerfile
		if !filepath.IsAbs(df) && spec.ContextDir != "" {
			df = filepath.Join(spec.ContextDir, df)
		}
		args = append(args, "-f", df)
	}
	if spec.NoCache {
		args = append(args, "--no-cache")
	}
	if spec.Pull {
		args = append(args, "--pull")
	}
	ctxDir := spec.ContextDir
	if ctxDir == "" {
		ctxDir = "."
	}
	return append(args, ctxDir)
}

func (d *Docker) Run(ctx context.Context, spec RunSpec) (int, error) {
	cfg, hostCfg, err := engineConfig(spec)
	if err != nil {
		return -1, err
	}
	created, err := d.api.ContainerCreate(ctx, cfg, hostCfg, nil, nil, spec.Name)
	if errdefs.IsNotFound(err) {
		// The SDK does not pull on create the way `docker run` does.
		if err := d.pullImage(ctx, spec.Image); err != nil {
			return -1, err
		}
		created, err = d.api.ContainerCreate(ctx, cfg, hostCfg, nil, nil, spec.Name)
	}
	if err != nil {
		return -1, fmt.Errorf("create container %s: %w", spec.Name, err)
	}
	id := created.ID
	log := d.log.With().Str("container", spec.Name).Logger()
	// Cleanup must survive the caller's cancellation.
	bg := context.WithoutCancel(ctx)
	defer d.removeContainer(bg, id, log)

	waitC, errC := d.api.ContainerWait(bg, id, container.WaitConditionNextExit)
	if err := d.api.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return -1, fmt.Errorf("start container %s: %w", spec.Name, err)
	}
	log.Debug().Str("image", spec.Image).Msg("container started")

	logs, err := d.api.ContainerLogs(bg, id, container.LogsOptions{ShowStdout: true, ShowStderr: true, Follow: true})
	if err != nil {
		return -1, fmt.Errorf("attach logs %s: %w", spec.Name, err)
	}
	copied := make(chan struct{})
	go func() {
		defer close(copied)
		out := orStdout(spec.Output)
		_, _ = stdcopy.StdCopy(out, out, logs)
	}()
	defer func() {
		select {
		case <-copied:
		case <-time.After(logDrainTimeout):
		}
		_ = logs.Close()
		<-copied
	}()

	done := ctx.Done()
	for {
		select {
		case res := <-waitC:
			if res.Error != nil && res.Error.Message != "" {
				return int(res.StatusCode), fmt.Errorf("wait container %s: %s", spec.Name, res.Error.Message)
			}
			return int(res.StatusCode), nil
		case err := <-errC:
			return -1, fmt.Errorf("wait container %s: %w", spec.Name, err)
		case <-done:
			log.Info().Msg("interrupt received, stopping container")
			d.stopContainer(bg, id, log)
			done = nil
		}
	}
}

// pullImage pulls ref from its registry, logging progress at debug level.
func (d *Docker) pullImage(ctx context.Context, ref string) error {
	d.log.Info().Str("image", ref).Msg("pulling image")
	reader, err := d.api.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", ref, err)
	}
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	for {
		var msg jsonmessage.JSONMessage
		if err := decoder.Decode(&msg); errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return fmt.Errorf("pull image %s: decode progress: %w", ref, err)
		}
		if msg.Error != nil {
			return fmt.Errorf("pull image %s: %s", ref, msg.Error.Message)
		}
		if msg.Status != "" && msg.Progress != nil {
			d.log.Debug().Str("image", ref).Str("layer", msg.ID).Msgf("%s: %s", msg.Status, msg.Progress.String())
		}
	}
	return nil
}

func (d *Docker) RunInteractive(ctx context.Context, spec RunSpec) (int, error) {
	args := RunArgs(spec, isTerminal(d.stdin))
	d.log.Debug().Strs("args", args).Msg("docker run (interactive)")
	code, err := d.runCmd(ctx, Cmd{Path: d.bin, Args: args, Stdin: d.stdin, Stdout: spec.Output, Stderr: d.stderr})
	if err != nil {
		return -1, fmt.Errorf("docker run: %w", err)
	}
	return code, nil
}

// RunArgs renders spec as `docker run` CLI arguments for an attached,
// auto-removed container.
func RunArgs(spec RunSpec, tty bool) []string {
	args := []string{"run", "--rm", "-i"}
	if tty {
		args = append(args, "-t")
	}
	if spec.Name != "" {
		args = append(args, "--name", spec.Name)
	}
	if spec.GPUs != "" {
		args = append(args, "--gpus", spec.GPUs)
	}
	for _, m := range spec.Mounts {
		v := m.HostPath + ":" + m.ContainerPath
		if m.ReadOnly {
			v += ":ro"
		}
		args = append(args, "-v", v)
	}
	for _, p := range spec.Ports {
		pub := strconv.Itoa(p.HostPort) + ":" + strconv.Itoa(p.ContainerPort)
		if p.HostIP != "" {
			pub = p.HostIP + ":" + pub
		}
		args = append(args, "-p", pub)
	}
	if spec.WorkDir != "" {
		args = append(args, "-w", spec.WorkDir)
	}
	for _, kv := range sortedPairs(spec.Env) {
		args = append(args, "-e", kv)
	}
	for _, kv := range sortedPairs(spec.Labels) {
		args = append(args, "--label", kv)
	}
	args = append(args, spec.Image)
	return append(args, spec.Cmd...)
}

func (d *Docker) RemoveImage(ctx context.Context, tag string) error {
	_, err := d.api.ImageRemove(ctx, tag, image.RemoveOptions{PruneChildren: true})
	if err == nil || errdefs.IsNotFound(err) {
		return nil
	}
	return fmt.Errorf("remove image %s: %w", tag, err)
}

func (d *Docker) Prune(ctx context.Context) (PruneReport, error) {
	var rep PruneReport
	imgs, err := d.api.ImagesPrune(ctx, filters.NewArgs(filters.Arg("dangling", "true")))
	if err != nil {
		return rep, fmt.Errorf("prune images: %w", err)
	}
	rep.ImagesDeleted = len(imgs.ImagesDeleted)
	rep.SpaceReclaimed += imgs.SpaceReclaimed
	cache, err := d.api.BuildCachePrune(ctx, types.BuildCachePruneOptions{})
	if err != nil {
		return rep, fmt.Errorf("prune build cache: %w", err)
	}
	if cache != nil {
		rep.CacheDeleted = len(cache.CachesDeleted)
		rep.SpaceReclaimed += cache.SpaceReclaimed
	}
	return rep, nil
}

func (d *Docker) stopContainer(ctx context.Context, id string, log zerolog.Logger) {
	timeout := int(stopGrace.Seconds())
	err := d.api.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout})
	// Ignore "not found" or "already stopped" errors
	if err != nil && !errdefs.IsNotFound(err) && !errdefs.IsNotModified(err) {
		log.Warn().Err(err).Msg("stop container")
	}
}

func (d *Docker) removeContainer(ctx context.Context, id string, log zerolog.Logger) {
	err := d.api.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
	if err != nil && !errdefs.IsNotFound(err) {
		log.Warn().Err(err).Msg("remove container")
	}
}

func engineConfig(spec RunSpec) (*container.Config, *container.HostConfig, error) {
	labels := Labels("run")
	for k, v := range spec.Labels {
		labels[k] = v
	}
	cfg := &container.Config{
		Image:      spec.Image,
		Cmd:        spec.Cmd,
		WorkingDir: spec.WorkDir,
		Env:        sortedPairs(spec.Env),
		Labels:     labels,
	}
	hostCfg := &container.HostConfig{}
	for _, m := range spec.Mounts {
		hostCfg.Mounts = append(hostCfg.Mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   m.HostPath,
			Target:   m.ContainerPath,
			ReadOnly: m.ReadOnly,
		})
	}
	if len(spec.Ports) > 0 {
		cfg.ExposedPorts = nat.PortSet{}
		hostCfg.PortBindings = nat.PortMap{}
		for _, p := range spec.Ports {
			port, err := nat.NewPort("tcp", strconv.Itoa(p.ContainerPort))
			if err != nil {
				return nil, nil, fmt.Errorf("container port %d: %w", p.ContainerPort, err)
			}
			cfg.ExposedPorts[port] = struct{}{}
			hostCfg.PortBindings[port] = append(hostCfg.PortBindings[port], nat.PortBinding{
				HostIP:   p.HostIP,
				HostPort: strconv.Itoa(p.HostPort),
			})
		}
	}
	if spec.GPUs != "" {
		gpuOpts := opts.GpuOpts{}
		if err := gpuOpts.Set(spec.GPUs); err != nil {
			return nil, nil, fmt.Errorf("gpus %q: %w", spec.GPUs, err)
		}
		hostCfg.Resources.DeviceRequests = gpuOpts.Value()
	}
	return cfg, hostCfg, nil
}

func sortedPairs(m map[string]string) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	st, err := f.Stat()
	if err != nil {
		return false
	}
	return st.Mode()&os.ModeCharDevice != 0
}
