package preflight

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"musectl/internal/container/containertest"
	"musectl/internal/logging"
)

const refImage = "nvidia/cuda:12.1.0-base-ubuntu22.04"

func TestCheckDaemonUnavailable(t *testing.T) {
	rt := containertest.New()
	rt.PingErr = errors.New("dial unix /var/run/docker.sock: connect: no such file")
	err := NewChecker(rt, refImage, "all", logging.Nop()).Check(context.Background())
	var ee *EnvironmentError
	if !errors.As(err, &ee) || ee.Kind != DaemonUnavailable {
		t.Fatalf("expected DaemonUnavailable, got %v", err)
	}
	if rt.Launched() != 0 {
		t.Fatalf("GPU probe must not run when the daemon is down")
	}
	if !strings.Contains(err.Error(), "docker.sock") {
		t.Fatalf("cause missing from message: %v", err)
	}
}

func TestCheckGPUProbeFails(t *testing.T) {
	rt := containertest.New()
	rt.RunCode = 1
	rt.RunOutput = "could not select device driver \"\" with capabilities: [[gpu]]\n"
	err := NewChecker(rt, refImage, "all", logging.Nop()).Check(context.Background())
	var ee *EnvironmentError
	if !errors.As(err, &ee) || ee.Kind != GpuRuntimeUnavailable {
		t.Fatalf("expected GpuRuntimeUnavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "capabilities") {
		t.Fatalf("probe output tail missing: %v", err)
	}
}

func TestCheckGPUProbeStartError(t *testing.T) {
	rt := containertest.New()
	rt.RunErr = errors.New("pull access denied")
	err := NewChecker(rt, refImage, "all", logging.Nop()).Check(context.Background())
	if !IsEnvironmentError(err) {
		t.Fatalf("expected environment error, got %v", err)
	}
	if !errors.Is(err, rt.RunErr) {
		t.Fatalf("cause not wrapped: %v", err)
	}
}

func TestCheckPassesAndProbeIsEphemeralGPURun(t *testing.T) {
	rt := containertest.New()
	var out bytes.Buffer
	c := NewChecker(rt, refImage, "all", logging.Nop())
	c.Output = &out
	rt.RunOutput = "GPU 0: NVIDIA RTX 4090\n"
	if err := c.Check(context.Background()); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if rt.Pings != 1 || len(rt.Runs) != 1 {
		t.Fatalf("pings=%d runs=%d", rt.Pings, len(rt.Runs))
	}
	probe := rt.Runs[0]
	if probe.Image != refImage || probe.GPUs != "all" || len(probe.Mounts) != 0 {
		t.Fatalf("unexpected probe spec: %+v", probe)
	}
	if !strings.HasPrefix(probe.Name, "musectl-gpucheck-") {
		t.Fatalf("unexpected probe name %q", probe.Name)
	}
	if !strings.Contains(out.String(), "RTX 4090") {
		t.Fatalf("probe output not forwarded: %q", out.String())
	}
}

func TestReport(t *testing.T) {
	oldLook := lookPath
	t.Cleanup(func() { lookPath = oldLook })
	lookPath = func(name string) (string, error) { return "/usr/bin/" + name, nil }

	rt := containertest.New()
	dir := t.TempDir()
	missing := filepath.Join(dir, "nope")
	rep := NewChecker(rt, refImage, "all", logging.Nop()).Report(context.Background(), Target{
		DockerBin: "docker", Image: "musetalk:latest", Dirs: []string{dir, missing},
	})
	if !rep.HasFailures {
		t.Fatalf("missing image and missing dir must fail the report")
	}
	status := map[string]Status{}
	for _, it := range rep.Items {
		status[it.ID] = it.Status
	}
	if status["tool_docker"] != StatusPass || status["daemon"] != StatusPass || status["gpu"] != StatusPass {
		t.Fatalf("unexpected statuses: %v", status)
	}
	if status["image"] != StatusFail || status["dir_"+dir] != StatusPass || status["dir_"+missing] != StatusFail {
		t.Fatalf("unexpected statuses: %v", status)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("write probe left files behind")
	}

	var buf bytes.Buffer
	rep.Render(&buf)
	if !strings.Contains(buf.String(), "image not built") || !strings.Contains(buf.String(), "musectl build") {
		t.Fatalf("table missing rows: %s", buf.String())
	}
}

func TestReportSkipsGPUWhenDaemonDown(t *testing.T) {
	oldLook := lookPath
	t.Cleanup(func() { lookPath = oldLook })
	lookPath = func(name string) (string, error) { return "", errors.New("not found") }

	rt := containertest.New()
	rt.PingErr = errors.New("refused")
	rep := NewChecker(rt, refImage, "all", logging.Nop()).Report(context.Background(), Target{Image: "musetalk:latest"})
	if rt.Launched() != 0 {
		t.Fatalf("probe container started with daemon down")
	}
	if len(rep.Items) != 2 || !rep.HasFailures {
		t.Fatalf("unexpected report: %+v", rep)
	}
}
