package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	"musectl/internal/config"
	"musectl/internal/container"
	"musectl/internal/container/containertest"
	"musectl/internal/job"
	"musectl/internal/logging"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	if err := cfg.Resolve(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestLaunchWebServiceSpec(t *testing.T) {
	cfg := testConfig(t)
	fake := containertest.New()
	l := NewLauncher(fake, cfg, logging.Nop())
	l.Output = &strings.Builder{}
	if err := l.LaunchWebService(context.Background()); err != nil {
		t.Fatalf("launch: %v", err)
	}
	if len(fake.Runs) != 1 || len(fake.Interactive) != 0 {
		t.Fatalf("runs=%d interactive=%d", len(fake.Runs), len(fake.Interactive))
	}
	spec := fake.Runs[0]
	if got := strings.Join(spec.Cmd, " "); got != "python app.py --use_float16" {
		t.Fatalf("cmd: %q", got)
	}
	want := container.PortBinding{HostPort: 7860, ContainerPort: 7860}
	if len(spec.Ports) != 1 || spec.Ports[0] != want {
		t.Fatalf("ports: %+v", spec.Ports)
	}
	if spec.GPUs != "all" || len(spec.Mounts) != 3 {
		t.Fatalf("spec: %+v", spec)
	}
	if spec.Mounts[0].HostPath != cfg.InputDir || spec.Mounts[1].HostPath != cfg.OutputDir {
		t.Fatalf("mounts: %+v", spec.Mounts)
	}
}

func TestLaunchWebServiceCustomPortAndPrecision(t *testing.T) {
	cfg := testConfig(t)
	cfg.WebPort = 8080
	cfg.Precision = ""
	fake := containertest.New()
	l := NewLauncher(fake, cfg, logging.Nop())
	l.Output = &strings.Builder{}
	if err := l.LaunchWebService(context.Background()); err != nil {
		t.Fatal(err)
	}
	spec := fake.Runs[0]
	if strings.Join(spec.Cmd, " ") != "python app.py" {
		t.Fatalf("cmd: %q", spec.Cmd)
	}
	want := container.PortBinding{HostPort: 8080, ContainerPort: 7860}
	if len(spec.Ports) != 1 || spec.Ports[0] != want {
		t.Fatalf("ports: %+v", spec.Ports)
	}
}

func TestWebCommandPrecisionNone(t *testing.T) {
	for _, p := range []string{"none", "NONE", " none "} {
		cfg := config.Merge(config.Default(), config.Config{Precision: p})
		if got := strings.Join(WebCommand(cfg), " "); got != "python app.py" {
			t.Fatalf("precision %q: cmd %q", p, got)
		}
	}
	cfg := config.Merge(config.Default(), config.Config{Precision: "--use_bf16"})
	if got := strings.Join(WebCommand(cfg), " "); got != "python app.py --use_bf16" {
		t.Fatalf("cmd %q", got)
	}
}

func TestLaunchWebServiceExitMirrored(t *testing.T) {
	cfg := testConfig(t)
	fake := containertest.New()
	fake.RunCode = 3
	fake.RunOutput = "Traceback\nModuleNotFoundError: gradio\n"
	l := NewLauncher(fake, cfg, logging.Nop())
	l.Output = &strings.Builder{}
	err := l.LaunchWebService(context.Background())
	var re *job.RuntimeError
	if !errors.As(err, &re) || re.ExitCode() != 3 {
		t.Fatalf("expected RuntimeError(3), got %v", err)
	}
	if !strings.Contains(re.Tail, "ModuleNotFoundError") {
		t.Fatalf("tail: %q", re.Tail)
	}
}

func TestLaunchWebServiceInterruptIsClean(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	fake := containertest.New()
	fake.RunCode = 143
	fake.OnRun = func(container.RunSpec) { cancel() }
	l := NewLauncher(fake, cfg, logging.Nop())
	l.Output = &strings.Builder{}
	if err := l.LaunchWebService(ctx); err != nil {
		t.Fatalf("interrupt should be clean, got %v", err)
	}
}

func TestLaunchShell(t *testing.T) {
	cfg := testConfig(t)
	fake := containertest.New()
	if err := NewLauncher(fake, cfg, logging.Nop()).LaunchShell(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(fake.Interactive) != 1 || len(fake.Runs) != 0 {
		t.Fatalf("shell must run interactively")
	}
	spec := fake.Interactive[0]
	if strings.Join(spec.Cmd, " ") != "/bin/bash" || spec.GPUs != "all" || len(spec.Mounts) != 3 {
		t.Fatalf("spec: %+v", spec)
	}
	if len(spec.Ports) != 0 {
		t.Fatalf("shell publishes no ports")
	}

	fake.RunCode = 127
	err := NewLauncher(fake, cfg, logging.Nop()).LaunchShell(context.Background())
	if !job.IsRuntimeError(err) {
		t.Fatalf("expected RuntimeError, got %v", err)
	}
}
