package launcher

import (
	"errors"
	"fmt"
	"testing"

	"musectl/internal/image"
	"musectl/internal/job"
	"musectl/internal/preflight"
	"musectl/internal/staging"
)

func TestParseCommand(t *testing.T) {
	cases := map[string]Command{
		"build":   CommandBuild,
		"rebuild": CommandRebuild,
		"run":     CommandRun,
		"gradio":  CommandGradio,
		"shell":   CommandShell,
		"clean":   CommandClean,
		"doctor":  CommandDoctor,
		" RUN ":   CommandRun,
		"":        CommandHelp,
		"deploy":  CommandHelp,
	}
	for in, want := range cases {
		if got := ParseCommand(in); got != want {
			t.Fatalf("ParseCommand(%q) = %s, want %s", in, got, want)
		}
	}
	for c, name := range commandNames {
		if ParseCommand(c.String()) != c {
			t.Fatalf("%s does not round-trip", name)
		}
	}
}

func TestCommandPreflightPolicy(t *testing.T) {
	for _, c := range []Command{CommandRun, CommandGradio, CommandShell} {
		if !c.NeedsPreflight() {
			t.Fatalf("%s must preflight", c)
		}
	}
	for _, c := range []Command{CommandBuild, CommandRebuild, CommandClean, CommandHelp, CommandDoctor} {
		if c.NeedsPreflight() {
			t.Fatalf("%s must not preflight", c)
		}
	}
}

func TestExitCodeAndCategory(t *testing.T) {
	cases := []struct {
		err  error
		code int
		cat  string
	}{
		{nil, 0, ""},
		{&preflight.EnvironmentError{Kind: preflight.DaemonUnavailable}, 1, "environment error"},
		{&staging.InputError{Path: "x", Reason: staging.ReasonMissing}, 1, "input error"},
		{&image.BuildError{Tag: "t", Code: 2}, 1, "build error"},
		{fmt.Errorf("wrapped: %w", &job.RuntimeError{Op: "inference", Code: 137}), 137, "runtime error"},
		{&job.RuntimeError{Op: "inference", Code: -1, Err: errors.New("x")}, 1, "runtime error"},
		{errUsage("bad"), 1, "usage error"},
		{&configError{errors.New("bad")}, 1, "config error"},
		{errors.New("other"), 1, "error"},
	}
	for _, tc := range cases {
		if got := exitCode(tc.err); got != tc.code {
			t.Fatalf("exitCode(%v) = %d, want %d", tc.err, got, tc.code)
		}
		if tc.err != nil {
			if got := category(tc.err); got != tc.cat {
				t.Fatalf("category(%v) = %q, want %q", tc.err, got, tc.cat)
			}
		}
	}
}
