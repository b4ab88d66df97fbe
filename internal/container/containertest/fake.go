// Package containertest provides an in-memory container.Runtime for tests.
package containertest

import (
	"context"
	"fmt"
	"io"
	"sync"

	"musectl/internal/container"
)

// Fake records every call and answers from its fields. Images built through
// it become visible to ImageExists, so build idempotence can be observed.
type Fake struct {
	mu sync.Mutex

	PingErr      error
	InspectErr   error
	BuildErr     error
	BuildOutput  string
	RemoveErr    error
	PruneErr     error
	PruneReport  container.PruneReport
	RunErr       error
	RunOutput    string
	RunCode      int
	// RunCodes overrides RunCode per image.
	RunCodes map[string]int
	// OnRun runs before a Run/RunInteractive returns; a test hook for
	// asserting on host state at launch time.
	OnRun func(spec container.RunSpec)

	Images map[string]bool

	Pings       int
	Builds      []container.BuildSpec
	Runs        []container.RunSpec
	Interactive []container.RunSpec
	Removed     []string
	Prunes      int
}

var _ container.Runtime = (*Fake)(nil)

// New returns a Fake with no images.
func New() *Fake { return &Fake{Images: map[string]bool{}} }

func (f *Fake) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Pings++
	return f.PingErr
}

func (f *Fake) ImageExists(ctx context.Context, tag string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.InspectErr != nil {
		return false, f.InspectErr
	}
	return f.Images[tag], nil
}

func (f *Fake) Build(ctx context.Context, spec container.BuildSpec) error {
	f.mu.Lock()
	f.Builds = append(f.Builds, spec)
	err := f.BuildErr
	if err == nil {
		if f.Images == nil {
			f.Images = map[string]bool{}
		}
		f.Images[spec.Tag] = true
	}
	out := f.BuildOutput
	f.mu.Unlock()
	write(spec.Output, out)
	return err
}

func (f *Fake) Run(ctx context.Context, spec container.RunSpec) (int, error) {
	f.mu.Lock()
	f.Runs = append(f.Runs, spec)
	f.mu.Unlock()
	return f.finish(spec)
}

func (f *Fake) RunInteractive(ctx context.Context, spec container.RunSpec) (int, error) {
	f.mu.Lock()
	f.Interactive = append(f.Interactive, spec)
	f.mu.Unlock()
	return f.finish(spec)
}

func (f *Fake) finish(spec container.RunSpec) (int, error) {
	if f.OnRun != nil {
		f.OnRun(spec)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RunErr != nil {
		return -1, f.RunErr
	}
	write(spec.Output, f.RunOutput)
	if code, ok := f.RunCodes[spec.Image]; ok {
		return code, nil
	}
	return f.RunCode, nil
}

func (f *Fake) RemoveImage(ctx context.Context, tag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Removed = append(f.Removed, tag)
	if f.RemoveErr != nil {
		return f.RemoveErr
	}
	delete(f.Images, tag)
	return nil
}

func (f *Fake) Prune(ctx context.Context) (container.PruneReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Prunes++
	return f.PruneReport, f.PruneErr
}

// Launched reports how many containers were started by any means.
func (f *Fake) Launched() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Runs) + len(f.Interactive)
}

func write(w io.Writer, s string) {
	if w == nil || s == "" {
		return
	}
	_, _ = fmt.Fprint(w, s)
}
