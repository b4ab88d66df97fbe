// Package image owns the lifecycle of the Job Container image: build on
// demand, rebuild from scratch and clean up.
package image

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"musectl/internal/container"
)

// BuildError reports a failed image build with the tail of its output.
type BuildError struct {
	Tag  string
	Code int
	Tail string
	Err  error
}

func (e *BuildError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "building %s", e.Tag)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	} else {
		fmt.Fprintf(&b, " failed with status %d", e.Code)
	}
	if e.Tail != "" {
		b.WriteString("\n--- last build output ---\n")
		b.WriteString(e.Tail)
	}
	return b.String()
}

func (e *BuildError) Unwrap() error { return e.Err }

// Options fixes what gets built and where build output goes.
type Options struct {
	Tag        string
	ContextDir string
	Dockerfile string
	TailLines  int
	// Output receives live build progress; nil means os.Stdout.
	Output io.Writer
}

// Manager builds, rebuilds and removes the single Job Container image.
type Manager struct {
	rt   container.Runtime
	opts Options
	log  zerolog.Logger
}

func NewManager(rt container.Runtime, opts Options, log zerolog.Logger) *Manager {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	return &Manager{rt: rt, opts: opts, log: log}
}

// Build ensures the image exists. It reports whether a build actually ran;
// an image that is already present is left untouched.
func (m *Manager) Build(ctx context.Context) (bool, error) {
	ok, err := m.rt.ImageExists(ctx, m.opts.Tag)
	if err != nil {
		return false, err
	}
	if ok {
		m.log.Info().Str("image", m.opts.Tag).Msg("image already built; use rebuild to force a fresh build")
		return false, nil
	}
	return true, m.build(ctx, false)
}

// Rebuild always builds from scratch, ignoring the layer cache, and replaces
// the image under the same tag.
func (m *Manager) Rebuild(ctx context.Context) error {
	return m.build(ctx, true)
}

func (m *Manager) build(ctx context.Context, fresh bool) error {
	m.log.Info().Str("image", m.opts.Tag).Bool("no_cache", fresh).Str("context", m.opts.ContextDir).Msg("building image")
	tail := container.NewTailBuffer(m.opts.TailLines)
	err := m.rt.Build(ctx, container.BuildSpec{
		Tag:        m.opts.Tag,
		ContextDir: m.opts.ContextDir,
		Dockerfile: m.opts.Dockerfile,
		NoCache:    fresh,
		Pull:       fresh,
		Output:     io.MultiWriter(m.opts.Output, tail),
	})
	if err == nil {
		m.log.Info().Str("image", m.opts.Tag).Msg("image built")
		return nil
	}
	be := &BuildError{Tag: m.opts.Tag, Tail: tail.String()}
	var ee *container.ExitError
	if errors.As(err, &ee) {
		be.Code = ee.Code
	} else {
		be.Err = err
	}
	return be
}

// Clean removes the image (absent is fine) and prunes dangling images and
// build cache.
func (m *Manager) Clean(ctx context.Context) error {
	m.log.Info().Str("image", m.opts.Tag).Msg("removing image")
	if err := m.rt.RemoveImage(ctx, m.opts.Tag); err != nil {
		return err
	}
	rep, err := m.rt.Prune(ctx)
	if err != nil {
		return err
	}
	m.log.Info().
		Int("images", rep.ImagesDeleted).
		Int("cache_entries", rep.CacheDeleted).
		Str("reclaimed", humanize.Bytes(rep.SpaceReclaimed)).
		Msg("pruned dangling build artifacts")
	return nil
}
