// Package staging copies a job's input files into the shared input directory
// mounted into the Job Container.
//
// The input directory is shared across invocations and is not locked: two
// concurrent runs staging files with the same name overwrite each other.
package staging

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"musectl/internal/common/fsutil"
)

// InputReason says why an input file was rejected.
type InputReason string

const (
	ReasonMissing    InputReason = "does not exist"
	ReasonNotRegular InputReason = "is not a regular file"
	ReasonEmpty      InputReason = "is empty"
	ReasonNameClash  InputReason = "has the same file name as the video"
)

// InputError is the FileNotFound input failure: a job file that is missing,
// empty or not a regular file.
type InputError struct {
	Path   string
	Reason InputReason
	Err    error
}

func (e *InputError) Error() string {
	if e.Reason == ReasonNameClash {
		return fmt.Sprintf("invalid input: %s %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("file not found: %s %s", e.Path, e.Reason)
}

func (e *InputError) Unwrap() error { return e.Err }

// IsInputError reports whether err is an InputError.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}

// Job is one inference request as given on the command line.
type Job struct {
	VideoPath string
	AudioPath string
}

// StagedJob is a Job whose files sit in the input directory.
type StagedJob struct {
	Job
	HostVideo      string
	HostAudio      string
	ContainerVideo string
	ContainerAudio string
	Bytes          int64
}

// Stager copies job inputs into InputDir, which the container sees at
// ContainerInputDir.
type Stager struct {
	InputDir          string
	ContainerInputDir string
	log               zerolog.Logger
}

func NewStager(inputDir, containerInputDir string, log zerolog.Logger) *Stager {
	return &Stager{InputDir: inputDir, ContainerInputDir: containerInputDir, log: log}
}

// Validate checks that both files exist, are non-empty regular files and
// land on distinct names in the input directory. It touches nothing.
func (s *Stager) Validate(job Job) error {
	for _, p := range []string{job.VideoPath, job.AudioPath} {
		if err := validate(p); err != nil {
			return err
		}
	}
	if filepath.Base(job.VideoPath) == filepath.Base(job.AudioPath) {
		return &InputError{Path: job.AudioPath, Reason: ReasonNameClash}
	}
	return nil
}

// Stage validates both files before copying either, so a bad job never
// leaves a half-staged input directory behind.
func (s *Stager) Stage(job Job) (StagedJob, error) {
	if err := s.Validate(job); err != nil {
		return StagedJob{}, err
	}
	if err := fsutil.EnsureDirs(s.InputDir); err != nil {
		return StagedJob{}, err
	}
	staged := StagedJob{Job: job}
	var err error
	var n int64
	if staged.HostVideo, staged.ContainerVideo, n, err = s.copyIn(job.VideoPath); err != nil {
		return StagedJob{}, err
	}
	staged.Bytes += n
	if staged.HostAudio, staged.ContainerAudio, n, err = s.copyIn(job.AudioPath); err != nil {
		return StagedJob{}, err
	}
	staged.Bytes += n
	s.log.Info().
		Str("video", staged.ContainerVideo).
		Str("audio", staged.ContainerAudio).
		Str("size", humanize.Bytes(uint64(staged.Bytes))).
		Msg("inputs staged")
	return staged, nil
}

func (s *Stager) copyIn(src string) (host, inContainer string, n int64, err error) {
	name := filepath.Base(src)
	host = filepath.Join(s.InputDir, name)
	inContainer = path.Join(s.ContainerInputDir, name)
	if fsutil.SameFile(src, host) {
		st, err := os.Stat(host)
		if err != nil {
			return "", "", 0, err
		}
		s.log.Debug().Str("file", host).Msg("already in input directory")
		return host, inContainer, st.Size(), nil
	}
	n, err = fsutil.CopyFile(src, host)
	if err != nil {
		return "", "", 0, fmt.Errorf("stage %s: %w", src, err)
	}
	s.log.Debug().Str("from", src).Str("to", host).Msg("copied")
	return host, inContainer, n, nil
}

func validate(p string) error {
	st, err := os.Stat(p)
	if err != nil {
		return &InputError{Path: p, Reason: ReasonMissing, Err: err}
	}
	if !st.Mode().IsRegular() {
		return &InputError{Path: p, Reason: ReasonNotRegular}
	}
	if st.Size() == 0 {
		return &InputError{Path: p, Reason: ReasonEmpty}
	}
	return nil
}
