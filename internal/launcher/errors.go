package launcher

import (
	"errors"
	"fmt"

	"musectl/internal/image"
	"musectl/internal/job"
	"musectl/internal/preflight"
	"musectl/internal/staging"
)

// usageError is a malformed invocation; usage is printed after the message.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func errUsage(format string, a ...any) error { return &usageError{msg: fmt.Sprintf(format, a...)} }

// configError wraps a failure to load or validate configuration.
type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

var errChecksFailed = errors.New("one or more checks failed")

// category names the error class shown in front of the message.
func category(err error) string {
	var ue *usageError
	var ce *configError
	var be *image.BuildError
	switch {
	case errors.As(err, &ue):
		return "usage error"
	case errors.As(err, &ce):
		return "config error"
	case preflight.IsEnvironmentError(err):
		return "environment error"
	case staging.IsInputError(err):
		return "input error"
	case errors.As(err, &be):
		return "build error"
	case job.IsRuntimeError(err):
		return "runtime error"
	default:
		return "error"
	}
}

// exitCode is 0 on success, the container's own status for a RuntimeError
// and 1 for everything else.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var re *job.RuntimeError
	if errors.As(err, &re) {
		return re.ExitCode()
	}
	return 1
}

// containerExit extracts the Job Container exit status for metrics.
func containerExit(err error) (int, bool) {
	if err == nil {
		return 0, true
	}
	var re *job.RuntimeError
	if errors.As(err, &re) && re.Code >= 0 {
		return re.Code, true
	}
	return 0, false
}
