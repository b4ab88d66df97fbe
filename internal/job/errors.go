package job

import (
	"errors"
	"fmt"
	"strings"
)

// RuntimeError reports a Job Container that ran and exited non-zero, or
// that could not be run at all (Code is then -1 and Err is set).
type RuntimeError struct {
	Op   string
	Code int
	Tail string
	Err  error
}

func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	switch {
	case e.Err != nil:
		fmt.Fprintf(&b, " failed: %v", e.Err)
	default:
		fmt.Fprintf(&b, " failed with exit code %d", e.Code)
	}
	if e.Tail != "" {
		b.WriteString("\n--- last container output ---\n")
		b.WriteString(e.Tail)
	}
	return b.String()
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// ExitCode is the status the launcher should exit with: the container's own
// code when it is a valid process status, 1 otherwise.
func (e *RuntimeError) ExitCode() int {
	if e.Code >= 1 && e.Code <= 255 {
		return e.Code
	}
	return 1
}

// IsRuntimeError reports whether err is a RuntimeError.
func IsRuntimeError(err error) bool {
	var re *RuntimeError
	return errors.As(err, &re)
}
