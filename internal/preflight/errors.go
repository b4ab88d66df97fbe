package preflight

import (
	"errors"
	"fmt"
)

// EnvironmentKind classifies a host environment failure.
type EnvironmentKind int

const (
	DaemonUnavailable EnvironmentKind = iota + 1
	GpuRuntimeUnavailable
)

func (k EnvironmentKind) String() string {
	switch k {
	case DaemonUnavailable:
		return "container daemon unavailable"
	case GpuRuntimeUnavailable:
		return "GPU runtime unavailable"
	default:
		return "unknown environment failure"
	}
}

// EnvironmentError is returned when the host cannot run GPU containers.
type EnvironmentError struct {
	Kind   EnvironmentKind
	Detail string
	Err    error
}

func (e *EnvironmentError) Error() string {
	msg := e.Kind.String()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *EnvironmentError) Unwrap() error { return e.Err }

// IsEnvironmentError reports whether err (or anything it wraps) is an
// EnvironmentError.
func IsEnvironmentError(err error) bool {
	var ee *EnvironmentError
	return errors.As(err, &ee)
}
