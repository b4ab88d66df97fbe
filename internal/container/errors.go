package container

import "fmt"

// ExitError reports that an engine-side process (a build or a container)
// ran to completion with a non-zero status.
type ExitError struct {
	Op   string
	Code int
}

func (e *ExitError) Error() string { return fmt.Sprintf("%s exited with status %d", e.Op, e.Code) }
