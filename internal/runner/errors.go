package runner

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// ErrInterrupted is returned when the run was cancelled by a signal.
var ErrInterrupted = eris.New("interrupted by user")

// TaskFailedError reports a task whose process exited non-zero.
type TaskFailedError struct {
	Task     string
	ExitCode int
}

func (e *TaskFailedError) Error() string {
	return fmt.Sprintf("%s execution failed (exit code: %d)", e.Task, e.ExitCode)
}

// SpawnError reports a launcher that could not be started.
type SpawnError struct {
	Task    string
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to start %s %s: %v", e.Command, e.Task, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }
