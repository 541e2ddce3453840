package orchestrator

import (
	"errors"
	"fmt"
)

var (
	// ErrNoStagesSelected is returned when the configuration enables no stage.
	ErrNoStagesSelected = errors.New("no stages selected")

	// ErrStageNotBound is returned when a selected stage has no implementation.
	ErrStageNotBound = errors.New("stage has no implementation")

	// ErrCanceled is returned when the run is cancelled between stages.
	ErrCanceled = errors.New("pipeline canceled")
)

// StageError is raised by a stage implementation when it cannot complete.
// Message is shown to the user verbatim.
type StageError struct {
	Message string
	Err     error
}

// NewStageError builds a StageError with a formatted message.
func NewStageError(err error, format string, args ...any) *StageError {
	return &StageError{Message: fmt.Sprintf(format, args...), Err: err}
}

func (e *StageError) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *StageError) Unwrap() error { return e.Err }

// StageFailedError reports which stage aborted the pipeline.
type StageFailedError struct {
	Stage   StageKind
	Index   int // 1-based position in the selected stage list
	Message string
	Err     error
}

func (e *StageFailedError) Error() string {
	return fmt.Sprintf("%s stage failed: %s", e.Stage, e.Message)
}

func (e *StageFailedError) Unwrap() error { return e.Err }
