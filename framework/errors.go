package framework

import (
	"errors"
	"fmt"
)

var (
	// ErrInterrupted is returned by Runner.Run if its context was cancelled before all of
	// the checks had been executed.
	ErrInterrupted = errors.New("run interrupted")

	// ErrInvalidProbe is returned by Probe if the operation or worker count is not positive.
	ErrInvalidProbe = errors.New("invalid probe configuration")

	// ErrRetriesExhausted is returned by Retry if every attempt failed.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

const (
	StageSetup        = "setup"
	StageReachability = "reachability"
)

// SetupError is a fatal error that happened before any check was executed.
type SetupError struct {
	Stage string
	Err   error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Stage, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}
