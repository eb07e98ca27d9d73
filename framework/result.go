package framework

import (
	"context"
	"fmt"
	"time"
)

// CheckFunc is the body of a check. Returning nil means the check passed; returning an
// error means it failed, with the error message as the failure detail.
//
// The context carries the check's debug logger (see DebugLogger) and is cancelled if the
// executor stops waiting for the check, but the check is never forcibly stopped.
type CheckFunc func(ctx context.Context) error

// CheckDefinition describes one registered check. It is treated as immutable once it has
// been handed to a Runner.
type CheckDefinition struct {
	Name     string
	Body     CheckFunc
	Critical bool
	// Timeout is the wall-clock ceiling for the check. Zero means use the target's
	// default timeout.
	Timeout time.Duration
}

type Outcome int

const (
	Passed Outcome = iota
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Passed:
		return "passed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Result is the outcome of executing one check. It is created once by the executor and
// not modified afterward.
type Result struct {
	Name        string
	Outcome     Outcome
	Detail      string
	Critical    bool
	Duration    time.Duration
	Timestamp   time.Time
	DebugOutput CapturedOutput
}

func (r Result) OK() bool {
	return r.Outcome == Passed
}

// CriticalFailure is true if the check failed and was registered as critical.
func (r Result) CriticalFailure() bool {
	return r.Outcome == Failed && r.Critical
}

// RunStatistics are the running totals for a single run.
type RunStatistics struct {
	Total          int
	Passed         int
	Failed         int
	CriticalFailed int
}
