package framework

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"
)

const (
	interruptedDetail = "interrupted"
	noMessageDetail   = "check failed with no failure message"
)

// Execute runs a single check under a wall-clock timeout and returns its Result.
//
// The check body runs on its own goroutine. If it has not finished when the timeout
// elapses, Execute returns a failed Result whose detail is "timed out after <timeout>" and
// whose Duration is exactly the timeout. The goroutine is abandoned rather than stopped;
// its context is cancelled so that a check which watches it can give up. At most one
// goroutine per check in a run can be left behind this way.
//
// If def.Timeout is zero, defaultTimeout is used; if both are zero, Execute waits for as
// long as it takes. If ctx is cancelled while waiting, Execute returns immediately with a
// failed Result whose detail is "interrupted".
func Execute(ctx context.Context, def CheckDefinition, defaultTimeout time.Duration) Result {
	timeout := def.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	debugLogger := &CapturingLogger{}
	checkCtx, cancel := context.WithCancel(WithDebugLogger(ctx, debugLogger))
	defer cancel()

	// buffered so that an abandoned check can still deliver its outcome and exit
	done := make(chan error, 1)

	startTime := time.Now()
	go func() {
		done <- runCheckBody(checkCtx, def.Body, debugLogger)
	}()

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	result := Result{
		Name:     def.Name,
		Outcome:  Passed,
		Critical: def.Critical,
	}
	select {
	case err := <-done:
		result.Duration = time.Since(startTime)
		if err != nil {
			result.Outcome = Failed
			result.Detail = err.Error()
			if result.Detail == "" {
				result.Detail = noMessageDetail
			}
		}
	case <-deadline:
		result.Duration = timeout
		result.Outcome = Failed
		result.Detail = fmt.Sprintf("timed out after %s", timeout)
		debugLogger.Printf("abandoning check after %s", timeout)
	case <-ctx.Done():
		result.Duration = time.Since(startTime)
		result.Outcome = Failed
		result.Detail = interruptedDetail
	}
	result.Timestamp = time.Now()
	result.DebugOutput = debugLogger.Output()
	return result
}

func runCheckBody(ctx context.Context, body CheckFunc, debugLogger Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			debugLogger.Printf("panic stack:\n%s", string(debug.Stack()))
			err = fmt.Errorf("unexpected panic in check: %+v", r)
		}
	}()
	if body == nil {
		return fmt.Errorf("check has no body")
	}
	return body(ctx)
}
