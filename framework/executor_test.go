package framework

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const schedulingEpsilon = 250 * time.Millisecond

func TestExecutePassingCheck(t *testing.T) {
	def := CheckDefinition{
		Name:     "passes",
		Body:     func(context.Context) error { return nil },
		Critical: true,
		Timeout:  time.Second,
	}
	result := Execute(context.Background(), def, 0)

	assert.Equal(t, "passes", result.Name)
	assert.Equal(t, Passed, result.Outcome)
	assert.Equal(t, "", result.Detail)
	assert.True(t, result.Critical)
	assert.False(t, result.Timestamp.IsZero())
	assert.True(t, result.OK())
}

func TestExecuteFailingCheck(t *testing.T) {
	def := CheckDefinition{
		Name: "fails",
		Body: func(context.Context) error { return errors.New("server returned 500") },
	}
	result := Execute(context.Background(), def, time.Second)

	assert.Equal(t, Failed, result.Outcome)
	assert.Equal(t, "server returned 500", result.Detail)
	assert.False(t, result.Critical)
	assert.False(t, result.CriticalFailure())
}

func TestExecuteFailingCheckWithEmptyMessage(t *testing.T) {
	def := CheckDefinition{
		Name: "fails",
		Body: func(context.Context) error { return errors.New("") },
	}
	result := Execute(context.Background(), def, time.Second)

	assert.Equal(t, Failed, result.Outcome)
	assert.Equal(t, noMessageDetail, result.Detail)
}

func TestExecutePanickingCheck(t *testing.T) {
	def := CheckDefinition{
		Name:     "panics",
		Body:     func(context.Context) error { panic("boom") },
		Critical: true,
	}
	result := Execute(context.Background(), def, time.Second)

	assert.Equal(t, Failed, result.Outcome)
	assert.Contains(t, result.Detail, "unexpected panic in check: boom")
	assert.True(t, result.CriticalFailure())
	require.NotEmpty(t, result.DebugOutput)
	assert.Contains(t, result.DebugOutput[0].Message, "panic stack")
}

func TestExecuteTimesOutWithoutWaitingForCheck(t *testing.T) {
	timeout := 200 * time.Millisecond
	bodyCancelled := make(chan struct{})
	release := make(chan struct{})
	defer close(release)

	def := CheckDefinition{
		Name:    "hangs",
		Timeout: timeout,
		Body: func(ctx context.Context) error {
			select {
			case <-ctx.Done():
				close(bodyCancelled)
			case <-time.After(2 * timeout):
			}
			<-release
			return nil
		},
	}

	startTime := time.Now()
	result := Execute(context.Background(), def, 0)
	elapsed := time.Since(startTime)

	assert.Equal(t, Failed, result.Outcome)
	assert.Contains(t, result.Detail, "timed out")
	assert.Equal(t, "timed out after 200ms", result.Detail)
	assert.Equal(t, timeout, result.Duration)
	assert.GreaterOrEqual(t, int64(elapsed), int64(timeout))
	assert.Less(t, int64(elapsed), int64(timeout+schedulingEpsilon))

	select {
	case <-bodyCancelled:
	case <-time.After(time.Second):
		assert.Fail(t, "check context was not cancelled after the timeout")
	}
}

func TestExecuteUsesDefaultTimeout(t *testing.T) {
	def := CheckDefinition{
		Name: "hangs",
		Body: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	result := Execute(context.Background(), def, 50*time.Millisecond)

	assert.Equal(t, Failed, result.Outcome)
	assert.Equal(t, "timed out after 50ms", result.Detail)
}

func TestExecuteCheckTimeoutOverridesDefault(t *testing.T) {
	def := CheckDefinition{
		Name:    "slow but allowed",
		Timeout: time.Second,
		Body: func(ctx context.Context) error {
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	}
	result := Execute(context.Background(), def, 10*time.Millisecond)

	assert.Equal(t, Passed, result.Outcome)
	assert.GreaterOrEqual(t, int64(result.Duration), int64(100*time.Millisecond))
}

func TestExecuteCapturesDebugOutput(t *testing.T) {
	def := CheckDefinition{
		Name: "logs",
		Body: func(ctx context.Context) error {
			DebugLogger(ctx).Printf("sent %d requests", 3)
			return nil
		},
	}
	result := Execute(context.Background(), def, time.Second)

	require.Len(t, result.DebugOutput, 1)
	assert.Equal(t, "sent 3 requests", result.DebugOutput[0].Message)
}

func TestExecuteStopsWaitingWhenInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	def := CheckDefinition{
		Name: "hangs",
		Body: func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		},
	}
	time.AfterFunc(50*time.Millisecond, cancel)

	result := Execute(ctx, def, 10*time.Second)

	assert.Equal(t, Failed, result.Outcome)
	assert.Equal(t, interruptedDetail, result.Detail)
	assert.Less(t, int64(result.Duration), int64(time.Second))
}

func TestDebugLoggerWithoutContextValueIsNull(t *testing.T) {
	assert.Equal(t, NullLogger(), DebugLogger(context.Background()))
}
