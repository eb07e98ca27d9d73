package framework

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapturedOutputDump(t *testing.T) {
	when := time.Date(2024, 3, 1, 12, 30, 45, 123000000, time.UTC)
	output := CapturedOutput{
		{Time: when, Message: "first"},
		{Time: when.Add(time.Second), Message: "second"},
	}

	var buf bytes.Buffer
	output.Dump(&buf, "  > ")
	assert.Equal(t, "  > [2024-03-01 12:30:45.123] first\n  > [2024-03-01 12:30:46.123] second\n", buf.String())
}

func TestCapturingLoggerOutputIsACopy(t *testing.T) {
	logger := &CapturingLogger{}
	logger.Printf("value %d", 1)
	output := logger.Output()
	logger.Printf("value %d", 2)

	require.Len(t, output, 1)
	assert.Equal(t, "value 1", output[0].Message)
	assert.Len(t, logger.Output(), 2)
}

func TestDebugLoggerDefaultsToNull(t *testing.T) {
	assert.Equal(t, NullLogger(), DebugLogger(context.Background()))

	logger := &CapturingLogger{}
	ctx := WithDebugLogger(context.Background(), logger)
	DebugLogger(ctx).Printf("hello")
	assert.Equal(t, "hello", logger.Output()[0].Message)
}
