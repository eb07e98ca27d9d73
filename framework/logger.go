package framework

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

const timestampFormat = "2006-01-02 15:04:05.000"

// Logger is the minimal logging interface used throughout the harness. A *logrus.Logger
// satisfies it, as does *log.Logger.
type Logger interface {
	Printf(message string, args ...interface{})
}

type nullLogger struct{}

func (n nullLogger) Printf(message string, args ...interface{}) {}

func NullLogger() Logger { return nullLogger{} }

// CapturedMessage is one line written to a CapturingLogger.
type CapturedMessage struct {
	Time    time.Time
	Message string
}

// CapturedOutput is the debug output of one check, in the order it was logged.
type CapturedOutput []CapturedMessage

// CapturingLogger accumulates log lines for a single check so they can be shown only if
// the reporter decides they are interesting. It is safe for concurrent use, since probe
// workers may log from several goroutines at once.
type CapturingLogger struct {
	output []CapturedMessage
	lock   sync.Mutex
}

func (l *CapturingLogger) Printf(message string, args ...interface{}) {
	l.lock.Lock()
	l.output = append(l.output, CapturedMessage{Time: time.Now(), Message: fmt.Sprintf(message, args...)})
	l.lock.Unlock()
}

// Output returns a copy of everything logged so far.
func (l *CapturingLogger) Output() CapturedOutput {
	l.lock.Lock()
	ret := append([]CapturedMessage(nil), l.output...)
	l.lock.Unlock()
	return ret
}

// Dump writes each message on its own line with its timestamp, after the given prefix.
func (output CapturedOutput) Dump(dest io.Writer, prefix string) {
	for _, m := range output {
		fmt.Fprintf(dest, "%s[%s] %s\n",
			prefix,
			m.Time.Format(timestampFormat),
			m.Message,
		)
	}
}

type debugLoggerKey struct{}

// WithDebugLogger returns a context that carries the given logger for use by check bodies.
func WithDebugLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, debugLoggerKey{}, logger)
}

// DebugLogger returns the per-check debug logger attached to the context by the executor,
// or a null logger if there is none.
func DebugLogger(ctx context.Context) Logger {
	if l, ok := ctx.Value(debugLoggerKey{}).(Logger); ok && l != nil {
		return l
	}
	return NullLogger()
}
