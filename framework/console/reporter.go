// Package console contains a framework.Reporter that writes human-readable progress and a
// final summary to a terminal.
package console

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/launchdarkly/http-server-contract-tests/framework"
)

const (
	clockFormat = "15:04:05.000"
	ruleWidth   = 80
)

// Options controls what the console reporter prints.
type Options struct {
	// DebugOutputOnFailure dumps the captured debug output of failed checks.
	DebugOutputOnFailure bool
	// DebugOutputOnSuccess dumps the captured debug output of passed checks.
	DebugOutputOnSuccess bool
	// NoColor disables ANSI colors regardless of the terminal.
	NoColor bool
	// RerunCommand, if set, is used to suggest a command line that reruns only the
	// failed checks.
	RerunCommand func(failed []string) string
	// Now overrides the clock used for line timestamps.
	Now func() time.Time
}

// Reporter is a framework.Reporter that writes to an io.Writer.
type Reporter struct {
	out  io.Writer
	opts Options
	lock sync.Mutex

	info     *color.Color
	pass     *color.Color
	fail     *color.Color
	warn     *color.Color
	critical *color.Color
	header   *color.Color
}

func New(out io.Writer, opts Options) *Reporter {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	r := &Reporter{
		out:      out,
		opts:     opts,
		info:     color.New(color.FgBlue),
		pass:     color.New(color.FgGreen),
		fail:     color.New(color.FgRed),
		warn:     color.New(color.FgYellow),
		critical: color.New(color.FgRed, color.Bold),
		header:   color.New(color.FgMagenta, color.Bold),
	}
	if opts.NoColor {
		for _, c := range []*color.Color{r.info, r.pass, r.fail, r.warn, r.critical, r.header} {
			c.DisableColor()
		}
	}
	return r
}

// Warnings can arrive from a check that is still running after it was abandoned, so writes
// are serialized.
func (r *Reporter) log(c *color.Color, level string, format string, args ...interface{}) {
	r.lock.Lock()
	defer r.lock.Unlock()
	fmt.Fprintf(r.out, "[%s] %s %s\n",
		r.opts.Now().Format(clockFormat),
		c.Sprintf("[%s]", level),
		fmt.Sprintf(format, args...),
	)
}

func (r *Reporter) RunStarted(info framework.RunInfo) {
	rule := strings.Repeat("=", ruleWidth)
	r.log(r.header, "HEADER", "%s", rule)
	if info.CriticalOnly {
		r.log(r.header, "HEADER", "HTTP SERVER CONTRACT TESTS (critical checks only)")
	} else {
		r.log(r.header, "HEADER", "HTTP SERVER CONTRACT TESTS")
	}
	r.log(r.header, "HEADER", "%s", rule)
	r.log(r.info, "INFO", "Target: %s, %d checks selected", info.Target, info.CheckCount)
}

func (r *Reporter) CheckStarted(def framework.CheckDefinition) {}

func (r *Reporter) CheckSkipped(name string, reason string) {
	if reason == "" {
		r.log(r.warn, "SKIP", "%s", name)
	} else {
		r.log(r.warn, "SKIP", "%s (%s)", name, reason)
	}
}

func (r *Reporter) OnResult(result framework.Result) {
	elapsed := formatSeconds(result.Duration)
	switch {
	case result.OK() && result.Critical:
		r.log(r.pass, "PASS", "[CRITICAL] %s (%s)", result.Name, elapsed)
	case result.OK():
		r.log(r.pass, "PASS", "%s (%s)", result.Name, elapsed)
	case result.Critical:
		r.log(r.critical, "CRITICAL", "[CRITICAL] %s: %s (%s)", result.Name, result.Detail, elapsed)
	default:
		r.log(r.fail, "FAIL", "%s: %s (%s)", result.Name, result.Detail, elapsed)
	}
	failed := !result.OK()
	if len(result.DebugOutput) > 0 &&
		((failed && r.opts.DebugOutputOnFailure) || (!failed && r.opts.DebugOutputOnSuccess)) {
		r.lock.Lock()
		result.DebugOutput.Dump(r.out, "    DEBUG ")
		r.lock.Unlock()
	}
}

func (r *Reporter) OnComplete(summary framework.RunSummary) {
	rule := strings.Repeat("=", ruleWidth)
	stats := summary.Stats

	fmt.Fprintln(r.out)
	r.log(r.header, "HEADER", "%s", rule)
	r.log(r.header, "HEADER", "FINAL TEST REPORT")
	r.log(r.header, "HEADER", "%s", rule)
	r.log(r.info, "INFO", "Total checks: %d", stats.Total)
	r.log(r.pass, "PASS", "Passed: %d", stats.Passed)
	r.log(r.fail, "FAIL", "Failed: %d", stats.Failed)
	r.log(r.critical, "CRITICAL", "Critical failures: %d", stats.CriticalFailed)
	if len(summary.Skipped) > 0 {
		r.log(r.warn, "WARN", "Skipped: %d", len(summary.Skipped))
	}
	r.log(r.info, "INFO", "Total execution time: %s", formatSeconds(summary.Elapsed))
	if stats.Total > 0 {
		r.log(r.info, "INFO", "Success rate: %.1f%%", stats.SuccessRatePercent())
	}

	if failures := summary.CriticalFailures(); len(failures) > 0 {
		r.log(r.critical, "CRITICAL", "CRITICAL FAILURES (these block the overall verdict):")
		for _, f := range failures {
			r.log(r.critical, "CRITICAL", "  * %s: %s", f.Name, f.Detail)
		}
	}

	if mean, max, ok := framework.LatencyStats(summary.Results); ok {
		r.log(r.info, "INFO", "Performance metrics:")
		r.log(r.info, "INFO", "  * Average check time: %.3fs", mean.Seconds())
		r.log(r.info, "INFO", "  * Slowest check time: %.3fs", max.Seconds())
	}

	r.log(r.info, "INFO", "RECOMMENDATIONS:")
	switch summary.Recommendation {
	case framework.RecommendUrgent:
		r.log(r.critical, "CRITICAL", "  %s", summary.Recommendation)
	case framework.RecommendExcellent:
		r.log(r.pass, "PASS", "  %s", summary.Recommendation)
	default:
		r.log(r.warn, "WARN", "  %s", summary.Recommendation)
	}

	if r.opts.RerunCommand != nil {
		var failed []string
		for _, f := range summary.Failures() {
			failed = append(failed, f.Name)
		}
		if len(failed) > 0 {
			r.log(r.info, "INFO", "To rerun only the failed checks:")
			r.log(r.info, "INFO", "  %s", r.opts.RerunCommand(failed))
		}
	}

	fmt.Fprintln(r.out)
	if summary.Success {
		r.log(r.pass, "PASS", "TEST SUITE COMPLETED SUCCESSFULLY!")
	} else {
		r.log(r.warn, "WARN", "TEST SUITE COMPLETED WITH ISSUES")
	}
}

func (r *Reporter) RunFailed(err error) {
	var setupErr *framework.SetupError
	switch {
	case errors.Is(err, framework.ErrInterrupted):
		r.log(r.warn, "WARN", "Test suite interrupted by user")
	case errors.As(err, &setupErr) && setupErr.Stage == framework.StageReachability:
		r.log(r.critical, "CRITICAL", "Server not available. Please start the server first. (%s)", setupErr.Err)
	default:
		r.log(r.critical, "CRITICAL", "Test suite could not run: %s", err)
	}
}

// Warn writes a warning line outside of the normal check flow.
func (r *Reporter) Warn(format string, args ...interface{}) {
	r.log(r.warn, "WARN", format, args...)
}

// Info writes an informational line outside of the normal check flow.
func (r *Reporter) Info(format string, args ...interface{}) {
	r.log(r.info, "INFO", format, args...)
}

// Warnings returns a framework.Logger whose lines are written as warnings.
func (r *Reporter) Warnings() framework.Logger {
	return warningLogger{r}
}

type warningLogger struct {
	r *Reporter
}

func (w warningLogger) Printf(format string, args ...interface{}) {
	w.r.Warn(format, args...)
}

func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.3fs", d.Seconds())
}
