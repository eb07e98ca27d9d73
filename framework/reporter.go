package framework

import "time"

// RunInfo describes a run that is about to start executing checks.
type RunInfo struct {
	Target       string
	CriticalOnly bool
	CheckCount   int
	StartTime    time.Time
}

// RunSummary is everything a reporter gets at the end of a run.
type RunSummary struct {
	Target         string
	StartTime      time.Time
	Elapsed        time.Duration
	Stats          RunStatistics
	Results        []Result
	Skipped        []string
	Success        bool
	Recommendation Recommendation
}

// CriticalFailures returns the failed critical results in run order.
func (s RunSummary) CriticalFailures() []Result {
	var ret []Result
	for _, r := range s.Results {
		if r.CriticalFailure() {
			ret = append(ret, r)
		}
	}
	return ret
}

// Failures returns all failed results in run order.
func (s RunSummary) Failures() []Result {
	var ret []Result
	for _, r := range s.Results {
		if !r.OK() {
			ret = append(ret, r)
		}
	}
	return ret
}

// Reporter receives progress notifications from a Runner. All methods are called from the
// Runner's goroutine, in order.
type Reporter interface {
	RunStarted(info RunInfo)
	CheckStarted(def CheckDefinition)
	CheckSkipped(name string, reason string)
	OnResult(result Result)
	OnComplete(summary RunSummary)
	// RunFailed is called instead of OnComplete if the run was aborted, either by a
	// *SetupError before any check ran or by ErrInterrupted.
	RunFailed(err error)
}

type nullReporter struct{}

func (n nullReporter) RunStarted(RunInfo)           {}
func (n nullReporter) CheckStarted(CheckDefinition) {}
func (n nullReporter) CheckSkipped(string, string)  {}
func (n nullReporter) OnResult(Result)              {}
func (n nullReporter) OnComplete(RunSummary)        {}
func (n nullReporter) RunFailed(error)              {}

func NullReporter() Reporter { return nullReporter{} }

// MultiReporter forwards every notification to each of its reporters in turn.
type MultiReporter []Reporter

func (m MultiReporter) RunStarted(info RunInfo) {
	for _, r := range m {
		r.RunStarted(info)
	}
}

func (m MultiReporter) CheckStarted(def CheckDefinition) {
	for _, r := range m {
		r.CheckStarted(def)
	}
}

func (m MultiReporter) CheckSkipped(name string, reason string) {
	for _, r := range m {
		r.CheckSkipped(name, reason)
	}
}

func (m MultiReporter) OnResult(result Result) {
	for _, r := range m {
		r.OnResult(result)
	}
}

func (m MultiReporter) OnComplete(summary RunSummary) {
	for _, r := range m {
		r.OnComplete(summary)
	}
}

func (m MultiReporter) RunFailed(err error) {
	for _, r := range m {
		r.RunFailed(err)
	}
}
