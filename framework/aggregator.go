package framework

import "time"

// Aggregator folds Results into running totals and decides the verdict of a run. It is
// owned by a single Runner and is not safe for concurrent use.
type Aggregator struct {
	policy  Policy
	stats   RunStatistics
	results []Result
}

func NewAggregator(policy Policy) *Aggregator {
	return &Aggregator{policy: policy}
}

// Fold adds one Result to the totals. Results are kept in the order they were folded.
func (a *Aggregator) Fold(result Result) {
	a.stats.Total++
	if result.Outcome == Passed {
		a.stats.Passed++
	} else {
		a.stats.Failed++
		if result.Critical {
			a.stats.CriticalFailed++
		}
	}
	a.results = append(a.results, result)
}

func (a *Aggregator) Snapshot() RunStatistics {
	return a.stats
}

// Results returns a copy of the folded results in fold order.
func (a *Aggregator) Results() []Result {
	return append([]Result(nil), a.results...)
}

// OverallSuccess is false if any critical check failed or if more checks failed than the
// policy allows.
func (a *Aggregator) OverallSuccess() bool {
	return a.stats.CriticalFailed == 0 && a.stats.Failed <= a.policy.MaxAllowedFailures
}

// CriticalFailures returns the failed critical results in fold order.
func (a *Aggregator) CriticalFailures() []Result {
	var ret []Result
	for _, r := range a.results {
		if r.CriticalFailure() {
			ret = append(ret, r)
		}
	}
	return ret
}

// SuccessRatePercent is the percentage of checks that passed, or 0 if there were none.
func (s RunStatistics) SuccessRatePercent() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Passed) / float64(s.Total) * 100
}

// LatencyStats computes the mean and maximum duration of the passed results.
func LatencyStats(results []Result) (mean, max time.Duration, ok bool) {
	var total time.Duration
	var count int
	for _, r := range results {
		if r.Outcome != Passed {
			continue
		}
		count++
		total += r.Duration
		if r.Duration > max {
			max = r.Duration
		}
	}
	if count == 0 {
		return 0, 0, false
	}
	return total / time.Duration(count), max, true
}
