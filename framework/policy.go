package framework

import "time"

// Default policy values. None of these are derived from anything more rigorous than
// experience with the servers being tested, so all of them can be overridden.
const (
	DefaultMaxAllowedFailures   = 5
	DefaultMinorIssueThreshold  = 3
	DefaultStressSuccessRate    = 0.85
	DefaultLoadSuccessRate      = 0.90
	DefaultSlowMeanLatency      = 3 * time.Second
	DefaultReachabilityAttempts = 10
	DefaultReachabilityInterval = time.Second
)

// Policy holds the thresholds that decide the verdict of a run and that checks use to
// judge probe aggregates.
type Policy struct {
	// MaxAllowedFailures is the largest number of failed checks a run can have and still
	// succeed, provided none of them are critical.
	MaxAllowedFailures int `yaml:"maxAllowedFailures" mapstructure:"maxAllowedFailures"`
	// MinorIssueThreshold is the largest failure count that is still reported as minor.
	MinorIssueThreshold int `yaml:"minorIssueThreshold" mapstructure:"minorIssueThreshold"`
	// StressSuccessRate is the minimum success rate for the stress resilience probe.
	StressSuccessRate float64 `yaml:"stressSuccessRate" mapstructure:"stressSuccessRate"`
	// LoadSuccessRate is the minimum success rate for the concurrent load probe.
	LoadSuccessRate float64 `yaml:"loadSuccessRate" mapstructure:"loadSuccessRate"`
	// SlowMeanLatency is the mean latency above which a warning is logged.
	SlowMeanLatency time.Duration `yaml:"slowMeanLatency" mapstructure:"slowMeanLatency"`
	// Reachability controls how long the runner waits for the target to respond.
	Reachability RetryPolicy `yaml:"reachability" mapstructure:"reachability"`
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAllowedFailures:  DefaultMaxAllowedFailures,
		MinorIssueThreshold: DefaultMinorIssueThreshold,
		StressSuccessRate:   DefaultStressSuccessRate,
		LoadSuccessRate:     DefaultLoadSuccessRate,
		SlowMeanLatency:     DefaultSlowMeanLatency,
		Reachability: RetryPolicy{
			Attempts: DefaultReachabilityAttempts,
			Interval: DefaultReachabilityInterval,
		},
	}
}

type Recommendation int

const (
	RecommendExcellent Recommendation = iota
	RecommendGood
	RecommendReview
	RecommendUrgent
)

func (r Recommendation) String() string {
	switch r {
	case RecommendExcellent:
		return "Excellent! All checks passed."
	case RecommendGood:
		return "Good performance with minor issues."
	case RecommendReview:
		return "Multiple issues detected. Review implementation."
	case RecommendUrgent:
		return "URGENT: Fix critical failures before evaluation!"
	default:
		return "unknown"
	}
}

// Recommend derives a qualitative recommendation purely from the run counters.
func (p Policy) Recommend(stats RunStatistics) Recommendation {
	switch {
	case stats.CriticalFailed > 0:
		return RecommendUrgent
	case stats.Failed == 0:
		return RecommendExcellent
	case stats.Failed <= p.MinorIssueThreshold:
		return RecommendGood
	default:
		return RecommendReview
	}
}
