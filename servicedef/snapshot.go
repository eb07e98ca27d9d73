package servicedef

import (
	"time"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

// RunSnapshot is the machine-readable record of a whole run that is written to disk at the
// end of every run. Field names are kept stable for the benefit of external tooling.
type RunSnapshot struct {
	Timestamp     time.Time          `json:"timestamp"`
	ServerURL     string             `json:"server_url"`
	Target        TargetInfo         `json:"target"`
	Statistics    StatisticsSnapshot `json:"statistics"`
	Success       bool               `json:"success"`
	CriticalOnly  bool               `json:"critical_only"`
	ExecutionTime float64            `json:"execution_time"`
	Tests         []CheckSnapshot    `json:"tests"`
	Skipped       []string           `json:"skipped,omitempty"`
}

type TargetInfo struct {
	Host    string              `json:"host"`
	Port    int                 `json:"port"`
	AltPort ldvalue.OptionalInt `json:"alt_port"`
	Timeout float64             `json:"timeout"`
}

type StatisticsSnapshot struct {
	Total          int `json:"total"`
	Passed         int `json:"passed"`
	Failed         int `json:"failed"`
	CriticalFailed int `json:"critical_failed"`
}

type CheckSnapshot struct {
	Name          string    `json:"name"`
	Success       bool      `json:"success"`
	Outcome       string    `json:"outcome"`
	Message       string    `json:"message"`
	ExecutionTime float64   `json:"execution_time"`
	Critical      bool      `json:"critical"`
	Timestamp     time.Time `json:"timestamp"`
}

func (t Target) Info() TargetInfo {
	return TargetInfo{
		Host:    t.Host,
		Port:    t.Port,
		AltPort: t.AltPort,
		Timeout: t.Timeout.Seconds(),
	}
}
