// Package snapshot contains a framework.Reporter that persists a JSON record of each run.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/launchdarkly/http-server-contract-tests/framework"
	"github.com/launchdarkly/http-server-contract-tests/servicedef"
)

const DefaultPath = "webserv_test_report.json"

// Writer writes a servicedef.RunSnapshot to Path when a run completes, replacing any
// previous file. Runs that are aborted do not produce a snapshot.
type Writer struct {
	Path   string
	Target servicedef.Target
	Logger framework.Logger

	criticalOnly bool
	err          error
}

func NewWriter(path string, target servicedef.Target, logger framework.Logger) *Writer {
	if logger == nil {
		logger = framework.NullLogger()
	}
	return &Writer{Path: path, Target: target, Logger: logger}
}

func (w *Writer) RunStarted(info framework.RunInfo) {
	w.criticalOnly = info.CriticalOnly
}

func (w *Writer) CheckStarted(framework.CheckDefinition) {}

func (w *Writer) CheckSkipped(string, string) {}

func (w *Writer) OnResult(framework.Result) {}

func (w *Writer) RunFailed(error) {}

func (w *Writer) OnComplete(summary framework.RunSummary) {
	w.err = w.write(Build(summary, w.Target, w.criticalOnly))
	if w.err != nil {
		w.Logger.Printf("Failed to save report: %s", w.err)
	} else {
		w.Logger.Printf("Detailed report saved to %s", w.Path)
	}
}

// Err returns the error from the last attempt to write the snapshot, if any.
func (w *Writer) Err() error {
	return w.err
}

func (w *Writer) write(snapshot servicedef.RunSnapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(w.Path)
	tmp, err := os.CreateTemp(dir, ".snapshot-*.json")
	if err != nil {
		return fmt.Errorf("could not create report file in %s: %w", dir, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), w.Path)
}

// Build converts a run summary into the snapshot document.
func Build(summary framework.RunSummary, target servicedef.Target, criticalOnly bool) servicedef.RunSnapshot {
	snapshot := servicedef.RunSnapshot{
		Timestamp: summary.StartTime,
		ServerURL: target.BaseURL(),
		Target:    target.Info(),
		Statistics: servicedef.StatisticsSnapshot{
			Total:          summary.Stats.Total,
			Passed:         summary.Stats.Passed,
			Failed:         summary.Stats.Failed,
			CriticalFailed: summary.Stats.CriticalFailed,
		},
		Success:       summary.Success,
		CriticalOnly:  criticalOnly,
		ExecutionTime: summary.Elapsed.Seconds(),
		Tests:         make([]servicedef.CheckSnapshot, 0, len(summary.Results)),
		Skipped:       summary.Skipped,
	}
	for _, r := range summary.Results {
		message := r.Detail
		if r.OK() {
			message = "Test passed"
		}
		snapshot.Tests = append(snapshot.Tests, servicedef.CheckSnapshot{
			Name:          r.Name,
			Success:       r.OK(),
			Outcome:       r.Outcome.String(),
			Message:       message,
			ExecutionTime: r.Duration.Seconds(),
			Critical:      r.Critical,
			Timestamp:     r.Timestamp,
		})
	}
	return snapshot
}
