package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/launchdarkly/http-server-contract-tests/client"
	"github.com/launchdarkly/http-server-contract-tests/config"
	"github.com/launchdarkly/http-server-contract-tests/framework"
	"github.com/launchdarkly/http-server-contract-tests/framework/console"
	"github.com/launchdarkly/http-server-contract-tests/framework/snapshot"
	"github.com/launchdarkly/http-server-contract-tests/history"
	"github.com/launchdarkly/http-server-contract-tests/servicedef"
	"github.com/launchdarkly/http-server-contract-tests/webservtests"
)

// errAlreadyReported marks errors that the console reporter has already shown.
var errAlreadyReported = errors.New("test suite did not succeed")

// harness holds what stays the same across runs of the check battery.
type harness struct {
	params  *commandParams
	cfg     config.Config
	target  servicedef.Target
	out     io.Writer
	logger  framework.Logger
	console *console.Reporter
	history *history.Store
}

func newHarness(params *commandParams, out io.Writer) (*harness, error) {
	cfg, err := params.resolve()
	if err != nil {
		return nil, err
	}
	target, err := servicedef.ParseTarget(cfg.Target.URL, cfg.Target.AltPort, cfg.Target.Timeout)
	if err != nil {
		return nil, err
	}
	h := &harness{
		params: params,
		cfg:    cfg,
		target: target,
		out:    out,
		logger: newDebugLogger(params.debugAll, out),
	}
	h.console = console.New(out, console.Options{
		DebugOutputOnFailure: params.debug || params.debugAll,
		DebugOutputOnSuccess: params.debugAll,
		NoColor:              params.noColor,
		RerunCommand: func(failed []string) string {
			return params.rerunCommand(os.Args[0], cfg, failed)
		},
	})
	if cfg.Report.History != "" {
		if h.history, err = history.Open(cfg.Report.History, h.console.Warnings()); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func newDebugLogger(enabled bool, out io.Writer) framework.Logger {
	if !enabled {
		return framework.NullLogger()
	}
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetLevel(logrus.DebugLevel)
	return logger
}

func (h *harness) close() {
	if h.history != nil {
		if err := h.history.Close(); err != nil {
			h.logger.Printf("Error closing history database: %s", err)
		}
	}
}

// runOnce executes the whole battery one time. It returns nil only if the run succeeded.
func (h *harness) runOnce(ctx context.Context) error {
	p := h.params
	reporters := framework.MultiReporter{h.console}
	if h.cfg.Report.Path != "" {
		reporters = append(reporters, snapshot.NewWriter(h.cfg.Report.Path, h.target, printfFunc(h.console.Info)))
	}
	if h.history != nil {
		reporters = append(reporters, h.history)
	}

	env := &webservtests.Environment{
		Client:         client.New(h.target, h.logger),
		Policy:         h.cfg.Policy,
		RequestTimeout: h.cfg.Target.RequestTimeout,
		Warnings:       h.console.Warnings(),
	}
	defer env.Client.CloseIdleConnections()

	runner, err := framework.NewRunner(framework.RunnerConfig{
		Target:         h.target.String(),
		DefaultTimeout: h.cfg.Target.Timeout,
		Policy:         h.cfg.Policy,
		Checks:         webservtests.AllChecks(env),
		Reporter:       reporters,
		Logger:         h.logger,
		Setup: func(context.Context) error {
			return checkReportDir(h.cfg.Report.Path)
		},
		Reachability: env.Client.Reachable,
		CriticalOnly: p.quick,
		Filter:       p.filters.AsFilter,
	})
	if err != nil {
		return err
	}
	for _, line := range framework.DescribeFilters(p.filters) {
		h.console.Info("%s", line)
	}

	outcome, err := runner.Run(ctx)
	switch {
	case errors.Is(err, framework.ErrInterrupted):
		return err
	case err != nil:
		return fmt.Errorf("%w: %s", errAlreadyReported, err)
	case !outcome.Success:
		return errAlreadyReported
	}
	return nil
}

func checkReportDir(reportPath string) error {
	if reportPath == "" {
		return nil
	}
	dir := filepath.Dir(reportPath)
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("report directory is not usable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("report directory %s is not a directory", dir)
	}
	return nil
}

type printfFunc func(format string, args ...interface{})

func (f printfFunc) Printf(format string, args ...interface{}) {
	f(format, args...)
}
