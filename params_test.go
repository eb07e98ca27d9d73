package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launchdarkly/http-server-contract-tests/config"
	"github.com/launchdarkly/http-server-contract-tests/framework"
	"github.com/launchdarkly/http-server-contract-tests/history"
)

func parseParams(t *testing.T, args ...string) *commandParams {
	params := &commandParams{}
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	params.addFlags(fs)
	require.NoError(t, fs.Parse(args))
	return params
}

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "harness.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestResolveWithoutConfigFileUsesFlags(t *testing.T) {
	params := parseParams(t, "--url", "http://127.0.0.1:9000", "--timeout", "3s", "--alt-port", "0")
	cfg, err := params.resolve()
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:9000", cfg.Target.URL)
	assert.Equal(t, 3*time.Second, cfg.Target.Timeout)
	assert.Equal(t, 0, cfg.Target.AltPort)
	assert.Equal(t, config.Default().Report.Path, cfg.Report.Path)
}

func TestExplicitFlagsOverrideConfigFile(t *testing.T) {
	path := writeConfig(t, `
target:
  url: http://file-host:7000
  timeout: 20s
report:
  path: ""
run:
  - "^HTTP"
`)
	params := parseParams(t, "--config", path, "--timeout", "4s")
	cfg, err := params.resolve()
	require.NoError(t, err)

	assert.Equal(t, "http://file-host:7000", cfg.Target.URL)
	assert.Equal(t, 4*time.Second, cfg.Target.Timeout)
	assert.Equal(t, "", cfg.Report.Path)
	assert.Equal(t, []string{"^HTTP"}, cfg.Run)
	assert.True(t, params.filters.AsFilter("HTTP status accuracy"))
	assert.False(t, params.filters.AsFilter("Virtual hosts"))
}

func TestRunFlagReplacesConfigFileRunPatterns(t *testing.T) {
	path := writeConfig(t, "run:\n  - \"^HTTP\"\nskip:\n  - \"methods\"\n")
	params := parseParams(t, "--config", path, "--run", "Never", "--skip", "resilience")
	cfg, err := params.resolve()
	require.NoError(t, err)

	assert.Equal(t, []string{"Never"}, cfg.Run)
	assert.Equal(t, []string{"resilience", "methods"}, cfg.Skip)
	assert.True(t, params.filters.AsFilter("Never hang forever"))
	assert.False(t, params.filters.AsFilter("HTTP status accuracy"))
}

func TestRerunCommandWithConfigFileSelectsOnlyFailedChecks(t *testing.T) {
	path := writeConfig(t, "run:\n  - \"^HTTP\"\n  - \"^Virtual\"\n")
	params := parseParams(t, "--config", path)
	cfg, err := params.resolve()
	require.NoError(t, err)

	args := params.rerunArgs("./harness", cfg, []string{"Virtual hosts"})
	var quoted commandBuilder
	quoted.add(args...)
	assert.Equal(t, quoted.String(), params.rerunCommand("./harness", cfg, []string{"Virtual hosts"}))

	rerun := parseParams(t, args[1:]...)
	_, err = rerun.resolve()
	require.NoError(t, err)
	assert.True(t, rerun.filters.AsFilter("Virtual hosts"))
	assert.False(t, rerun.filters.AsFilter("HTTP status accuracy"))
	assert.False(t, rerun.filters.AsFilter("Virtual hosts extra"))
}

func TestResolveRejectsBadConfigPattern(t *testing.T) {
	path := writeConfig(t, "skip:\n  - \"([\"\n")
	_, err := parseParams(t, "--config", path).resolve()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "skip pattern")
}

func TestRerunCommandSelectsExactlyTheFailedChecks(t *testing.T) {
	params := parseParams(t, "--url", "http://localhost:8080", "--quick")
	cfg, err := params.resolve()
	require.NoError(t, err)

	names := []string{"HTTP status accuracy", "File upload capability (multipart)"}
	cmd := params.rerunCommand("./harness", cfg, names)
	assert.Equal(t,
		`./harness --url http://localhost:8080 --quick --run '^(HTTP status accuracy|File upload capability \(multipart\))$'`,
		cmd)

	pattern := regexp.MustCompile(`^(HTTP status accuracy|File upload capability \(multipart\))$`)
	for _, n := range names {
		assert.True(t, pattern.MatchString(n))
	}
	assert.False(t, pattern.MatchString("HTTP status accuracy extra"))
}

func TestExitCodes(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, exitInterrupted, exitCode(framework.ErrInterrupted))
	assert.Equal(t, exitFailure, exitCode(errAlreadyReported))
	assert.Equal(t, exitFailure, exitCode(fmt.Errorf("%w: setup failed", errAlreadyReported)))
}

func TestCheckReportDir(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, checkReportDir(""))
	assert.NoError(t, checkReportDir(filepath.Join(dir, "report.json")))
	assert.Error(t, checkReportDir(filepath.Join(dir, "missing", "report.json")))
}

func TestPrintHistory(t *testing.T) {
	store, err := history.Open(filepath.Join(t.TempDir(), "runs.db"), nil)
	require.NoError(t, err)
	defer store.Close()

	summary := framework.RunSummary{
		StartTime: time.Now(),
		Elapsed:   2 * time.Second,
		Stats:     framework.RunStatistics{Total: 2, Passed: 1, Failed: 1},
		Results: []framework.Result{
			{Name: "Virtual hosts", Outcome: framework.Passed},
			{Name: "Request smuggling", Outcome: framework.Failed, Detail: "no"},
		},
		Success: true,
	}
	id, err := store.Record("http://localhost:8080", false, summary)
	require.NoError(t, err)

	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	require.NoError(t, printHistory(cmd, store, 10))

	out := buf.String()
	assert.Contains(t, out, "http://localhost:8080")
	assert.Contains(t, out, "1/2")
	assert.Contains(t, out, "Failures over the last 1 runs:")
	assert.Contains(t, out, "Request smuggling")

	buf.Reset()
	require.NoError(t, printRunChecks(cmd, store, id))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Regexp(t, `^CHECK\s+RESULT\s+DURATION\s+DETAIL$`, lines[0])
	assert.Regexp(t, `^Virtual hosts\s+PASS\s+0\.000s`, lines[1])
	assert.Regexp(t, `^Request smuggling\s+FAIL\s+0\.000s\s+no$`, lines[2])

	buf.Reset()
	require.NoError(t, printRunChecks(cmd, store, id+1))
	assert.Equal(t, fmt.Sprintf("No checks recorded for run %d\n", id+1), buf.String())
}

func TestHistoryFailuresAreShownAsWarnings(t *testing.T) {
	params := parseParams(t, "--no-color", "--history", filepath.Join(t.TempDir(), "runs.db"))
	var buf bytes.Buffer
	h, err := newHarness(params, &buf)
	require.NoError(t, err)
	require.NotNil(t, h.history)

	require.NoError(t, h.history.Close())
	h.history.OnComplete(framework.RunSummary{StartTime: time.Now()})

	assert.Error(t, h.history.Err())
	assert.Contains(t, buf.String(), "[WARN] Failed to record run in history")
}
