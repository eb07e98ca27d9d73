package webservtests

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/launchdarkly/http-server-contract-tests/framework"
)

var performanceChecks = []check{
	{"Concurrent load handling", doConcurrentLoadCheck},
	{"Large file handling", doLargeFileCheck},
	{"Memory leak detection", doMemoryLeakCheck},
}

const (
	loadProbeOperations = 30
	loadProbeWorkers    = 10
	loadProbeTimeout    = 10 * time.Second
)

func doConcurrentLoadCheck(t *T) {
	agg := t.Probe(framework.ProbeConfig{
		Operations:       loadProbeOperations,
		Workers:          loadProbeWorkers,
		OperationTimeout: loadProbeTimeout,
	}, func(ctx context.Context, id int) error {
		return getExpecting(ctx, t.Client(), fmt.Sprintf("/?load=%d", id), Status(http.StatusOK))
	})
	require.NoError(t, agg.RequireSuccessRate(t.Policy().LoadSuccessRate), "poor load performance")

	if err := agg.RequireMeanLatencyBelow(t.Policy().SlowMeanLatency); err != nil {
		t.Warn("slow average response time: %s", err)
	}
}

func doLargeFileCheck(t *T) {
	// every outcome is acceptable for a body this size, so this only reports what happened
	resp, err := t.Upload(30*time.Second, "/upload", "large_file.txt", bytesOf('x', megabyte))
	switch {
	case err != nil:
		t.Debug("large file upload error (acceptable): %s", err)
	case accepted.Matches(resp.StatusCode):
		t.Debug("large file upload successful")
	case resp.StatusCode == http.StatusRequestEntityTooLarge:
		t.Debug("large file rejected (413), body size limit active")
	default:
		t.Debug("large file upload got unexpected status: %d", resp.StatusCode)
	}
}

const (
	leakRequests        = 50
	leakMinSuccesses    = 40
	leakDegradationRate = 3
)

func doMemoryLeakCheck(t *T) {
	timeout := t.env.requestTimeout()
	latencies := make([]time.Duration, 0, leakRequests)
	successes := 0
	for i := 0; i < leakRequests; i++ {
		startTime := time.Now()
		resp, err := t.Get(fmt.Sprintf("/?mem_test=%d", i))
		switch {
		case err != nil:
			// a failed request counts as taking the whole timeout
			latencies = append(latencies, timeout)
		case resp.StatusCode == http.StatusOK:
			successes++
			latencies = append(latencies, time.Since(startTime))
		}
	}
	require.GreaterOrEqual(t, successes, leakMinSuccesses, "too many requests failed in memory test")

	half := len(latencies) / 2
	if half == 0 {
		return
	}
	first, second := meanDuration(latencies[:half]), meanDuration(latencies[half:])
	t.Debug("mean latency %s in first half, %s in second half", first, second)
	if second > first*leakDegradationRate {
		t.Warn("response times degrading: %.3fs -> %.3fs", first.Seconds(), second.Seconds())
	}
}

func meanDuration(ds []time.Duration) time.Duration {
	if len(ds) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range ds {
		total += d
	}
	return total / time.Duration(len(ds))
}
