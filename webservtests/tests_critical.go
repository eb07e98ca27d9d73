package webservtests

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launchdarkly/http-server-contract-tests/client"
	"github.com/launchdarkly/http-server-contract-tests/framework"
)

var criticalChecks = []check{
	{"Never hang forever", doNeverHangCheck},
	{"Browser compatibility", doBrowserCompatibilityCheck},
	{"HTTP status accuracy", doStatusAccuracyCheck},
	{"HTTP methods implementation", doMethodsCheck},
	{"Static website serving", doStaticServingCheck},
	{"File upload capability", doFileUploadCheck},
	{"Server resilience", doResilienceCheck},
	{"Malformed request handling", doMalformedRequestCheck},
	{"Body size limits (critical)", doBodySizeLimitsCheck},
}

var browserHeaders = []client.RequestOption{
	client.WithHeader("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) "+
		"Chrome/91.0.4472.124 Safari/537.36"),
	client.WithHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"),
	client.WithHeader("Accept-Language", "en-US,en;q=0.5"),
	client.WithHeader("Accept-Encoding", "gzip, deflate"),
	client.WithHeader("Connection", "keep-alive"),
	client.WithHeader("Upgrade-Insecure-Requests", "1"),
	client.WithHeader("Cache-Control", "max-age=0"),
}

var staticAssets = []string{"/assets/css/styles.css", "/assets/js/test.js"}

const (
	hangProbeOperations   = 20
	hangProbeWorkers      = 10
	hangProbeTimeout      = 20 * time.Second
	hangProbeMaxFailures  = 2
	stressProbeOperations = 50
	stressProbeWorkers    = 15
	stressProbeTimeout    = 15 * time.Second
)

func doNeverHangCheck(t *T) {
	agg := t.Probe(framework.ProbeConfig{
		Operations:       hangProbeOperations,
		Workers:          hangProbeWorkers,
		OperationTimeout: hangProbeTimeout,
	}, func(ctx context.Context, id int) error {
		_, err := t.Client().Get(ctx, fmt.Sprintf("/?test=hang&id=%d", id))
		return err
	})

	require.Zero(t, agg.Timeouts, "server hung! %d requests timed out", agg.Timeouts)
	require.LessOrEqual(t, agg.Failures(), hangProbeMaxFailures,
		"too many failures: %d/%d successful", agg.Successes, agg.Count)
}

func doBrowserCompatibilityCheck(t *T) {
	resp := t.RequireResponse(t.Get("/", browserHeaders...))
	t.RequireStatus(resp, Status(http.StatusOK), "browser request")

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "text/plain") {
		require.Fail(t, fmt.Sprintf("unexpected content type for browser: %q", contentType))
	}

	for _, asset := range staticAssets {
		resp, err := t.Get(asset, browserHeaders...)
		switch {
		case err != nil:
			t.Warn("asset %s failed: %s", asset, err)
		case !OneOf(http.StatusOK, http.StatusNotFound).Matches(resp.StatusCode):
			t.Warn("asset %s: %d", asset, resp.StatusCode)
		}
	}
}

type statusCase struct {
	description  string
	expect       Expect
	// dropAccepted means that closing the connection is an acceptable way to refuse the request
	dropAccepted bool
	send         func(t *T) (*client.Response, error)
}

var statusCases = []statusCase{
	{"index page (GET /)", Status(http.StatusOK), false, func(t *T) (*client.Response, error) {
		return t.Get("/")
	}},
	{"non-existent resource (GET /nonexistent)", Status(http.StatusNotFound), true, func(t *T) (*client.Response, error) {
		return t.Get("/nonexistent")
	}},
	{"POST to GET-only location (POST /)", Status(http.StatusMethodNotAllowed), true, func(t *T) (*client.Response, error) {
		return t.Post("/", "application/x-www-form-urlencoded", []byte(url.Values{"test": {"data"}}.Encode()))
	}},
	{"DELETE to read-only location (DELETE /readonly)", Status(http.StatusMethodNotAllowed), true,
		func(t *T) (*client.Response, error) {
			return t.Delete("/readonly")
		}},
	{"valid upload (POST /upload)", OneOf(http.StatusOK, http.StatusCreated), false, func(t *T) (*client.Response, error) {
		return t.Upload(10*time.Second, "/upload", "test.txt", []byte("data"))
	}},
}

func doStatusAccuracyCheck(t *T) {
	for _, c := range statusCases {
		resp, err := c.send(t)
		if err != nil && c.dropAccepted {
			t.Debug("%s: connection error accepted: %s", c.description, err)
			continue
		}
		require.NoError(t, err, "%s: request failed", c.description)
		t.RequireStatus(resp, c.expect, c.description)
	}
}

func doMethodsCheck(t *T) {
	resp := t.RequireResponse(t.Get("/"))
	t.RequireStatus(resp, Status(http.StatusOK), "GET")

	resp = t.RequireResponse(t.Upload(10*time.Second, "/upload", "test_post.txt",
		[]byte("Test file content for POST method validation")))
	t.RequireStatus(resp, OneOf(http.StatusOK, http.StatusCreated), "POST")

	resp = t.RequireResponse(t.Delete("/api/test"))
	t.RequireStatus(resp, OneOf(http.StatusOK, http.StatusNoContent, http.StatusNotFound, http.StatusMethodNotAllowed),
		"DELETE")
}

var staticFiles = []string{"/index.html", "/browse/file1.txt", "/assets/css/styles.css", "/assets/js/test.js"}

const minStaticFilesServed = 2

func doStaticServingCheck(t *T) {
	served := 0
	for _, path := range staticFiles {
		resp, err := t.Get(path)
		require.NoError(t, err, "failed to serve %s", path)
		switch resp.StatusCode {
		case http.StatusOK:
			served++
		case http.StatusNotFound:
		default:
			require.Fail(t, fmt.Sprintf("unexpected status for %s: %d", path, resp.StatusCode))
		}
	}
	assert.GreaterOrEqual(t, served, minStaticFilesServed, "too few static files served successfully")
}

func doFileUploadCheck(t *T) {
	resp, err := t.Upload(15*time.Second, "/upload", "small_test.txt", []byte("Small test file for upload validation"))
	if err != nil {
		require.True(t, isConnectionDrop(err), "small file upload failed: %s", err)
		// a server with a very restrictive body size limit may drop even small uploads, which
		// is fine as long as the upload location exists
		t.Warn("small upload connection reset, checking if upload endpoint exists")
		resp := t.RequireResponse(t.Get("/upload"))
		t.RequireStatus(resp, OneOf(http.StatusOK, http.StatusMethodNotAllowed), "upload endpoint")
		t.Debug("upload endpoint exists but has a very restrictive body size limit")
		return
	}
	t.RequireStatus(resp, OneOf(http.StatusOK, http.StatusCreated), "small file upload")

	resp, err = t.Upload(20*time.Second, "/upload", "medium_test.txt", []byte(strings.Repeat("x", 10*1024)))
	switch {
	case err != nil && isConnectionDrop(err):
		t.Debug("medium upload connection reset, body size limit active")
	case err != nil:
		t.Warn("medium upload connection error: %s", err)
	case OneOf(http.StatusOK, http.StatusCreated, http.StatusRequestEntityTooLarge).Matches(resp.StatusCode):
		t.Debug("medium file upload handled with %d", resp.StatusCode)
	default:
		t.Debug("medium file upload got status %d", resp.StatusCode)
	}
}

func doResilienceCheck(t *T) {
	agg := t.Probe(framework.ProbeConfig{
		Operations:       stressProbeOperations,
		Workers:          stressProbeWorkers,
		OperationTimeout: stressProbeTimeout,
	}, func(ctx context.Context, id int) error {
		return getExpecting(ctx, t.Client(), fmt.Sprintf("/?stress=%d", id), Status(http.StatusOK))
	})
	require.NoError(t, agg.RequireSuccessRate(t.Policy().StressSuccessRate), "server failed under stress")
}

var malformedRequests = [][]byte{
	[]byte("GET\r\n\r\n"),
	[]byte("GET / HTTP/999\r\nHost: localhost\r\n\r\n"),
	[]byte("INVALID / HTTP/1.1\r\nHost: localhost\r\n\r\n"),
	[]byte("GET / HTTP/1.1\r\nContent-Length: -1\r\n\r\n"),
	[]byte("GET /../../../etc/passwd HTTP/1.1\r\nHost: localhost\r\n\r\n"),
	{0x00, 0x01, 0x02, 0x03},
}

// The status codes that count as a graceful rejection of a malformed request.
var malformedRejection = OneOf(400, 404, 405, 411, 413, 414, 431, 501, 505)

const malformedReadTimeout = 5 * time.Second

func doMalformedRequestCheck(t *T) {
	handled := 0
	for _, payload := range malformedRequests {
		ex, err := t.Raw(payload, malformedReadTimeout)
		if err != nil {
			continue
		}
		if code, ok := rawStatus(ex.Response); ok && malformedRejection.Matches(code) {
			handled++
		}
	}
	require.GreaterOrEqual(t, handled, len(malformedRequests)/2,
		"poor malformed request handling: %d/%d", handled, len(malformedRequests))
}

func doBodySizeLimitsCheck(t *T) {
	resp, err := t.PostWithin(10*time.Second, "/upload", "text/plain", []byte("small test data"))
	switch {
	case err != nil:
		t.Warn("small request error: %s", err)
	case !OneOf(http.StatusOK, http.StatusCreated, http.StatusMethodNotAllowed).Matches(resp.StatusCode):
		t.Warn("small request failed: %d", resp.StatusCode)
	}

	resp, err = t.PostWithin(15*time.Second, "/upload", "text/plain", bytesOf('A', 100*1024))
	switch {
	case err != nil && isConnectionDrop(err):
		t.Debug("medium request (100KB) connection reset, body size limit active")
	case err != nil:
		t.Warn("medium request connection error: %s", err)
	case resp.StatusCode == http.StatusRequestEntityTooLarge:
		t.Debug("medium request (100KB) rejected with 413, body size limit active")
	default:
		t.Debug("medium request (100KB) got status %d", resp.StatusCode)
	}

	resp, err = t.PostWithin(20*time.Second, "/upload", "text/plain", bytesOf('B', 1024*1024))
	switch {
	case err != nil && isConnectionDrop(err):
		t.Debug("large request (1MB) connection reset, body size limit active")
	case err != nil:
		t.Warn("large request connection error: %s", err)
	case resp.StatusCode == http.StatusRequestEntityTooLarge:
		t.Debug("large request (1MB) correctly rejected with 413")
	case OneOf(http.StatusOK, http.StatusCreated).Matches(resp.StatusCode):
		t.Warn("large request (1MB) accepted, no body size limit")
	default:
		t.Debug("large request (1MB) got status %d", resp.StatusCode)
	}
}
