package webservtests

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/launchdarkly/http-server-contract-tests/client"
	"github.com/launchdarkly/http-server-contract-tests/framework"
)

var bodySizeChecks = []check{
	{"Medium request body size (100KB)", doMediumBodyCheck},
	{"Large request body size (1MB)", doLargeBodyCheck},
	{"Very large request body size (10MB)", doVeryLargeBodyCheck},
	{"Chunked transfer body size", doChunkedBodyCheck},
	{"Multipart form body size", doMultipartBodyCheck},
	{"Content-Length validation", doContentLengthValidationCheck},
	{"Different endpoints body size", doEndpointBodySizeCheck},
	{"Empty body handling", doEmptyBodyCheck},
	{"Malformed large headers", doLargeHeadersCheck},
	{"Concurrent body size requests", doConcurrentBodySizeCheck},
	{"Body size performance", doBodySizePerformanceCheck},
}

const (
	kilobyte = 1024
	megabyte = 1024 * kilobyte
)

var (
	accepted        = OneOf(http.StatusOK, http.StatusCreated)
	acceptedOrLimit = OneOf(http.StatusOK, http.StatusCreated, http.StatusRequestEntityTooLarge)
)

// describeBodyOutcome logs how the server dealt with a body that may be over its limit.
// A dropped connection counts as enforcing the limit; any other request error is returned.
func describeBodyOutcome(t *T, what string, resp *client.Response, err error, warnIfAccepted bool) error {
	switch {
	case err != nil && isConnectionDrop(err):
		t.Debug("%s: connection reset, limit enforced", what)
	case err != nil:
		return err
	case resp.StatusCode == http.StatusRequestEntityTooLarge:
		t.Debug("%s: rejected with 413", what)
	case accepted.Matches(resp.StatusCode) && warnIfAccepted:
		t.Warn("%s accepted, high or no body size limit", what)
	default:
		t.Debug("%s: got status %d", what, resp.StatusCode)
	}
	return nil
}

func doMediumBodyCheck(t *T) {
	resp, err := t.PostWithin(15*time.Second, "/upload", "text/plain", bytesOf('M', 100*kilobyte))
	require.NoError(t, describeBodyOutcome(t, "medium body (100KB)", resp, err, false))
}

func doLargeBodyCheck(t *T) {
	resp, err := t.PostWithin(30*time.Second, "/upload", "text/plain", bytesOf('L', megabyte))
	require.NoError(t, describeBodyOutcome(t, "large body (1MB)", resp, err, true))
}

const veryLargeChunks = 10

func doVeryLargeBodyCheck(t *T) {
	chunk := bytesOf('X', megabyte)
	readers := make([]io.Reader, 0, veryLargeChunks)
	for i := 0; i < veryLargeChunks; i++ {
		readers = append(readers, bytes.NewReader(chunk))
	}

	ctx, cancel := context.WithTimeout(t.Context(), 25*time.Second)
	defer cancel()
	resp, err := t.Client().DoStream(ctx, http.MethodPost, t.Client().Target().URL("/upload"),
		io.MultiReader(readers...),
		client.WithHeader("Content-Type", "application/octet-stream"),
		client.WithContentLength(veryLargeChunks*megabyte))
	if err := describeBodyOutcome(t, "very large body (10MB)", resp, err, true); err != nil {
		// the server may legitimately stop reading a body this size without answering
		t.Debug("very large body: %s", err)
	}
}

func doChunkedBodyCheck(t *T) {
	resp, err := t.PostWithin(20*time.Second, "/upload", "text/plain", bytesOf('C', megabyte),
		client.WithChunkedEncoding())
	if err := describeBodyOutcome(t, "chunked large body", resp, err, false); err != nil {
		t.Debug("chunked transfer error: %s", err)
	}
}

func doMultipartBodyCheck(t *T) {
	binary := make([]byte, 0, 512*kilobyte)
	for len(binary) < 512*kilobyte {
		for b := 0; b < 256; b++ {
			binary = append(binary, byte(b))
		}
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "test_upload.bin")
	require.NoError(t, err)
	_, _ = part.Write(binary)
	require.NoError(t, w.WriteField("description", "Binary file upload test"))
	require.NoError(t, w.Close())

	resp, err := t.PostWithin(20*time.Second, "/upload", w.FormDataContentType(), buf.Bytes())
	if err := describeBodyOutcome(t, "multipart upload (512KB)", resp, err, false); err != nil {
		t.Debug("multipart upload error: %s", err)
	}
}

func doContentLengthValidationCheck(t *T) {
	data := []byte("Content-Length validation test data")
	resp, err := t.PostWithin(10*time.Second, "/upload", "text/plain", data,
		client.WithContentLength(int64(len(data))))
	switch {
	case err != nil:
		t.Warn("Content-Length validation error: %s", err)
	case accepted.Matches(resp.StatusCode):
		t.Debug("Content-Length validation passed")
	default:
		t.Debug("Content-Length validation got status %d", resp.StatusCode)
	}
}

var bodySizeEndpoints = []string{"/upload", "/api/data", "/files/upload", "/images/upload"}

func doEndpointBodySizeCheck(t *T) {
	plausible := OneOf(http.StatusOK, http.StatusCreated, http.StatusNotFound, http.StatusMethodNotAllowed,
		http.StatusRequestEntityTooLarge)
	data := bytesOf('E', 100*kilobyte)
	for _, endpoint := range bodySizeEndpoints {
		resp, err := t.PostWithin(10*time.Second, endpoint, "text/plain", data)
		switch {
		case err != nil:
			t.Debug("endpoint %s: %s", endpoint, err)
		case plausible.Matches(resp.StatusCode):
			t.Debug("endpoint %s: %d", endpoint, resp.StatusCode)
		default:
			t.Warn("endpoint %s: unexpected %d", endpoint, resp.StatusCode)
		}
	}
}

func doEmptyBodyCheck(t *T) {
	resp := t.RequireResponse(t.Post("/upload", "text/plain", []byte{}))
	if !OneOf(http.StatusOK, http.StatusCreated, http.StatusBadRequest, http.StatusMethodNotAllowed).Matches(resp.StatusCode) {
		t.Warn("empty body got unexpected status: %d", resp.StatusCode)
	}
}

func doLargeHeadersCheck(t *T) {
	resp, err := t.PostWithin(10*time.Second, "/upload", "text/plain", []byte("test"),
		client.WithHeader("X-Custom-Header", strings.Repeat("A", 8*kilobyte)))
	switch {
	case err != nil && isConnectionDrop(err):
		t.Debug("long header: connection reset, limit enforced")
	case err != nil:
		t.Debug("long header: %s", err)
	case OneOf(http.StatusRequestHeaderFieldsTooLarge, http.StatusBadRequest).Matches(resp.StatusCode):
		t.Debug("long header rejected with %d", resp.StatusCode)
	case accepted.Matches(resp.StatusCode):
		t.Warn("long header accepted, no header size limit")
	default:
		t.Debug("long header got status %d", resp.StatusCode)
	}
}

const (
	concurrentBodyRequests    = 5
	concurrentBodyMinHandled  = 3
	concurrentBodyRequestSize = 50 * kilobyte
)

func doConcurrentBodySizeCheck(t *T) {
	agg := t.Probe(framework.ProbeConfig{
		Operations:       concurrentBodyRequests,
		Workers:          concurrentBodyRequests,
		OperationTimeout: 15 * time.Second,
	}, func(ctx context.Context, id int) error {
		body := append([]byte(fmt.Sprintf("Concurrent-%d-", id)), bytesOf('X', concurrentBodyRequestSize)...)
		resp, err := t.Client().Post(ctx, "/upload", "text/plain", body)
		if err != nil {
			if isConnectionDrop(err) {
				return nil
			}
			return err
		}
		if !acceptedOrLimit.Matches(resp.StatusCode) {
			return fmt.Errorf("got status %d, expected %s", resp.StatusCode, acceptedOrLimit)
		}
		return nil
	})
	require.GreaterOrEqual(t, agg.Successes, concurrentBodyMinHandled,
		"poor concurrent body size handling: %d/%d", agg.Successes, agg.Count)
}

const fastRejection = 2 * time.Second

func doBodySizePerformanceCheck(t *T) {
	startTime := time.Now()
	resp, err := t.PostWithin(10*time.Second, "/upload", "text/plain", bytesOf('P', megabyte))
	elapsed := time.Since(startTime)
	switch {
	case err != nil && isConnectionDrop(err) && elapsed < fastRejection:
		t.Debug("body size limit enforced quickly: %.3fs", elapsed.Seconds())
	case err != nil:
		t.Warn("body size performance issue after %.3fs: %s", elapsed.Seconds(), err)
	case elapsed < fastRejection:
		t.Debug("large body handled with %d in %.3fs", resp.StatusCode, elapsed.Seconds())
	default:
		t.Warn("body size validation slow: %.3fs", elapsed.Seconds())
	}
}
