package webservtests

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launchdarkly/http-server-contract-tests/client"
)

var cgiChecks = []check{
	{"CGI basic execution", doCGIExecutionCheck},
	{"CGI environment variables", doCGIEnvironmentCheck},
	{"CGI POST data handling", doCGIPostCheck},
	{"CGI timeout handling", doCGITimeoutCheck},
}

// Servers are free to put scripts in either directory.
var cgiDirectories = []string{"/scripts/", "/cgi-bin/"}

const cgiRequestTimeout = 10 * time.Second

// requestScript tries each CGI directory in turn until one of them does not return 404.
func requestScript(t *T, timeout time.Duration, method, script string, body []byte,
	opts ...client.RequestOption) (*client.Response, error) {
	var (
		resp *client.Response
		err  error
	)
	for _, dir := range cgiDirectories {
		resp, err = t.RequestWithin(timeout, method, dir+script, body, opts...)
		if err != nil || resp.StatusCode != http.StatusNotFound {
			return resp, err
		}
	}
	return resp, err
}

func doCGIExecutionCheck(t *T) {
	resp := t.RequireResponse(requestScript(t, cgiRequestTimeout, http.MethodGet, "test.py", nil))
	require.NotEqual(t, http.StatusNotFound, resp.StatusCode, "CGI not implemented or scripts not found")
	t.RequireStatus(resp, Status(http.StatusOK), "CGI execution")
	assert.Contains(t, string(resp.Body), "CGI Test Script", "CGI output incorrect")
}

var requiredCGIVariables = []string{"REQUEST_METHOD", "SERVER_NAME", "QUERY_STRING"}

func doCGIEnvironmentCheck(t *T) {
	resp := t.RequireResponse(requestScript(t, cgiRequestTimeout, http.MethodGet, "env.py?test=123", nil))
	if resp.StatusCode != http.StatusOK {
		t.Debug("environment script returned %d", resp.StatusCode)
		return
	}
	var missing []string
	for _, v := range requiredCGIVariables {
		if !strings.Contains(string(resp.Body), v) {
			missing = append(missing, v)
		}
	}
	assert.Empty(t, missing, "missing CGI environment variables")
}

func doCGIPostCheck(t *T) {
	form := url.Values{"name": {"test"}, "value": {"cgi_post_test"}}.Encode()
	resp := t.RequireResponse(requestScript(t, cgiRequestTimeout, http.MethodPost, "upload_test.py", []byte(form),
		client.WithHeader("Content-Type", "application/x-www-form-urlencoded")))
	if resp.StatusCode == http.StatusOK {
		assert.Contains(t, string(resp.Body), "POST", "CGI POST data not processed correctly")
	}
}

const slowScriptTimeout = 8 * time.Second

func doCGITimeoutCheck(t *T) {
	resp, err := requestScript(t, slowScriptTimeout, http.MethodGet, "slow.py", nil)
	switch {
	case err != nil:
		t.Debug("slow script did not complete: %s", err)
	case resp.StatusCode == http.StatusOK && strings.Contains(string(resp.Body), "Done!"):
		t.Debug("slow script completed")
	default:
		t.Debug("slow script returned %d", resp.StatusCode)
	}

	// a slow script may time out, but it must not block the rest of the server
	t.RequireRecovered("/", "request after slow script")
}
