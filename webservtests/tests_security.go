package webservtests

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stretchr/testify/require"
)

var securityChecks = []check{
	{"Path traversal protection", doPathTraversalCheck},
	{"HTTP header injection protection", doHeaderInjectionCheck},
	{"Request smuggling protection", doRequestSmugglingCheck},
}

var traversalPaths = []string{
	"/../../../etc/passwd",
	"/browse/../../../etc/passwd",
	"/assets/../../../etc/passwd",
	"/../root/.bashrc",
	"/uploads/../../../etc/hosts",
}

// Strings that only appear in a response if a system file was served.
var systemFileMarkers = []string{"root:", "passwd", "shadow", "/bin/"}

func doPathTraversalCheck(t *T) {
	for _, path := range traversalPaths {
		resp := t.RequireResponse(t.Get(path))
		if resp.StatusCode != http.StatusOK {
			continue
		}
		content := strings.ToLower(string(resp.Body))
		for _, marker := range systemFileMarkers {
			if strings.Contains(content, marker) {
				require.Fail(t, fmt.Sprintf("path traversal attack succeeded: %s", path))
			}
		}
	}
}

const securityReadTimeout = 5 * time.Second

// The Go client refuses to send header values containing line breaks, so injection attempts
// are sent as raw bytes. Each value smuggles a bare LF followed by another header.
var injectionRequests = []string{
	"GET / HTTP/1.1\r\nHost: localhost\r\nX-Test: value\nSet-Cookie: malicious=true\r\n\r\n",
	"GET / HTTP/1.1\r\nHost: localhost\r\nUser-Agent: test\nX-Injected: header\r\n\r\n",
}

func doHeaderInjectionCheck(t *T) {
	for _, payload := range injectionRequests {
		ex, err := t.Raw([]byte(payload), securityReadTimeout)
		if err != nil {
			t.Debug("connection error accepted: %s", err)
			continue
		}
		code, ok := rawStatus(ex.Response)
		if !ok {
			t.Warn("unparseable response to header injection: %q", abbreviate(ex.Response))
			continue
		}
		if header, ok := rawHeader(ex.Response); ok {
			for _, cookie := range header.Values("Set-Cookie") {
				require.NotContains(t, cookie, "malicious=true", "injected header was reflected in the response")
			}
		}
		if !OneOf(http.StatusOK, http.StatusBadRequest).Matches(code) {
			t.Warn("unexpected response to header injection: %d", code)
		}
	}
}

const smugglingRequest = "POST /upload HTTP/1.1\r\n" +
	"Host: localhost\r\n" +
	"Content-Length: 13\r\n" +
	"Content-Length: 0\r\n" +
	"\r\n" +
	"malicious_data"

func doRequestSmugglingCheck(t *T) {
	ex, err := t.Raw([]byte(smugglingRequest), securityReadTimeout)
	if err != nil {
		t.Debug("connection error accepted: %s", err)
		return
	}
	if code, ok := rawStatus(ex.Response); ok && (code == http.StatusBadRequest || code >= 500) {
		t.Debug("conflicting Content-Length headers rejected with %d", code)
		return
	}
	t.Warn("request smuggling attempt may have succeeded: %q", abbreviate(ex.Response))
}
