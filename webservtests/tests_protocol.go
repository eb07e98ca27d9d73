package webservtests

import (
	"fmt"
	"net/http"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var protocolChecks = []check{
	{"HTTP/1.1 protocol compliance", doProtocolComplianceCheck},
	{"Persistent connections", doPersistentConnectionsCheck},
	{"Content-Length handling", doContentLengthCheck},
}

const protocolReadTimeout = 3 * time.Second

func doProtocolComplianceCheck(t *T) {
	ex, err := t.Raw([]byte("GET / HTTP/1.1\r\nHost: localhost\r\n\r\n"), protocolReadTimeout)
	if err != nil {
		t.Warn("valid request failed: %s", err)
	} else if code, ok := rawStatus(ex.Response); !ok || code != http.StatusOK {
		require.Fail(t, fmt.Sprintf("valid request with Host header was rejected: %q", abbreviate(ex.Response)))
	}

	lenient := []struct {
		payload string
		warning string
	}{
		{"GET / HTTP/1.1\r\n\r\n", "missing Host header accepted (should be rejected with 400)"},
		{"get / HTTP/1.1\r\nHost: localhost\r\n\r\n", "lowercase method accepted (methods are case-sensitive)"},
		{"GET / HTTP/1.1\nHost: localhost\n\n", "LF-only line endings accepted (requests should use CRLF)"},
	}
	for _, c := range lenient {
		ex, err := t.Raw([]byte(c.payload), protocolReadTimeout)
		if err != nil {
			continue
		}
		if code, ok := rawStatus(ex.Response); ok && code == http.StatusOK {
			t.Warn("%s", c.warning)
		}
	}
}

const persistentRequests = 3

func doPersistentConnectionsCheck(t *T) {
	var statuses []int
	reused := 0
	for i := 0; i < persistentRequests; i++ {
		resp := t.RequireResponse(t.Get(fmt.Sprintf("/?conn_test=%d", i)))
		statuses = append(statuses, resp.StatusCode)
		if resp.ReusedConnection {
			reused++
		}
	}
	for _, s := range statuses {
		require.Equal(t, http.StatusOK, s, "persistent connection failed: %v", statuses)
	}
	if reused == 0 {
		t.Warn("server closed the connection after every request, keep-alive is not supported")
	}
}

func doContentLengthCheck(t *T) {
	data := []byte("test=data&value=123")
	resp := t.RequireResponse(t.Post("/upload", "application/x-www-form-urlencoded", data))
	assert.True(t, OneOf(http.StatusOK, http.StatusCreated, http.StatusMethodNotAllowed).Matches(resp.StatusCode),
		"Content-Length POST failed: %d", resp.StatusCode)
}
