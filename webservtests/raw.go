package webservtests

import (
	"bufio"
	"bytes"
	"net/http"
	"strconv"
	"strings"
)

// rawStatus extracts the status code from the first line of a raw response.
func rawStatus(data []byte) (int, bool) {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	fields := strings.Fields(string(line))
	if len(fields) < 2 || !strings.HasPrefix(fields[0], "HTTP/") {
		return 0, false
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil || code < 100 || code > 999 {
		return 0, false
	}
	return code, true
}

// rawHeader parses the header block of a raw response. The body, which may be incomplete,
// is ignored.
func rawHeader(data []byte) (http.Header, bool) {
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(data)), nil)
	if err != nil {
		return nil, false
	}
	_ = resp.Body.Close()
	return resp.Header, true
}
