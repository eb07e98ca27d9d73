package webservtests

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"syscall"

	"github.com/launchdarkly/http-server-contract-tests/client"
)

// getExpecting is a probe operation body: it fails unless the response status matches.
func getExpecting(ctx context.Context, c *client.Client, path string, expect Expect) error {
	resp, err := c.Get(ctx, path)
	if err != nil {
		return err
	}
	if !expect.Matches(resp.StatusCode) {
		return fmt.Errorf("got status %d, expected %s", resp.StatusCode, expect)
	}
	return nil
}

// isConnectionDrop returns true if a request failed because the server closed or reset the
// connection, which is how many servers enforce a body size limit.
func isConnectionDrop(err error) bool {
	switch {
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return true
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "connection reset") || strings.Contains(message, "broken pipe") ||
		strings.Contains(message, "server closed")
}

func bytesOf(b byte, n int) []byte {
	return bytes.Repeat([]byte{b}, n)
}
