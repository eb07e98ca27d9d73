package client

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"time"
)

const rawReadBufferSize = 4096

// RawExchange is what came back from a raw request. Closed is true if the server closed the
// connection before the read deadline.
type RawExchange struct {
	Response []byte
	Closed   bool
	Elapsed  time.Duration
}

// Raw opens a TCP connection to the target's primary listener, writes payload exactly as
// given, and reads whatever the server sends back until it closes the connection or until
// readTimeout passes. Running out of time is not an error if any bytes were received.
func (c *Client) Raw(ctx context.Context, payload []byte, readTimeout time.Duration) (RawExchange, error) {
	return c.RawTo(ctx, c.target.Address(), payload, readTimeout)
}

// RawFirst is like Raw but returns as soon as the first bytes of a response arrive, the way a
// single read from a socket would.
func (c *Client) RawFirst(ctx context.Context, payload []byte, readTimeout time.Duration) (RawExchange, error) {
	return c.exchange(ctx, c.target.Address(), payload, readTimeout, true)
}

// RawTo is like Raw but connects to an arbitrary address.
func (c *Client) RawTo(ctx context.Context, address string, payload []byte, readTimeout time.Duration) (RawExchange, error) {
	return c.exchange(ctx, address, payload, readTimeout, false)
}

func (c *Client) exchange(ctx context.Context, address string, payload []byte, readTimeout time.Duration,
	firstOnly bool) (RawExchange, error) {
	var ex RawExchange
	startTime := time.Now()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return ex, err
	}
	defer conn.Close()

	deadline := time.Now().Add(readTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return ex, err
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	if len(payload) > 0 {
		if _, err := conn.Write(payload); err != nil {
			return ex, err
		}
	}
	c.logger.Printf("Sent %d raw bytes to %s", len(payload), address)

	buf := make([]byte, rawReadBufferSize)
	for {
		n, err := conn.Read(buf)
		ex.Response = append(ex.Response, buf[:n]...)
		if err == nil {
			if firstOnly && n > 0 {
				ex.Elapsed = time.Since(startTime)
				return ex, nil
			}
			continue
		}
		ex.Elapsed = time.Since(startTime)
		switch {
		case errors.Is(err, io.EOF), isConnectionReset(err):
			ex.Closed = true
			return ex, nil
		case errors.Is(err, os.ErrDeadlineExceeded):
			if ctx.Err() != nil {
				return ex, ctx.Err()
			}
			if len(ex.Response) > 0 {
				return ex, nil
			}
			return ex, err
		default:
			return ex, err
		}
	}
}

func isConnectionReset(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "read" && !opErr.Timeout()
}
