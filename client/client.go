// Package client provides the two ways checks talk to the server under test: ordinary HTTP
// requests, and raw byte streams for requests that no well-behaved HTTP client would send.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/http/httptrace"
	"sync/atomic"
	"time"

	"github.com/launchdarkly/http-server-contract-tests/framework"
	"github.com/launchdarkly/http-server-contract-tests/servicedef"
)

// ReachabilityTimeout bounds each individual reachability request.
const ReachabilityTimeout = 2 * time.Second

const maxIdleConnsPerHost = 64

// Client sends requests to the server under test. It is safe for concurrent use.
type Client struct {
	target servicedef.Target
	http   *http.Client
	logger framework.Logger
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Elapsed    time.Duration
	// ReusedConnection is true if the request was sent on an existing keep-alive connection.
	ReusedConnection bool
}

func (r *Response) String() string {
	return fmt.Sprintf("HTTP %d (%d bytes in %s)", r.StatusCode, len(r.Body), r.Elapsed)
}

// RequestOption modifies an outgoing request.
type RequestOption func(*http.Request)

// WithHeader sets a request header. Setting "Host" changes the Host the request is sent
// with, not the address it is sent to.
func WithHeader(name, value string) RequestOption {
	return func(req *http.Request) {
		if http.CanonicalHeaderKey(name) == "Host" {
			req.Host = value
			return
		}
		req.Header.Set(name, value)
	}
}

// WithContentLength overrides the Content-Length computed from the body.
func WithContentLength(n int64) RequestOption {
	return func(req *http.Request) {
		req.ContentLength = n
	}
}

// WithChunkedEncoding forces a chunked request body.
func WithChunkedEncoding() RequestOption {
	return func(req *http.Request) {
		req.ContentLength = -1
		req.TransferEncoding = []string{"chunked"}
	}
}

func New(target servicedef.Target, logger framework.Logger) *Client {
	if logger == nil {
		logger = framework.NullLogger()
	}
	return &Client{
		target: target,
		http: &http.Client{
			Transport: &http.Transport{
				Proxy:               nil,
				MaxIdleConnsPerHost: maxIdleConnsPerHost,
				IdleConnTimeout:     30 * time.Second,
			},
			// redirects are part of what is being checked, so they are never followed
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger,
	}
}

func (c *Client) Target() servicedef.Target {
	return c.target
}

// Get requests a path on the target's primary listener.
func (c *Client) Get(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodGet, c.target.URL(path), nil, opts...)
}

// Post sends a body to a path on the target's primary listener.
func (c *Client) Post(ctx context.Context, path string, contentType string, body []byte, opts ...RequestOption) (*Response, error) {
	opts = append([]RequestOption{WithHeader("Content-Type", contentType)}, opts...)
	return c.Do(ctx, http.MethodPost, c.target.URL(path), body, opts...)
}

// Do sends a request to an absolute URL and reads the whole response. If ctx has no
// deadline, the target's timeout is applied.
func (c *Client) Do(ctx context.Context, method, url string, body []byte, opts ...RequestOption) (*Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	return c.DoStream(ctx, method, url, bodyReader, opts...)
}

// DoStream is like Do but takes the body as a reader, so that large bodies do not need to
// be held in memory.
func (c *Client) DoStream(ctx context.Context, method, url string, body io.Reader, opts ...RequestOption) (*Response, error) {
	if _, ok := ctx.Deadline(); !ok && c.target.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.target.Timeout)
		defer cancel()
	}

	var reused int32
	trace := &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			if info.Reused {
				atomic.StoreInt32(&reused, 1)
			}
		},
	}
	req, err := http.NewRequestWithContext(httptrace.WithClientTrace(ctx, trace), method, url, body)
	if err != nil {
		return nil, err
	}
	for _, o := range opts {
		o(req)
	}

	startTime := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Printf("%s %s failed: %s", method, url, err)
		return nil, err
	}
	defer resp.Body.Close()
	data, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body from %s %s: %w", method, url, err)
	}
	r := &Response{
		StatusCode:       resp.StatusCode,
		Header:           resp.Header,
		Body:             data,
		Elapsed:          time.Since(startTime),
		ReusedConnection: atomic.LoadInt32(&reused) == 1,
	}
	c.logger.Printf("%s %s: %s", method, url, r)
	return r, nil
}

// Reachable returns nil if the target answers an HTTP request with any status at all.
func (c *Client) Reachable(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, ReachabilityTimeout)
	defer cancel()
	resp, err := c.Get(ctx, "/")
	if err != nil {
		return err
	}
	c.logger.Printf("Server is responding (%d)", resp.StatusCode)
	return nil
}

// CloseIdleConnections closes any keep-alive connections that are not in use.
func (c *Client) CloseIdleConnections() {
	c.http.CloseIdleConnections()
}
