package client

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/launchdarkly/go-test-helpers/v2/httphelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launchdarkly/http-server-contract-tests/servicedef"
)

func targetFor(t *testing.T, serverURL string) servicedef.Target {
	target, err := servicedef.ParseTarget(serverURL, 0, 2*time.Second)
	require.NoError(t, err)
	return target
}

func TestGetReadsWholeResponse(t *testing.T) {
	headers := make(http.Header)
	headers.Set("Content-Type", "text/html")
	handler := httphelpers.HandlerWithResponse(200, headers, []byte("<html>hi</html>"))
	httphelpers.WithServer(handler, func(server *httptest.Server) {
		c := New(targetFor(t, server.URL), nil)
		resp, err := c.Get(context.Background(), "/")
		require.NoError(t, err)

		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, "text/html", resp.Header.Get("Content-Type"))
		assert.Equal(t, "<html>hi</html>", string(resp.Body))
	})
}

func TestRequestOptionsAreApplied(t *testing.T) {
	handler, requestsCh := httphelpers.RecordingHandler(httphelpers.HandlerWithStatus(201))
	httphelpers.WithServer(handler, func(server *httptest.Server) {
		c := New(targetFor(t, server.URL), nil)
		resp, err := c.Post(context.Background(), "/upload", "text/plain", []byte("hello"),
			WithHeader("Host", "example.com"), WithHeader("X-Test", "1"))
		require.NoError(t, err)
		assert.Equal(t, 201, resp.StatusCode)

		r := <-requestsCh
		assert.Equal(t, "POST", r.Request.Method)
		assert.Equal(t, "/upload", r.Request.URL.Path)
		assert.Equal(t, "example.com", r.Request.Host)
		assert.Equal(t, "1", r.Request.Header.Get("X-Test"))
		assert.Equal(t, "text/plain", r.Request.Header.Get("Content-Type"))
		assert.Equal(t, "hello", string(r.Body))
	})
}

func TestRedirectsAreNotFollowed(t *testing.T) {
	headers := make(http.Header)
	headers.Set("Location", "/elsewhere")
	httphelpers.WithServer(httphelpers.HandlerWithResponse(301, headers, nil), func(server *httptest.Server) {
		c := New(targetFor(t, server.URL), nil)
		resp, err := c.Get(context.Background(), "/")
		require.NoError(t, err)
		assert.Equal(t, 301, resp.StatusCode)
	})
}

func TestKeepAliveConnectionIsReused(t *testing.T) {
	httphelpers.WithServer(httphelpers.HandlerWithStatus(200), func(server *httptest.Server) {
		c := New(targetFor(t, server.URL), nil)
		first, err := c.Get(context.Background(), "/")
		require.NoError(t, err)
		second, err := c.Get(context.Background(), "/")
		require.NoError(t, err)

		assert.False(t, first.ReusedConnection)
		assert.True(t, second.ReusedConnection)
	})
}

func TestReachable(t *testing.T) {
	httphelpers.WithServer(httphelpers.HandlerWithStatus(404), func(server *httptest.Server) {
		c := New(targetFor(t, server.URL), nil)
		assert.NoError(t, c.Reachable(context.Background()))
	})

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	c := New(targetFor(t, "http://"+addr), nil)
	assert.Error(t, c.Reachable(context.Background()))
}

func startRawServer(t *testing.T, handle func(net.Conn)) servicedef.Target {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				handle(conn)
			}()
		}
	}()
	host, port, _ := net.SplitHostPort(listener.Addr().String())
	p, _ := strconv.Atoi(port)
	return servicedef.Target{Host: host, Port: p, Timeout: time.Second}
}

func TestRawReadsUntilServerCloses(t *testing.T) {
	target := startRawServer(t, func(conn net.Conn) {
		line, _ := bufio.NewReader(conn).ReadString('\n')
		_, _ = conn.Write([]byte("HTTP/1.1 400 Bad Request\r\nContent-Length: 0\r\n\r\n"))
		_ = line
	})
	c := New(target, nil)

	ex, err := c.Raw(context.Background(), []byte("GET\r\n\r\n"), time.Second)
	require.NoError(t, err)
	assert.True(t, ex.Closed)
	assert.Equal(t, "HTTP/1.1 400 Bad Request\r\nContent-Length: 0\r\n\r\n", string(ex.Response))
}

func TestRawTimesOutWithoutResponse(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	target := startRawServer(t, func(conn net.Conn) { <-release })
	c := New(target, nil)

	ex, err := c.Raw(context.Background(), []byte("GET / HTTP/1.1\r\n"), 100*time.Millisecond)
	assert.Error(t, err)
	assert.Empty(t, ex.Response)
	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())
}

func TestRawReturnsPartialResponseOnTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	target := startRawServer(t, func(conn net.Conn) {
		_, _ = conn.Write([]byte("HTTP/1.1 200 OK\r\n"))
		<-release
	})
	c := New(target, nil)

	ex, err := c.Raw(context.Background(), []byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n"), 100*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ex.Closed)
	assert.Equal(t, "HTTP/1.1 200 OK\r\n", string(ex.Response))
}

func TestParseTargetFromTestServerURL(t *testing.T) {
	httphelpers.WithServer(httphelpers.HandlerWithStatus(200), func(server *httptest.Server) {
		u, err := url.Parse(server.URL)
		require.NoError(t, err)
		target := targetFor(t, server.URL)
		assert.Equal(t, u.Host, target.Address())
	})
}

func TestRawFirstReturnsAfterFirstRead(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	target := startRawServer(t, func(conn net.Conn) {
		_, _ = conn.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"))
		<-release
	})
	c := New(target, nil)

	ex, err := c.RawFirst(context.Background(), []byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n"), 5*time.Second)
	require.NoError(t, err)
	assert.False(t, ex.Closed)
	assert.Equal(t, "HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n", string(ex.Response))
	assert.Less(t, ex.Elapsed, 5*time.Second)
}
