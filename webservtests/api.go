package webservtests

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/launchdarkly/http-server-contract-tests/client"
	"github.com/launchdarkly/http-server-contract-tests/framework"
)

// DefaultRequestTimeout bounds each ordinary request a check makes, unless the check asks
// for a different timeout.
const DefaultRequestTimeout = 5 * time.Second

// DefaultRecovery is how long a check waits for the server to answer normally again after
// sending it something that may have disturbed it.
var DefaultRecovery = framework.RetryPolicy{Attempts: 4, Interval: 500 * time.Millisecond}

// Environment is everything the checks need to know about the server under test.
type Environment struct {
	Client *client.Client
	Policy framework.Policy
	// RequestTimeout overrides DefaultRequestTimeout if it is non-zero.
	RequestTimeout time.Duration
	// Warnings, if not nil, receives findings that are worth reporting but do not fail a check.
	Warnings framework.Logger
	// Recovery overrides DefaultRecovery if it has a non-zero number of attempts.
	Recovery framework.RetryPolicy
}

func (e *Environment) requestTimeout() time.Duration {
	if e.RequestTimeout > 0 {
		return e.RequestTimeout
	}
	return DefaultRequestTimeout
}

func (e *Environment) recovery() framework.RetryPolicy {
	if e.Recovery.Attempts > 0 {
		return e.Recovery
	}
	return DefaultRecovery
}

// T represents a single running check.
//
// It implements the same basic functionality as Go's testing.T, but in an environment that is
// outside of the Go test runner, so that check bodies can make assertions with the assert and
// require packages by passing the *T as if it were a *testing.T. A failed assertion in the
// require package ends the check immediately.
//
// T also provides helpers for talking to the server. Every request is bounded by a timeout
// and by the check's context, which is cancelled if the framework gives up on the check.
type T struct {
	ctx   context.Context
	name  string
	env   *Environment
	debug framework.Logger

	lock     sync.Mutex
	failed   bool
	failures []string
}

type failNowSignal struct{}

func newT(ctx context.Context, name string, env *Environment) *T {
	return &T{
		ctx:   ctx,
		name:  name,
		env:   env,
		debug: framework.DebugLogger(ctx),
	}
}

// Errorf is called by assertions to record a failure. It does not end the check.
func (t *T) Errorf(format string, args ...interface{}) {
	message := compactAssertionMessage(fmt.Sprintf(format, args...))
	t.debug.Printf("failure: %s", message)
	t.lock.Lock()
	t.failed = true
	t.failures = append(t.failures, message)
	t.lock.Unlock()
}

// FailNow ends the check immediately. The methods in the require package call FailNow.
//
// It must only be called from the goroutine running the check, not from probe operations.
func (t *T) FailNow() {
	t.lock.Lock()
	t.failed = true
	t.lock.Unlock()
	panic(failNowSignal{})
}

func (t *T) Failed() bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.failed
}

func (t *T) Name() string {
	return t.name
}

// Context returns the context of the running check.
func (t *T) Context() context.Context {
	return t.ctx
}

// Debug adds a line to the check's debug output, which is shown if the check fails or if
// debug output was requested for all checks.
func (t *T) Debug(format string, args ...interface{}) {
	t.debug.Printf(format, args...)
}

// Warn records a finding that does not fail the check.
func (t *T) Warn(format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	t.debug.Printf("WARN: %s", message)
	if t.env.Warnings != nil {
		t.env.Warnings.Printf("%s: %s", t.name, message)
	}
}

func (t *T) Policy() framework.Policy {
	return t.env.Policy
}

func (t *T) Client() *client.Client {
	return t.env.Client
}

// Request sends a request to a path on the server's primary listener, with the default
// request timeout.
func (t *T) Request(method, path string, body []byte, opts ...client.RequestOption) (*client.Response, error) {
	return t.RequestWithin(t.env.requestTimeout(), method, path, body, opts...)
}

// RequestWithin is like Request but with an explicit timeout.
func (t *T) RequestWithin(timeout time.Duration, method, path string, body []byte,
	opts ...client.RequestOption) (*client.Response, error) {
	return t.requestTo(timeout, method, t.env.Client.Target().URL(path), body, opts...)
}

func (t *T) requestTo(timeout time.Duration, method, url string, body []byte,
	opts ...client.RequestOption) (*client.Response, error) {
	ctx, cancel := context.WithTimeout(t.ctx, timeout)
	defer cancel()
	resp, err := t.env.Client.Do(ctx, method, url, body, opts...)
	if err != nil {
		t.Debug("%s %s: %s", method, url, err)
		return nil, err
	}
	t.Debug("%s %s: %s", method, url, resp)
	return resp, nil
}

func (t *T) Get(path string, opts ...client.RequestOption) (*client.Response, error) {
	return t.Request(http.MethodGet, path, nil, opts...)
}

func (t *T) Delete(path string, opts ...client.RequestOption) (*client.Response, error) {
	return t.Request(http.MethodDelete, path, nil, opts...)
}

func (t *T) Post(path, contentType string, body []byte, opts ...client.RequestOption) (*client.Response, error) {
	return t.PostWithin(t.env.requestTimeout(), path, contentType, body, opts...)
}

func (t *T) PostWithin(timeout time.Duration, path, contentType string, body []byte,
	opts ...client.RequestOption) (*client.Response, error) {
	opts = append([]client.RequestOption{client.WithHeader("Content-Type", contentType)}, opts...)
	return t.RequestWithin(timeout, http.MethodPost, path, body, opts...)
}

// Upload posts a multipart form with a single file field named "file".
func (t *T) Upload(timeout time.Duration, path, filename string, content []byte) (*client.Response, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err == nil {
		_, err = part.Write(content)
	}
	if err == nil {
		err = w.Close()
	}
	if err != nil {
		return nil, err
	}
	return t.PostWithin(timeout, path, w.FormDataContentType(), buf.Bytes())
}

// Raw writes bytes directly to the server's primary listener and returns the first data that
// comes back within readTimeout.
func (t *T) Raw(payload []byte, readTimeout time.Duration) (client.RawExchange, error) {
	ex, err := t.env.Client.RawFirst(t.ctx, payload, readTimeout)
	t.logRaw(payload, ex, err)
	return ex, err
}

// RawUntilClosed is like Raw but keeps reading until the server closes the connection or
// readTimeout passes.
func (t *T) RawUntilClosed(payload []byte, readTimeout time.Duration) (client.RawExchange, error) {
	ex, err := t.env.Client.Raw(t.ctx, payload, readTimeout)
	t.logRaw(payload, ex, err)
	return ex, err
}

func (t *T) logRaw(payload []byte, ex client.RawExchange, err error) {
	if err != nil {
		t.Debug("raw request %q: %s", abbreviate(payload), err)
		return
	}
	t.Debug("raw request %q: received %q (closed: %t)", abbreviate(payload), abbreviate(ex.Response), ex.Closed)
}

// RequireResponse fails the check immediately if a request returned an error. It is meant to
// wrap a request call directly, as in t.RequireResponse(t.Get("/")).
func (t *T) RequireResponse(resp *client.Response, err error) *client.Response {
	require.NoError(t, err, "request failed")
	return resp
}

// RequireStatus fails the check immediately if a response has an unacceptable status.
func (t *T) RequireStatus(resp *client.Response, expect Expect, description string) {
	if !expect.Matches(resp.StatusCode) {
		require.Fail(t, fmt.Sprintf("%s: got %d, expected %s", description, resp.StatusCode, expect))
	}
}

// RequireRecovered polls a path until it returns 200, and fails the check immediately if it
// never does within the environment's recovery policy.
func (t *T) RequireRecovered(path, description string) {
	err := framework.Retry(t.ctx, t.env.recovery(), func(_ context.Context, attempt int) error {
		resp, err := t.Get(path)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("got %d, expected 200", resp.StatusCode)
		}
		if attempt > 1 {
			t.Debug("%s: server answered normally again after %d attempts", description, attempt)
		}
		return nil
	})
	require.NoError(t, err, description)
}

// Probe runs a stress probe inside the check and logs every failed operation to the debug
// output.
func (t *T) Probe(config framework.ProbeConfig, op framework.ProbeFunc) framework.ProbeAggregate {
	agg, outcomes, err := framework.Probe(t.ctx, config, op)
	require.NoError(t, err)
	for _, o := range outcomes {
		if !o.Success {
			t.Debug("operation %d failed after %s: %s", o.OperationID, o.Latency, o.Err)
		}
	}
	t.Debug("probe: %s", agg)
	return agg
}

func (t *T) err() error {
	t.lock.Lock()
	defer t.lock.Unlock()
	if !t.failed {
		return nil
	}
	if len(t.failures) == 0 {
		return errors.New("check failed")
	}
	return errors.New(strings.Join(t.failures, "; "))
}

// run executes a check body against a new T and converts its failures into an error. Panics
// other than the one used by FailNow are passed through to the framework.
func (e *Environment) run(ctx context.Context, name string, action func(*T)) (err error) {
	t := newT(ctx, name, e)
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(failNowSignal); !ok {
				panic(r)
			}
		}
		err = t.err()
	}()
	action(t)
	return nil
}

// testify formats failures as a block of labeled fields, most of which are only useful in a
// real test run. Only the error and any extra messages are kept.
func compactAssertionMessage(message string) string {
	if !strings.Contains(message, "Error Trace:") {
		return strings.TrimSpace(message)
	}
	var (
		fields  []string
		capture bool
	)
	for _, line := range strings.Split(message, "\n") {
		trimmed := strings.TrimSpace(line)
		if label, value, ok := cutAssertionLabel(trimmed); ok {
			capture = label == "Error" || label == "Messages"
			if capture {
				fields = append(fields, value)
			}
			continue
		}
		if capture && trimmed != "" && len(fields) > 0 {
			fields[len(fields)-1] += " " + trimmed
		}
	}
	if len(fields) == 0 {
		return strings.TrimSpace(message)
	}
	return strings.Join(fields, ": ")
}

var assertionLabels = []string{"Error Trace", "Error", "Test", "Messages"}

func cutAssertionLabel(line string) (string, string, bool) {
	for _, label := range assertionLabels {
		if rest, ok := strings.CutPrefix(line, label+":"); ok {
			return label, strings.TrimSpace(rest), true
		}
	}
	return "", "", false
}

const abbreviateLength = 100

func abbreviate(data []byte) string {
	if len(data) <= abbreviateLength {
		return string(data)
	}
	return string(data[:abbreviateLength]) + "..."
}
