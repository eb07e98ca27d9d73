package servicedef

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

const (
	DefaultHost    = "localhost"
	DefaultPort    = 8080
	DefaultAltPort = 8081
	DefaultTimeout = 10 * time.Second
)

// Target describes the server under test. It is read-only configuration shared by every
// check.
type Target struct {
	Host string
	Port int
	// AltPort is the second port the server is expected to listen on, for checks that
	// involve more than one server block. It is undefined if those checks should not
	// assume a second listener.
	AltPort ldvalue.OptionalInt
	// Timeout is the default per-check timeout, and also the default timeout for
	// individual requests made by checks.
	Timeout time.Duration
}

// ParseTarget builds a Target from a base URL such as "http://localhost:8080". A missing
// host or port falls back to the defaults. An altPort of zero or less leaves AltPort
// undefined.
func ParseTarget(baseURL string, altPort int, timeout time.Duration) (Target, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return Target{}, fmt.Errorf("invalid target URL %q: %w", baseURL, err)
	}
	if u.Scheme != "" && u.Scheme != "http" {
		return Target{}, fmt.Errorf("unsupported scheme %q in target URL (only http is supported)", u.Scheme)
	}
	t := Target{
		Host:    u.Hostname(),
		Port:    DefaultPort,
		Timeout: timeout,
	}
	if t.Host == "" {
		t.Host = DefaultHost
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return Target{}, fmt.Errorf("invalid port %q in target URL", p)
		}
		t.Port = port
	}
	if altPort > 0 {
		t.AltPort = ldvalue.NewOptionalInt(altPort)
	}
	if t.Timeout <= 0 {
		t.Timeout = DefaultTimeout
	}
	return t, nil
}

// Address returns the host:port of the primary listener.
func (t Target) Address() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// AltAddress returns the host:port of the alternate listener, if there is one.
func (t Target) AltAddress() (string, bool) {
	if !t.AltPort.IsDefined() {
		return "", false
	}
	return net.JoinHostPort(t.Host, strconv.Itoa(t.AltPort.IntValue())), true
}

func (t Target) BaseURL() string {
	return "http://" + t.Address()
}

// AltBaseURL returns the base URL of the alternate listener, if there is one.
func (t Target) AltBaseURL() (string, bool) {
	addr, ok := t.AltAddress()
	if !ok {
		return "", false
	}
	return "http://" + addr, true
}

// URL returns the absolute URL of a path on the primary listener. The path is used
// verbatim, so it may contain characters that a browser would have escaped.
func (t Target) URL(path string) string {
	return t.BaseURL() + path
}

func (t Target) String() string {
	return t.BaseURL()
}
