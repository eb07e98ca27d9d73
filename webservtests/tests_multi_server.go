package webservtests

import (
	"net/http"

	"github.com/launchdarkly/http-server-contract-tests/client"
)

var multiServerChecks = []check{
	{"Multiple server blocks", doAlternatePortCheck},
	{"Virtual hosts", doVirtualHostsCheck},
}

func doAlternatePortCheck(t *T) {
	altURL, ok := t.Client().Target().AltBaseURL()
	if !ok {
		t.Debug("no alternate port configured")
		return
	}
	resp, err := t.requestTo(t.env.requestTimeout(), http.MethodGet, altURL+"/", nil)
	switch {
	case err != nil:
		// a second server is optional
		t.Debug("second server not running: %s", err)
	case resp.StatusCode == http.StatusOK:
		t.Debug("multiple server blocks working")
	default:
		t.Debug("second server response: %d", resp.StatusCode)
	}
}

var virtualHosts = []string{"localhost", "webserv.test", "example.com"}

func doVirtualHostsCheck(t *T) {
	for _, host := range virtualHosts {
		resp, err := t.Get("/", client.WithHeader("Host", host))
		switch {
		case err != nil:
			t.Debug("virtual host %s: %s", host, err)
		case !OneOf(http.StatusOK, http.StatusNotFound).Matches(resp.StatusCode):
			t.Warn("virtual host %s: %d", host, resp.StatusCode)
		}
	}
}
