package webservtests

import (
	"net/http"
	"strings"
	"time"
)

var edgeCaseChecks = []check{
	{"Empty requests", doEmptyRequestsCheck},
	{"Very long URLs", doLongURLCheck},
	{"Special characters in URLs", doSpecialCharactersCheck},
	{"Zero-byte file upload", doZeroByteUploadCheck},
}

var incompleteRequests = []string{
	"",
	"\r\n\r\n",
	"GET",
	"GET /",
}

const incompleteReadTimeout = 2 * time.Second

func doEmptyRequestsCheck(t *T) {
	// any reaction is fine, including none; the server just has to survive
	for _, payload := range incompleteRequests {
		if _, err := t.RawUntilClosed([]byte(payload), incompleteReadTimeout); err != nil {
			t.Debug("no response to %q: %s", payload, err)
		}
	}
	t.RequireRecovered("/", "request after incomplete requests")
}

func doLongURLCheck(t *T) {
	resp, err := t.Get("/browse/" + strings.Repeat("a", 8000))
	if err != nil {
		t.Debug("long URL: %s", err)
		return
	}
	if !OneOf(http.StatusRequestURITooLong, http.StatusBadRequest, http.StatusNotFound).Matches(resp.StatusCode) {
		t.Warn("long URL got unexpected status: %d", resp.StatusCode)
	}
}

var specialURLs = []string{
	"/browse/file%20with%20spaces.txt",
	"/browse/file%21%40%23%24.txt",
	"/browse/file with spaces.txt",
	"/browse/файл.txt",
}

func doSpecialCharactersCheck(t *T) {
	reasonable := OneOf(http.StatusOK, http.StatusNotFound, http.StatusBadRequest)
	for _, path := range specialURLs {
		resp, err := t.Get(path)
		switch {
		case err != nil:
			t.Debug("special URL %s: %s", path, err)
		case !reasonable.Matches(resp.StatusCode):
			t.Warn("special URL %s: %d", path, resp.StatusCode)
		}
	}
}

func doZeroByteUploadCheck(t *T) {
	resp := t.RequireResponse(t.Upload(t.env.requestTimeout(), "/upload", "empty.txt", nil))
	t.RequireStatus(resp, OneOf(http.StatusOK, http.StatusCreated, http.StatusBadRequest), "zero-byte upload")
}
