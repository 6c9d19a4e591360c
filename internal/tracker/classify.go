package tracker

import (
	"regexp"
	"strings"

	"github.com/wesleyorama2/infraload/internal/loadtest"
)

// IsFailure reports whether a request attempt failed: an error was
// raised, no response arrived, or the status code is 400 or above.
func IsFailure(err error, resp *loadtest.Response) bool {
	if err != nil || resp == nil {
		return true
	}
	return resp.StatusCode >= 400
}

// serverIDPattern matches "Host: x" or "Hostname: x" up to a tag, a
// space or the end of the body.
var serverIDPattern = regexp.MustCompile(`(?i)(?:Host|Hostname)\s*:\s*(.*?)(?:<|\s|$)`)

// ExtractServerID returns the backend identity reported in a response body.
func ExtractServerID(resp *loadtest.Response) (string, bool) {
	if resp == nil || resp.Text == "" {
		return "", false
	}
	m := serverIDPattern.FindStringSubmatch(resp.Text)
	if m == nil {
		return "", false
	}
	id := strings.TrimSpace(m[1])
	return id, id != ""
}
