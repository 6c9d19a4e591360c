package tracker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wesleyorama2/infraload/internal/loadtest"
)

func TestIsFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		resp *loadtest.Response
		want bool
	}{
		{name: "ok", resp: &loadtest.Response{StatusCode: 200}, want: false},
		{name: "redirect", resp: &loadtest.Response{StatusCode: 302}, want: false},
		{name: "client error", resp: &loadtest.Response{StatusCode: 404}, want: true},
		{name: "server error", resp: &loadtest.Response{StatusCode: 503}, want: true},
		{name: "no response", want: true},
		{name: "error with response", err: errors.New("boom"), resp: &loadtest.Response{StatusCode: 200}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsFailure(tt.err, tt.resp))
		})
	}
}

func TestExtractServerID(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		want   string
		wantOK bool
	}{
		{name: "hostname with tag", body: "Hostname: ip-10-0-1-5<br>", want: "ip-10-0-1-5", wantOK: true},
		{name: "host label", body: "<p>Host: web-1</p>", want: "web-1", wantOK: true},
		{name: "case insensitive", body: "HOSTNAME:ip-10-0-2-7", want: "ip-10-0-2-7", wantOK: true},
		{name: "stops at whitespace", body: "Hostname: ip-1 uptime 3s", want: "ip-1", wantOK: true},
		{name: "first match wins", body: "Host: a<br>Hostname: b", want: "a", wantOK: true},
		{name: "empty capture", body: "Hostname: <br>", wantOK: false},
		{name: "no label", body: "hello world", wantOK: false},
		{name: "json hostname", body: `{"hostname":"ip-10-0-3-9","ok":true}`, wantOK: false},
		{name: "json host", body: `{"host":"web-2"}`, wantOK: false},
		{name: "empty body", body: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractServerID(&loadtest.Response{StatusCode: 200, Text: tt.body})
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := ExtractServerID(nil)
	assert.False(t, ok)
}
