package loadtest

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPClientConfig contains HTTP client configuration.
type HTTPClientConfig struct {
	// Timeout for HTTP requests
	Timeout time.Duration

	// MaxIdleConns controls the maximum number of idle connections
	MaxIdleConns int

	// MaxIdleConnsPerHost controls the maximum idle connections per host
	MaxIdleConnsPerHost int

	// IdleConnTimeout is how long idle connections are kept alive
	IdleConnTimeout time.Duration

	// DisableKeepAlives disables HTTP keep-alives
	DisableKeepAlives bool

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool

	// UseSharedClient makes all users share one connection pool.
	// When false every user owns its transport, so closing its idle
	// connections forces the next request onto a fresh connection.
	UseSharedClient bool
}

// DefaultHTTPClientConfig returns sensible defaults for load testing.
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		Timeout:             30 * time.Second,
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
		UseSharedClient:     false,
	}
}

// NewHTTPClient builds an *http.Client from the configuration.
func NewHTTPClient(cfg HTTPClientConfig) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		DisableKeepAlives:   cfg.DisableKeepAlives,
	}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for test targets
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}
}

// Response is the part of an HTTP response observers look at.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Text       string
	URL        string
}

// HTTPError is the exception attached to responses with status >= 400.
//
// The message starts with the status code so error tallies can parse it.
type HTTPError struct {
	StatusCode int
	Reason     string
	URL        string
}

func (e *HTTPError) Error() string {
	kind := "Client Error"
	if e.StatusCode >= 500 {
		kind = "Server Error"
	}
	return fmt.Sprintf("%d %s: %s for url: %s", e.StatusCode, kind, e.Reason, e.URL)
}

// Client issues requests against the environment host and reports each
// one to the request hook and the built-in statistics.
type Client struct {
	env     *Environment
	http    *http.Client
	context map[string]any
}

// NewClient creates a client bound to env. meta is attached to every
// request event as its Context.
func NewClient(env *Environment, httpClient *http.Client, meta map[string]any) *Client {
	return &Client{
		env:     env,
		http:    httpClient,
		context: meta,
	}
}

// Get issues a GET request for path, recorded under name.
func (c *Client) Get(ctx context.Context, path, name string) (*Response, error) {
	return c.Request(ctx, http.MethodGet, path, name)
}

// Request issues a request and fires the request hook.
//
// A transport error is returned as err with a nil response. An HTTP
// status >= 400 is not an error for the caller; it is reported to
// observers as the event's Exception. Requests aborted because ctx was
// cancelled are not reported, they belong to users being shut down.
func (c *Client) Request(ctx context.Context, method, path, name string) (*Response, error) {
	url := c.resolve(path)
	if name == "" {
		name = path
	}

	start := time.Now()
	ev := &RequestEvent{
		RequestType: method,
		Name:        name,
		Context:     c.context,
		StartTime:   start,
	}

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		ev.ResponseTime = time.Since(start)
		ev.Exception = fmt.Errorf("failed to build request: %w", err)
		c.report(ev)
		return nil, ev.Exception
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		ev.ResponseTime = time.Since(start)
		ev.Exception = err
		c.report(ev)
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	ev.ResponseTime = time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		ev.Exception = fmt.Errorf("failed to read response body: %w", err)
		c.report(ev)
		return nil, ev.Exception
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Status:     httpResp.Status,
		Header:     httpResp.Header,
		Text:       string(body),
		URL:        url,
	}
	ev.Response = resp
	ev.ResponseLength = int64(len(body))

	if resp.StatusCode >= 400 {
		ev.Exception = &HTTPError{
			StatusCode: resp.StatusCode,
			Reason:     http.StatusText(resp.StatusCode),
			URL:        url,
		}
	}

	c.report(ev)
	return resp, nil
}

// CloseIdleConnections drops pooled connections so the next request
// opens a new one.
func (c *Client) CloseIdleConnections() {
	c.http.CloseIdleConnections()
}

func (c *Client) report(ev *RequestEvent) {
	c.env.Stats.Record(ev.RequestType, ev.Name, ev.ResponseTime, ev.ResponseLength, ev.Exception)
	c.env.Events.Request.Fire(ev)
}

func (c *Client) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	host := strings.TrimRight(c.env.Host, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return host + path
}
