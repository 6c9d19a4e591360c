package tracker

import (
	"bytes"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/infraload/internal/config"
	"github.com/wesleyorama2/infraload/internal/loadtest"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeRunner is a Controller whose state the test drives.
type fakeRunner struct {
	state atomic.Int32
	quits atomic.Int32
}

func newFakeRunner() *fakeRunner {
	r := &fakeRunner{}
	r.state.Store(int32(loadtest.StateRunning))
	return r
}

func (r *fakeRunner) State() loadtest.State {
	return loadtest.State(r.state.Load())
}

func (r *fakeRunner) UserCount() int { return 0 }

func (r *fakeRunner) TargetUserCount() int { return 0 }

func (r *fakeRunner) RunTime() time.Duration { return 0 }

func (r *fakeRunner) Quit() {
	r.quits.Add(1)
	r.state.Store(int32(loadtest.StateStopping))
}

// syncBuffer is a bytes.Buffer safe for the monitor goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.ALBURL = "alb.example.com"
	return cfg
}

func observe(ms float64, status int, body string) *loadtest.RequestEvent {
	ev := &loadtest.RequestEvent{
		RequestType:  "GET",
		Name:         ObserveName,
		ResponseTime: time.Duration(ms * float64(time.Millisecond)),
		Response:     &loadtest.Response{StatusCode: status, Text: body},
	}
	if status >= 400 {
		ev.Exception = &loadtest.HTTPError{StatusCode: status, Reason: "error", URL: "http://x/"}
	}
	return ev
}

func transportFailure() *loadtest.RequestEvent {
	return &loadtest.RequestEvent{
		RequestType: "GET",
		Name:        ObserveName,
		Exception:   errTransport,
	}
}

var errTransport = &transportError{}

type transportError struct{}

func (*transportError) Error() string { return "connection refused" }
