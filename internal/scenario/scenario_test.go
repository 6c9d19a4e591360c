package scenario

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/infraload/internal/config"
	"github.com/wesleyorama2/infraload/internal/loadtest"
	"github.com/wesleyorama2/infraload/internal/tracker"
)

type controller struct {
	users  atomic.Int32
	target atomic.Int32
}

func (c *controller) State() loadtest.State {
	return loadtest.StateRunning
}

func (c *controller) Quit() {}

func (c *controller) UserCount() int {
	return int(c.users.Load())
}

func (c *controller) TargetUserCount() int {
	return int(c.target.Load())
}

func (c *controller) RunTime() time.Duration {
	return 0
}

type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// fixture is a target server plus an environment recording request
// names in order.
type fixture struct {
	env   *loadtest.Environment
	ctrl  *controller
	logs  *logBuffer
	mu    sync.Mutex
	names []string

	probeStatus atomic.Int32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{ctrl: &controller{}, logs: &logBuffer{}}
	f.probeStatus.Store(http.StatusOK)
	f.ctrl.users.Store(1)
	f.ctrl.target.Store(1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/kill":
			w.WriteHeader(http.StatusOK)
		case "/work":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(int(f.probeStatus.Load()))
			_, _ = w.Write([]byte("Hostname: ip-1<br>"))
		}
	}))
	t.Cleanup(srv.Close)

	f.env = loadtest.NewEnvironment(srv.URL)
	f.env.SetRunner(f.ctrl)
	f.env.Events.Request.Add(func(ev *loadtest.RequestEvent) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.names = append(f.names, ev.Name)
	})
	return f
}

func (f *fixture) user(class *loadtest.UserClass) *loadtest.VirtualUser {
	return &loadtest.VirtualUser{
		ID:     1,
		Class:  class,
		Client: loadtest.NewClient(f.env, loadtest.NewHTTPClient(loadtest.DefaultHTTPClientConfig()), nil),
		Env:    f.env,
		Log:    zerolog.New(f.logs),
	}
}

func (f *fixture) requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.names...)
}

func faultConfig(mode string) *config.Config {
	cfg := config.Default()
	cfg.ALBURL = "alb"
	cfg.EnableFault = true
	cfg.FaultMode = mode
	cfg.FaultStartDelay = 0
	cfg.KillAllRequests = 3
	return cfg
}

// runFault runs the fault task until logs contains marker, then stops it.
func runFault(t *testing.T, f *fixture, cfg *config.Config, marker string) {
	t.Helper()
	class := FaultUser(cfg, FaultOptions{Poll: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- class.Task(ctx, f.user(class)) }()

	require.Eventually(t, func() bool { return strings.Contains(f.logs.String(), marker) }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("fault task did not return after cancel")
	}
}

func TestClasses_Weights(t *testing.T) {
	cfg := config.Default()
	classes := Classes(cfg, DefaultFaultOptions())
	require.Len(t, classes, 3)

	assert.Equal(t, 8, classes[0].Weight)
	assert.Equal(t, 0, classes[1].Weight)
	assert.Equal(t, 0, classes[2].Weight)
	assert.Equal(t, 0, classes[2].FixedCount)

	cfg.EnableScaling = true
	cfg.EnableFault = true
	classes = Classes(cfg, DefaultFaultOptions())
	assert.Equal(t, 2, classes[1].Weight)
	assert.Equal(t, 1, classes[2].FixedCount)

	counts := loadtest.Distribute(classes, 11)
	assert.Equal(t, 1, counts[classes[2]])
	assert.Equal(t, 8, counts[classes[0]])
	assert.Equal(t, 2, counts[classes[1]])
}

func TestWorkPath(t *testing.T) {
	assert.Equal(t, "/work?sec=5", WorkPath(5))
	assert.Equal(t, "/work?sec=0.5", WorkPath(0.5))
	assert.Equal(t, "/work", WorkPath(0))
}

func TestObserveUser_Task(t *testing.T) {
	f := newFixture(t)
	cfg := config.Default()
	class := ObserveUser(cfg)

	require.NoError(t, class.Task(context.Background(), f.user(class)))
	assert.Equal(t, []string{tracker.ObserveName}, f.requests())

	d := class.Wait()
	assert.GreaterOrEqual(t, d, cfg.ObsWaitMin)
	assert.LessOrEqual(t, d, cfg.ObsWaitMax)
}

func TestScalingUser_Task(t *testing.T) {
	f := newFixture(t)
	class := ScalingUser(config.Default())

	require.NoError(t, class.Task(context.Background(), f.user(class)))
	assert.Equal(t, []string{NameWork}, f.requests())
	assert.Equal(t, 5*time.Second, class.Wait())
}

func TestFaultUser_Single(t *testing.T) {
	f := newFixture(t)
	runFault(t, f, faultConfig(config.FaultModeSingle), "Single instance terminated successfully.")

	assert.Equal(t, []string{NameKillSingle}, f.requests())
	assert.Contains(t, f.logs.String(), "FAULT INJECTION STARTING... Mode: SINGLE")
}

func TestFaultUser_KillAllWithRetry(t *testing.T) {
	f := newFixture(t)
	runFault(t, f, faultConfig(config.FaultModeAll), "KILL ALL done")

	assert.Equal(t, []string{
		NameKillAllPass1, NameKillAllPass1, NameKillAllPass1,
		NameKillAllProbe,
		NameKillAllPass2, NameKillAllPass2, NameKillAllPass2,
	}, f.requests())
	assert.Contains(t, f.logs.String(), `"pass2Sent":3`)
	assert.Contains(t, f.logs.String(), `"probeOk":true`)
}

func TestFaultUser_KillAllProbeFails(t *testing.T) {
	f := newFixture(t)
	f.probeStatus.Store(http.StatusBadGateway)
	runFault(t, f, faultConfig(config.FaultModeAll), "KILL ALL done")

	assert.Equal(t, []string{NameKillAllPass1, NameKillAllPass1, NameKillAllPass1, NameKillAllProbe}, f.requests())
	assert.Contains(t, f.logs.String(), `"probeOk":false`)
}

func TestFaultUser_KillAllNoRetry(t *testing.T) {
	f := newFixture(t)
	cfg := faultConfig(config.FaultModeAll)
	cfg.KillAllRetryOnce = false
	runFault(t, f, cfg, "KILL ALL done")

	assert.Len(t, f.requests(), 4)
}

func TestFaultUser_WaitsForFullSpawn(t *testing.T) {
	f := newFixture(t)
	f.ctrl.target.Store(5)

	class := FaultUser(faultConfig(config.FaultModeSingle), FaultOptions{Poll: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = class.Task(ctx, f.user(class)) }()

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, f.requests())

	f.ctrl.users.Store(5)
	assert.Eventually(t, func() bool { return len(f.requests()) == 1 }, 3*time.Second, 10*time.Millisecond)
}

func TestFaultUser_CancelWhileWaiting(t *testing.T) {
	f := newFixture(t)
	f.ctrl.target.Store(5)

	class := FaultUser(faultConfig(config.FaultModeSingle), FaultOptions{Poll: 10 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	assert.NoError(t, class.Task(ctx, f.user(class)))
	assert.Empty(t, f.requests())
}
