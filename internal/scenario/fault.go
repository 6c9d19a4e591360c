package scenario

import (
	"context"
	"net/http"
	"time"

	"github.com/wesleyorama2/infraload/internal/config"
	"github.com/wesleyorama2/infraload/internal/loadtest"
)

// FaultOptions tunes the fault injector's timing.
type FaultOptions struct {
	// Poll is how often the injector checks whether spawning finished
	Poll time.Duration
}

// DefaultFaultOptions returns the timing used for real runs.
func DefaultFaultOptions() FaultOptions {
	return FaultOptions{Poll: 500 * time.Millisecond}
}

// FaultUser is a single user that waits for the full user count, then
// kills one backend (single mode) or tries to kill every backend (all
// mode), and idles until the run ends. Request errors are logged and
// never abort the run.
func FaultUser(cfg *config.Config, opts FaultOptions) *loadtest.UserClass {
	class := &loadtest.UserClass{
		Name: "FaultUser",
		Wait: loadtest.Constant(0),
	}
	if cfg.EnableFault {
		class.FixedCount = 1
	}

	inj := &injector{cfg: cfg, poll: opts.Poll}
	if inj.poll <= 0 {
		inj.poll = DefaultFaultOptions().Poll
	}
	class.Task = inj.run
	return class
}

type injector struct {
	cfg  *config.Config
	poll time.Duration
}

func (inj *injector) run(ctx context.Context, u *loadtest.VirtualUser) error {
	if !inj.waitForSpawn(ctx, u) {
		return nil
	}
	if !u.Sleep(ctx, inj.cfg.FaultStartDelay) {
		return nil
	}

	u.Log.Info().Str("mode", inj.cfg.FaultModeLabel()).Msgf("FAULT INJECTION STARTING... Mode: %s", inj.cfg.FaultModeLabel())

	switch inj.cfg.FaultMode {
	case config.FaultModeAll:
		inj.killAll(ctx, u)
	default:
		inj.killSingle(ctx, u)
	}

	// one injection per run
	<-ctx.Done()
	return nil
}

// waitForSpawn blocks until every target user is running.
func (inj *injector) waitForSpawn(ctx context.Context, u *loadtest.VirtualUser) bool {
	for {
		if r := u.Runner(); r != nil && r.UserCount() >= r.TargetUserCount() {
			return true
		}
		if !u.Sleep(ctx, inj.poll) {
			return false
		}
	}
}

func (inj *injector) killSingle(ctx context.Context, u *loadtest.VirtualUser) {
	resp, err := u.Client.Get(ctx, killPath, NameKillSingle)
	switch {
	case err != nil:
		if ctx.Err() == nil {
			u.Log.Warn().Err(err).Msg("/kill request error (single)")
		}
	case resp.StatusCode == http.StatusOK:
		u.Log.Info().Msg("Single instance terminated successfully.")
	default:
		u.Log.Warn().Int("status", resp.StatusCode).Msgf("Failed to terminate instance. Status: %d", resp.StatusCode)
	}
}

func (inj *injector) killAll(ctx context.Context, u *loadtest.VirtualUser) {
	n := inj.cfg.KillAllRequests
	u.Log.Info().
		Int("requestsPerPass", n).
		Bool("retryOnce", inj.cfg.KillAllRetryOnce).
		Msg("KILL ALL starting")

	sent1 := inj.killPass(ctx, u, n, NameKillAllPass1)

	u.Client.CloseIdleConnections()
	probeOK := false
	if resp, err := u.Client.Get(ctx, inj.cfg.ObservePath, NameKillAllProbe); err == nil && resp.StatusCode < 400 {
		probeOK = true
	}

	sent2 := 0
	if probeOK && inj.cfg.KillAllRetryOnce {
		sent2 = inj.killPass(ctx, u, n, NameKillAllPass2)
	}

	u.Log.Info().
		Int("pass1Sent", sent1).
		Int("pass2Sent", sent2).
		Bool("probeOk", probeOK).
		Msg("KILL ALL done")
}

// killPass sends n kill requests, each on a fresh connection so the
// balancer can route them to different backends. It returns how many
// got a response.
func (inj *injector) killPass(ctx context.Context, u *loadtest.VirtualUser, n int, name string) int {
	sent := 0
	for i := 0; i < n && ctx.Err() == nil; i++ {
		u.Client.CloseIdleConnections()
		if _, err := u.Client.Get(ctx, killPath, name); err == nil {
			sent++
		}
	}
	return sent
}
