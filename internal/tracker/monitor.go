package tracker

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/wesleyorama2/infraload/internal/loadtest"
	"github.com/wesleyorama2/infraload/internal/loadtest/shape"
	"github.com/wesleyorama2/infraload/internal/report"
)

const (
	// monitorPoll bounds every monitor sleep so a stopping run is
	// noticed quickly.
	monitorPoll = 500 * time.Millisecond

	// runnerRetry is the pause while no runner is attached yet.
	runnerRetry = time.Second
)

func (t *Tracker) startMonitor(env *loadtest.Environment) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	t.monitorMu.Lock()
	t.monitorCancel = cancel
	t.monitorDone = done
	t.monitorMu.Unlock()

	go func() {
		defer close(done)
		t.monitor(ctx, env)
	}()
}

// stopMonitor cancels the monitor and waits for it to exit. It is a
// no-op when no monitor runs.
func (t *Tracker) stopMonitor() {
	t.monitorMu.Lock()
	cancel, done := t.monitorCancel, t.monitorDone
	t.monitorCancel, t.monitorDone = nil, nil
	t.monitorMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// monitor evaluates every finished step and stops the run when a
// step's p95 exceeds the SLA.
func (t *Tracker) monitor(ctx context.Context, env *loadtest.Environment) {
	for {
		runner := env.Runner()
		if runner == nil {
			if !sleepCtx(ctx, runnerRetry) {
				return
			}
			continue
		}
		if runner.State().Ended() {
			return
		}

		if t.flushSteps(runner, t.now()) {
			return
		}

		next := t.nextBoundary()
		for {
			if ctx.Err() != nil || runner.State().Ended() {
				return
			}
			remaining := next.Sub(t.now())
			if remaining <= 0 {
				break
			}
			if !sleepCtx(ctx, min(monitorPoll, remaining)) {
				return
			}
		}
	}
}

// nextBoundary is when the step being collected ends.
func (t *Tracker) nextBoundary() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startTime.Add(time.Duration(t.window.step) * t.cfg.StepTime)
}

// flushSteps reports every step that ended before now. It returns true
// when a step breached the SLA and the runner was asked to quit.
func (t *Tracker) flushSteps(runner loadtest.Controller, now time.Time) bool {
	for {
		t.mu.Lock()
		current := shape.StepIndex(now.Sub(t.startTime), t.cfg.StepTime)
		if current <= t.window.step {
			t.mu.Unlock()
			return false
		}
		snap := t.window.drain()
		t.mu.Unlock()

		if t.evaluateStep(runner, snap, now) {
			return true
		}
	}
}

// evaluateStep prints the step result and enforces the SLA.
func (t *Tracker) evaluateStep(runner loadtest.Controller, snap windowSnapshot, now time.Time) bool {
	users := snap.step * t.cfg.StepUsers
	failRate := snap.failRate()
	prefix := fmt.Sprintf("\n[STEP RESULT] step=%d users~%d (spawn_rate=%s) obs_total=%d fail%%=%.2f",
		snap.step, users, report.Num(t.cfg.SpawnRate), snap.total(), failRate)

	t.metrics.setStep(snap.step)

	if len(snap.responseTimes) < t.cfg.SLAMinSamples {
		fmt.Fprintf(t.out, "%s (insufficient samples for p95/p99)\n", prefix)
		t.log.Debug().Int("step", snap.step).Int("samples", len(snap.responseTimes)).Msg("step has too few samples")
		return false
	}

	sorted := snap.responseTimes
	sort.Float64s(sorted)
	p95, _ := Percentile(sorted, 0.95)
	p99, _ := Percentile(sorted, 0.99)
	fmt.Fprintf(t.out, "%s p95=%.1fms p99=%.1fms\n", prefix, p95, p99)

	if p95 <= t.cfg.SLAP95Ms {
		return false
	}

	t.mu.Lock()
	t.slaStop = &report.SLAStop{
		Step:          snap.step,
		Users:         users,
		P95Ms:         p95,
		P99Ms:         p99,
		FailRate:      failRate,
		ObservedTotal: snap.total(),
		ElapsedSec:    now.Sub(t.startTime).Seconds(),
		Timestamp:     now,
	}
	t.mu.Unlock()

	fmt.Fprintf(t.out, "[SLA STOP] step=%d P95=%.1fms > SLA(%sms). Stopping...\n", snap.step, p95, report.Num(t.cfg.SLAP95Ms))
	t.log.Warn().Int("step", snap.step).Float64("p95Ms", p95).Float64("slaMs", t.cfg.SLAP95Ms).Msg("step SLA breached, stopping run")
	t.metrics.setSLAStopped()

	runner.Quit()
	return true
}

// sleepCtx sleeps for d. It returns false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
