package loadtest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/wesleyorama2/infraload/internal/loadtest/rate"
	"github.com/wesleyorama2/infraload/internal/loadtest/shape"
)

// ErrAlreadyStarted is returned when Run is called twice.
var ErrAlreadyStarted = errors.New("runner already started")

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	// HTTP configures the users' HTTP clients
	HTTP HTTPClientConfig

	// TickInterval is how often the shape is consulted (default: 1s)
	TickInterval time.Duration

	// StopTimeout bounds the wait for users to exit (default: 10s)
	StopTimeout time.Duration

	// Logger receives runner lifecycle logs
	Logger zerolog.Logger
}

// DefaultRunnerOptions returns the default runner configuration.
func DefaultRunnerOptions() RunnerOptions {
	return RunnerOptions{
		HTTP:         DefaultHTTPClientConfig(),
		TickInterval: time.Second,
		StopTimeout:  10 * time.Second,
		Logger:       zerolog.Nop(),
	}
}

// Runner drives virtual users according to a load shape.
//
// Every tick the shape yields a target user count and spawn rate. A
// spawner goroutine moves the live population towards the target, one
// user per pacer slot when growing and immediately when shrinking. The
// target is split across user classes: fixed-count classes first, the
// remainder by weight.
//
// Runner implements Controller. Quit may be called from any goroutine,
// including event listeners, and never blocks.
type Runner struct {
	env     *Environment
	classes []*UserClass
	opts    RunnerOptions
	log     zerolog.Logger

	state  atomic.Int32
	target atomic.Int32

	startMu   sync.RWMutex
	startTime time.Time

	users   map[int]*VirtualUser
	usersMu sync.Mutex
	nextID  atomic.Int32
	wg      sync.WaitGroup

	sharedClient *http.Client

	pacer    *rate.Pacer
	wakeCh   chan struct{}
	quitCh   chan struct{}
	quitOnce sync.Once
	doneCh   chan struct{}
}

// NewRunner creates a runner for env and attaches it to the environment.
func NewRunner(env *Environment, classes []*UserClass, opts RunnerOptions) *Runner {
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 10 * time.Second
	}

	r := &Runner{
		env:     env,
		classes: classes,
		opts:    opts,
		log:     opts.Logger.With().Str("component", "runner").Logger(),
		users:   make(map[int]*VirtualUser),
		pacer:   rate.NewPacer(1),
		wakeCh:  make(chan struct{}, 1),
		quitCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	if opts.HTTP.UseSharedClient {
		r.sharedClient = NewHTTPClient(opts.HTTP)
	}

	env.SetRunner(r)
	return r
}

// Run executes the load test until the shape ends, ctx is cancelled or
// Quit is called. It fires TestStart before the first user spawns.
func (r *Runner) Run(ctx context.Context, s shape.Shape) error {
	if !r.state.CompareAndSwap(int32(StateReady), int32(StateSpawning)) {
		return ErrAlreadyStarted
	}
	defer close(r.doneCh)

	r.env.Stats.Reset()
	r.startMu.Lock()
	r.startTime = time.Now()
	r.startMu.Unlock()

	r.env.Events.TestStart.Fire(r.env)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Quit may have been called before Run or by a TestStart listener.
	select {
	case <-r.quitCh:
		r.state.Store(int32(StateStopping))
		r.shutdown()
		return nil
	default:
	}

	spawnerDone := make(chan struct{})
	go func() {
		defer close(spawnerDone)
		r.spawner(runCtx)
	}()

	ticker := time.NewTicker(r.opts.TickInterval)
	defer ticker.Stop()

	reason := "shape finished"
	for {
		tick, ok := s.Tick(r.RunTime())
		if !ok {
			break
		}
		r.apply(tick)

		select {
		case <-ctx.Done():
			reason = "context cancelled"
		case <-r.quitCh:
			reason = "quit requested"
		case <-ticker.C:
			continue
		}
		break
	}

	r.log.Info().Str("reason", reason).Dur("runTime", r.RunTime()).Msg("stopping load test")
	r.state.Store(int32(StateStopping))
	cancel()
	<-spawnerDone
	r.shutdown()
	return nil
}

func (r *Runner) apply(tick shape.Tick) {
	if tick.SpawnRate > 0 && tick.SpawnRate != r.pacer.Rate() {
		r.pacer.SetRate(tick.SpawnRate)
	}

	prev := r.target.Swap(int32(tick.Users))
	if int(prev) != tick.Users {
		r.log.Debug().Int("users", tick.Users).Float64("spawnRate", tick.SpawnRate).Int("step", tick.Step).Msg("new target")
		r.state.CompareAndSwap(int32(StateRunning), int32(StateSpawning))
	}
	r.wake()
}

func (r *Runner) wake() {
	select {
	case r.wakeCh <- struct{}{}:
	default:
	}
}

// spawner moves the live user population towards the target.
func (r *Runner) spawner(ctx context.Context) {
	for {
		if ctx.Err() != nil || r.State().Ended() {
			return
		}

		target := r.TargetUserCount()
		current := r.UserCount()

		switch {
		case current < target:
			if err := r.pacer.Wait(ctx); err != nil {
				return
			}
			if r.State().Ended() {
				return
			}
			r.spawnOne(ctx)
			continue
		case current > target:
			r.stopExcess(current - target)
		}

		if r.UserCount() == r.TargetUserCount() {
			r.state.CompareAndSwap(int32(StateSpawning), int32(StateRunning))
		}

		select {
		case <-ctx.Done():
			return
		case <-r.wakeCh:
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (r *Runner) spawnOne(ctx context.Context) {
	r.usersMu.Lock()
	defer r.usersMu.Unlock()

	class := r.mostNeeded()
	if class == nil {
		return
	}

	id := int(r.nextID.Add(1))
	httpClient := r.sharedClient
	if httpClient == nil {
		httpClient = NewHTTPClient(r.opts.HTTP)
	}
	meta := map[string]any{"user_id": id, "user_class": class.Name}
	user := newVirtualUser(id, class, NewClient(r.env, httpClient, meta), r.env, r.log)

	r.users[id] = user
	r.wg.Add(1)
	user.start(ctx, r.onUserExit)
	r.env.Stats.SetActiveUsers(len(r.users))
}

func (r *Runner) onUserExit(u *VirtualUser) {
	r.usersMu.Lock()
	delete(r.users, u.ID)
	r.env.Stats.SetActiveUsers(len(r.users))
	r.usersMu.Unlock()
	r.wg.Done()
	r.wake()
}

// stopExcess stops n users, newest first, from the most over-provisioned
// classes.
func (r *Runner) stopExcess(n int) {
	r.usersMu.Lock()
	defer r.usersMu.Unlock()

	desired := Distribute(r.classes, int(r.target.Load()))
	live := r.liveByClass()

	ids := make([]int, 0, len(r.users))
	for id, u := range r.users {
		if u.State() == UserStateRunning {
			ids = append(ids, id)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ids)))

	for _, id := range ids {
		if n == 0 {
			return
		}
		u := r.users[id]
		if live[u.Class] > desired[u.Class] {
			u.Stop()
			live[u.Class]--
			n--
		}
	}
}

// mostNeeded returns the class with the largest deficit. usersMu must be held.
func (r *Runner) mostNeeded() *UserClass {
	desired := Distribute(r.classes, int(r.target.Load()))
	live := r.liveByClass()

	var best *UserClass
	bestDeficit := 0
	for _, c := range r.classes {
		if d := desired[c] - live[c]; d > bestDeficit {
			best, bestDeficit = c, d
		}
	}
	return best
}

func (r *Runner) liveByClass() map[*UserClass]int {
	live := make(map[*UserClass]int, len(r.classes))
	for _, u := range r.users {
		if u.State() == UserStateRunning {
			live[u.Class]++
		}
	}
	return live
}

// Distribute splits total users across classes. Fixed-count classes
// are filled first in declaration order; the rest is shared by weight
// using largest remainders, ties going to the earlier class.
func Distribute(classes []*UserClass, total int) map[*UserClass]int {
	out := make(map[*UserClass]int, len(classes))
	remaining := total

	for _, c := range classes {
		if c.FixedCount <= 0 {
			continue
		}
		n := min(c.FixedCount, remaining)
		out[c] = n
		remaining -= n
	}
	if remaining <= 0 {
		return out
	}

	totalWeight := 0
	for _, c := range classes {
		if c.FixedCount <= 0 && c.Weight > 0 {
			totalWeight += c.Weight
		}
	}
	if totalWeight == 0 {
		return out
	}

	type share struct {
		class *UserClass
		rem   float64
		order int
	}
	shares := make([]share, 0, len(classes))
	assigned := 0
	for i, c := range classes {
		if c.FixedCount > 0 || c.Weight <= 0 {
			continue
		}
		exact := float64(remaining) * float64(c.Weight) / float64(totalWeight)
		n := int(exact)
		out[c] = n
		assigned += n
		shares = append(shares, share{class: c, rem: exact - float64(n), order: i})
	}

	sort.SliceStable(shares, func(i, j int) bool {
		if shares[i].rem != shares[j].rem {
			return shares[i].rem > shares[j].rem
		}
		return shares[i].order < shares[j].order
	})
	for i := 0; assigned < remaining; i++ {
		out[shares[i%len(shares)].class]++
		assigned++
	}
	return out
}

// shutdown stops all users and waits up to StopTimeout for them. The
// spawner must have exited.
func (r *Runner) shutdown() {
	r.usersMu.Lock()
	for _, u := range r.users {
		u.Stop()
	}
	r.usersMu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(r.opts.StopTimeout):
		r.log.Warn().Int("users", r.UserCount()).Msg("users did not stop in time")
	}

	if r.sharedClient != nil {
		r.sharedClient.CloseIdleConnections()
	}
	r.state.Store(int32(StateStopped))
}

// Quit implements Controller.
func (r *Runner) Quit() {
	r.quitOnce.Do(func() {
		r.state.CompareAndSwap(int32(StateSpawning), int32(StateStopping))
		r.state.CompareAndSwap(int32(StateRunning), int32(StateStopping))
		close(r.quitCh)
	})
}

// Wait blocks until Run has returned or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	select {
	case <-r.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for runner: %w", ctx.Err())
	}
}

// State implements Controller.
func (r *Runner) State() State {
	return State(r.state.Load())
}

// UserCount implements Controller.
func (r *Runner) UserCount() int {
	r.usersMu.Lock()
	defer r.usersMu.Unlock()
	count := 0
	for _, u := range r.users {
		if u.State() == UserStateRunning {
			count++
		}
	}
	return count
}

// TargetUserCount implements Controller.
func (r *Runner) TargetUserCount() int {
	return int(r.target.Load())
}

// RunTime implements Controller.
func (r *Runner) RunTime() time.Duration {
	r.startMu.RLock()
	defer r.startMu.RUnlock()
	if r.startTime.IsZero() {
		return 0
	}
	return time.Since(r.startTime)
}
