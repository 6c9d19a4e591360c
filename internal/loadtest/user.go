package loadtest

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// WaitTime returns how long a user pauses between two task executions.
type WaitTime func() time.Duration

// Between waits a uniformly random duration in [min, max].
func Between(min, max time.Duration) WaitTime {
	if max < min {
		min, max = max, min
	}
	return func() time.Duration {
		if max == min {
			return min
		}
		return min + time.Duration(rand.Int63n(int64(max-min)+1))
	}
}

// Constant always waits d.
func Constant(d time.Duration) WaitTime {
	return func() time.Duration { return d }
}

// TaskFunc is one execution of a user's behaviour. Returning an error
// is logged; the user keeps running.
type TaskFunc func(ctx context.Context, u *VirtualUser) error

// UserClass describes a kind of simulated user.
type UserClass struct {
	// Name identifies the class in logs and request metadata
	Name string

	// Weight is the relative share of non-fixed users. Zero disables
	// the class unless FixedCount is set.
	Weight int

	// FixedCount spawns exactly this many users regardless of weights
	FixedCount int

	// Wait is the pause after each task (nil means no pause)
	Wait WaitTime

	// Task runs repeatedly until the user is stopped
	Task TaskFunc
}

// UserState represents the lifecycle state of a virtual user.
type UserState int32

const (
	// UserStateIdle indicates the user was created but not started.
	UserStateIdle UserState = iota
	// UserStateRunning indicates the user is executing tasks.
	UserStateRunning
	// UserStateStopping indicates the user has been asked to stop.
	UserStateStopping
	// UserStateStopped indicates the user goroutine has exited.
	UserStateStopped
)

func (s UserState) String() string {
	switch s {
	case UserStateIdle:
		return "idle"
	case UserStateRunning:
		return "running"
	case UserStateStopping:
		return "stopping"
	case UserStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// VirtualUser is a single simulated user running its class's task in a
// loop on its own goroutine.
type VirtualUser struct {
	// ID is unique within a runner
	ID int

	// Class is the user's behaviour
	Class *UserClass

	// Client issues the user's requests
	Client *Client

	// Env is the environment the user belongs to
	Env *Environment

	// Log is tagged with the user id and class
	Log zerolog.Logger

	state     atomic.Int32
	cancel    context.CancelFunc
	doneCh    chan struct{}
	iteration atomic.Int64
}

func newVirtualUser(id int, class *UserClass, client *Client, env *Environment, log zerolog.Logger) *VirtualUser {
	return &VirtualUser{
		ID:     id,
		Class:  class,
		Client: client,
		Env:    env,
		Log:    log.With().Int("user", id).Str("class", class.Name).Logger(),
		doneCh: make(chan struct{}),
	}
}

// State returns the current user state.
func (u *VirtualUser) State() UserState {
	return UserState(u.state.Load())
}

// Iteration returns how many times the task has started.
func (u *VirtualUser) Iteration() int64 {
	return u.iteration.Load()
}

// Runner returns the runner controlling this user.
func (u *VirtualUser) Runner() Controller {
	return u.Env.Runner()
}

// Sleep pauses for d. It returns false if the user was stopped first.
func (u *VirtualUser) Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// start launches the task loop. The user stops when parent is done or
// Stop is called.
func (u *VirtualUser) start(parent context.Context, onExit func(*VirtualUser)) {
	ctx, cancel := context.WithCancel(parent)
	u.cancel = cancel
	u.state.Store(int32(UserStateRunning))

	go func() {
		defer func() {
			cancel()
			u.state.Store(int32(UserStateStopped))
			close(u.doneCh)
			if onExit != nil {
				onExit(u)
			}
		}()
		u.run(ctx)
	}()
}

func (u *VirtualUser) run(ctx context.Context) {
	for ctx.Err() == nil {
		u.iteration.Add(1)

		if err := u.Class.Task(ctx, u); err != nil && ctx.Err() == nil {
			u.Log.Debug().Err(err).Msg("task failed")
		}

		var wait time.Duration
		if u.Class.Wait != nil {
			wait = u.Class.Wait()
		}
		if !u.Sleep(ctx, wait) {
			return
		}
	}
}

// Stop asks the user to stop. In-flight requests are cancelled.
func (u *VirtualUser) Stop() {
	if u.state.CompareAndSwap(int32(UserStateRunning), int32(UserStateStopping)) && u.cancel != nil {
		u.cancel()
	}
}

// Done is closed when the user goroutine has exited.
func (u *VirtualUser) Done() <-chan struct{} {
	return u.doneCh
}
