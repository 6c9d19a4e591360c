package loadtest

import "time"

// State is the lifecycle state of a load runner.
type State int32

const (
	// StateReady indicates the runner was created but not started.
	StateReady State = iota
	// StateSpawning indicates users are being started or stopped.
	StateSpawning
	// StateRunning indicates the target user count has been reached.
	StateRunning
	// StateStopping indicates the run is shutting down.
	StateStopping
	// StateStopped indicates all users have exited.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateSpawning:
		return "spawning"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Ended reports whether the state is stopping or stopped.
func (s State) Ended() bool {
	return s == StateStopping || s == StateStopped
}

// Controller is the part of a runner that observers may query or stop.
type Controller interface {
	// State returns the current lifecycle state.
	State() State

	// Quit requests the run to stop. It never blocks on observers.
	Quit()

	// UserCount returns the number of live users.
	UserCount() int

	// TargetUserCount returns the number of users the shape asks for.
	TargetUserCount() int

	// RunTime returns how long the run has been going.
	RunTime() time.Duration
}
