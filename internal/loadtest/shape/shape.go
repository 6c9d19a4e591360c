// Package shape provides load shapes that tell the runner how many users
// to hold at any point of a run.
package shape

import (
	"fmt"
	"time"
)

// Tick is the runner's target for the current instant.
type Tick struct {
	// Users is the target number of concurrent users
	Users int

	// SpawnRate is how many users per second to start or stop while
	// moving towards Users
	SpawnRate float64

	// Step is the 1-based step index for stepped shapes, 0 otherwise
	Step int
}

// Shape computes the target for a run time. ok=false ends the run.
type Shape interface {
	Tick(runTime time.Duration) (tick Tick, ok bool)
}

// Fixed holds a constant user count for RunTime (0 runs until stopped).
type Fixed struct {
	Users     int
	SpawnRate float64
	RunTime   time.Duration
}

// Tick implements Shape.
func (f *Fixed) Tick(runTime time.Duration) (Tick, bool) {
	if f.RunTime > 0 && runTime > f.RunTime {
		return Tick{}, false
	}
	return Tick{Users: f.Users, SpawnRate: f.SpawnRate}, true
}

// Step raises the user count by StepUsers every StepDuration and ends
// the run once TimeLimit is exceeded.
//
// Example with StepDuration=180s, StepUsers=50:
//
//	0s..180s   -> 50 users   (step 1)
//	180s..360s -> 100 users  (step 2)
//	...
type Step struct {
	StepDuration time.Duration
	StepUsers    int
	SpawnRate    float64
	TimeLimit    time.Duration
}

// Tick implements Shape.
func (s *Step) Tick(runTime time.Duration) (Tick, bool) {
	if runTime > s.TimeLimit {
		return Tick{}, false
	}
	step := StepIndex(runTime, s.StepDuration)
	return Tick{
		Users:     step * s.StepUsers,
		SpawnRate: s.SpawnRate,
		Step:      step,
	}, true
}

// Validate checks the step parameters.
func (s *Step) Validate() error {
	if s.StepDuration <= 0 {
		return &ValidationError{Field: "stepDuration", Message: "must be > 0"}
	}
	if s.StepUsers <= 0 {
		return &ValidationError{Field: "stepUsers", Message: "must be > 0"}
	}
	if s.SpawnRate <= 0 {
		return &ValidationError{Field: "spawnRate", Message: "must be > 0"}
	}
	if s.TimeLimit <= 0 {
		return &ValidationError{Field: "timeLimit", Message: "must be > 0"}
	}
	return nil
}

// Steps returns how many steps start before the time limit.
func (s *Step) Steps() int {
	if s.StepDuration <= 0 {
		return 0
	}
	return StepIndex(s.TimeLimit, s.StepDuration)
}

// StepIndex returns the 1-based step for elapsed: floor(elapsed/step)+1.
func StepIndex(elapsed, stepDuration time.Duration) int {
	if stepDuration <= 0 || elapsed < 0 {
		return 1
	}
	return int(elapsed/stepDuration) + 1
}

// ValidationError represents a shape configuration error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}
