package loadtest

import (
	"sync"

	"github.com/wesleyorama2/infraload/internal/loadtest/metrics"
)

// Environment ties together the target host, the event hooks, the
// built-in statistics and the runner of one load test.
type Environment struct {
	// Host is the base URL requests are resolved against
	Host string

	// Events are the lifecycle hooks observers subscribe to
	Events *Events

	// Stats holds the built-in per-endpoint statistics
	Stats *metrics.Engine

	mu     sync.RWMutex
	runner Controller
}

// NewEnvironment creates an environment for host.
func NewEnvironment(host string) *Environment {
	return &Environment{
		Host:   host,
		Events: NewEvents(),
		Stats:  metrics.NewEngine(),
	}
}

// Runner returns the attached runner, or nil before one is attached.
func (e *Environment) Runner() Controller {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.runner
}

// SetRunner attaches a runner to the environment.
func (e *Environment) SetRunner(r Controller) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runner = r
}
