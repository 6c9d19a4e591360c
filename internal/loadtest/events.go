package loadtest

import (
	"sync"
	"time"
)

// Hook is a list of listeners for one lifecycle event.
type Hook[T any] struct {
	mu        sync.RWMutex
	listeners []func(T)
}

// Add registers a listener. Listeners run in registration order.
func (h *Hook[T]) Add(fn func(T)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, fn)
}

// Fire calls every listener synchronously on the caller's goroutine.
func (h *Hook[T]) Fire(v T) {
	h.mu.RLock()
	listeners := h.listeners
	h.mu.RUnlock()

	for _, fn := range listeners {
		fn(v)
	}
}

// Len returns the number of registered listeners.
func (h *Hook[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

// Events are the engine's lifecycle hooks.
//
//   - TestStart fires once when a run begins, before any user spawns.
//   - Request fires after every completed HTTP call made by any user.
//   - Quitting fires once when the process is shutting down.
type Events struct {
	TestStart Hook[*Environment]
	Request   Hook[*RequestEvent]
	Quitting  Hook[*Environment]
}

// NewEvents creates an empty hook set.
func NewEvents() *Events {
	return &Events{}
}

// RequestEvent describes one completed request attempt.
type RequestEvent struct {
	// RequestType is the HTTP method
	RequestType string

	// Name groups requests in statistics (e.g. "OBSERVE")
	Name string

	// ResponseTime is the wall-clock duration of the call
	ResponseTime time.Duration

	// ResponseLength is the number of body bytes received
	ResponseLength int64

	// Response is nil when no response was received
	Response *Response

	// Context carries per-request metadata (user id, user class)
	Context map[string]any

	// Exception is set for transport errors and HTTP status >= 400
	Exception error

	// StartTime is when the request was issued
	StartTime time.Time
}

// ResponseTimeMillis returns the response time in milliseconds.
func (ev *RequestEvent) ResponseTimeMillis() float64 {
	return float64(ev.ResponseTime) / float64(time.Millisecond)
}
