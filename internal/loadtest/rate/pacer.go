// Package rate paces user spawning for the load runner.
package rate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Pacer releases spawn slots at a fixed rate using a leaky bucket.
//
// Each call to Next returns the time at which the next user may be
// started. When the caller is behind schedule the returned time is in
// the past and the spawn should happen immediately. Changing the rate
// drops any accumulated credit so a lowered spawn rate never bursts.
//
// Pacer is safe for concurrent use.
type Pacer struct {
	rate        float64 // slots per second
	lastDrip    time.Time
	accumulated float64
	maxBurst    float64
	mu          sync.Mutex

	released atomic.Int64
}

// NewPacer creates a pacer releasing perSecond slots per second.
// Non-positive rates fall back to one slot per second.
func NewPacer(perSecond float64) *Pacer {
	if perSecond <= 0 {
		perSecond = 1.0
	}
	return &Pacer{
		rate:        perSecond,
		lastDrip:    time.Now(),
		accumulated: 1.0, // first slot is released immediately
		maxBurst:    1.0,
	}
}

// Next returns when the next slot is released.
func (p *Pacer) Next() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(p.lastDrip).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}

	p.accumulated += elapsed * p.rate
	if p.accumulated > p.maxBurst {
		p.accumulated = p.maxBurst
	}

	p.released.Add(1)

	if p.accumulated >= 1.0 {
		p.accumulated -= 1.0
		p.lastDrip = now
		return now
	}

	deficit := 1.0 - p.accumulated
	p.accumulated = 0

	next := now.Add(time.Duration(deficit / p.rate * float64(time.Second)))
	// lastDrip moves to the scheduled slot, otherwise the sleep until
	// that slot would be credited a second time.
	p.lastDrip = next
	return next
}

// Wait blocks until the next slot is released or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	wait := time.Until(p.Next())
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SetRate changes the release rate. Accumulated credit is discarded.
func (p *Pacer) SetRate(perSecond float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if perSecond <= 0 {
		perSecond = 1.0
	}
	p.rate = perSecond
	p.accumulated = 0
	p.lastDrip = time.Now()
}

// Rate returns the current release rate in slots per second.
func (p *Pacer) Rate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rate
}

// Released returns how many slots have been handed out.
func (p *Pacer) Released() int64 {
	return p.released.Load()
}
