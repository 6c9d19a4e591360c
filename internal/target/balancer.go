package target

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Options configures a fleet.
type Options struct {
	// Instances is the initial fleet size
	Instances int

	// HealthInterval is how often dead instances are deregistered
	HealthInterval time.Duration

	// Replace starts a new instance for every deregistered one
	Replace bool

	// ReplaceDelay is how long a replacement takes to come up
	ReplaceDelay time.Duration

	Logger zerolog.Logger
}

// DefaultOptions mimics a small auto-scaling group.
func DefaultOptions() Options {
	return Options{
		Instances:      2,
		HealthInterval: 5 * time.Second,
		Replace:        true,
		ReplaceDelay:   30 * time.Second,
		Logger:         zerolog.Nop(),
	}
}

// Balancer spreads requests round-robin over registered instances.
// A killed instance stays registered, answering 502, until the next
// health check removes it.
type Balancer struct {
	opts Options
	log  zerolog.Logger

	mu        sync.RWMutex
	instances []*Instance

	next    atomic.Uint64
	counter atomic.Int64
}

// NewBalancer creates a balancer with opts.Instances live instances.
func NewBalancer(opts Options) *Balancer {
	b := &Balancer{
		opts: opts,
		log:  opts.Logger.With().Str("component", "balancer").Logger(),
	}
	for i := 0; i < opts.Instances; i++ {
		b.add()
	}
	return b
}

func (b *Balancer) add() *Instance {
	n := b.counter.Add(1)
	in := NewInstance(fmt.Sprintf("ip-10-0-%d-%d", (n-1)%3+1, 10+n), b.opts.Logger)

	b.mu.Lock()
	b.instances = append(b.instances, in)
	b.mu.Unlock()

	b.log.Info().Str("instance", in.ID).Msg("instance registered")
	return in
}

// Instances returns the registered instances.
func (b *Balancer) Instances() []*Instance {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]*Instance(nil), b.instances...)
}

// ServeHTTP implements http.Handler.
func (b *Balancer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.RLock()
	if len(b.instances) == 0 {
		b.mu.RUnlock()
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	in := b.instances[int(b.next.Add(1)-1)%len(b.instances)]
	b.mu.RUnlock()

	in.ServeHTTP(w, r)
}

// CheckHealth deregisters dead instances and returns how many were
// removed.
func (b *Balancer) CheckHealth() int {
	b.mu.Lock()
	live := b.instances[:0]
	var removed []*Instance
	for _, in := range b.instances {
		if in.Alive() {
			live = append(live, in)
		} else {
			removed = append(removed, in)
		}
	}
	for i := len(live); i < len(b.instances); i++ {
		b.instances[i] = nil
	}
	b.instances = live
	b.mu.Unlock()

	for _, in := range removed {
		b.log.Warn().Str("instance", in.ID).Msg("instance deregistered")
	}
	return len(removed)
}

// Run health-checks every HealthInterval and, when enabled, starts
// replacements, until ctx ends.
func (b *Balancer) Run(ctx context.Context) {
	ticker := time.NewTicker(b.opts.HealthInterval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		removed := b.CheckHealth()
		if !b.opts.Replace {
			continue
		}
		for i := 0; i < removed; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				timer := time.NewTimer(b.opts.ReplaceDelay)
				defer timer.Stop()
				select {
				case <-ctx.Done():
				case <-timer.C:
					b.add()
				}
			}()
		}
	}
}
