// Package target is a small stand-in for a load-balanced web fleet:
// backend instances that report their hostname, burn CPU on /work and
// die on /kill, behind a round-robin balancer with health checks and
// optional replacement.
package target

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

const (
	defaultWork = 5 * time.Second
	maxWork     = 60 * time.Second
)

// Instance is one backend.
type Instance struct {
	ID string

	alive  atomic.Bool
	served atomic.Int64
	router *mux.Router
	log    zerolog.Logger
}

// NewInstance creates a live instance.
func NewInstance(id string, log zerolog.Logger) *Instance {
	in := &Instance{
		ID:     id,
		router: mux.NewRouter(),
		log:    log.With().Str("instance", id).Logger(),
	}
	in.alive.Store(true)

	in.router.HandleFunc("/work", in.handleWork).Methods(http.MethodGet)
	in.router.HandleFunc("/kill", in.handleKill).Methods(http.MethodGet, http.MethodPost)
	in.router.PathPrefix("/").HandlerFunc(in.handleIndex)
	return in
}

// Alive reports whether the instance still serves requests.
func (in *Instance) Alive() bool {
	return in.alive.Load()
}

// Kill stops the instance.
func (in *Instance) Kill() {
	if in.alive.CompareAndSwap(true, false) {
		in.log.Warn().Msg("instance terminated")
	}
}

// Served returns how many requests the instance answered.
func (in *Instance) Served() int64 {
	return in.served.Load()
}

// ServeHTTP answers 502 once the instance is dead, like a balancer
// forwarding to a backend that no longer listens.
func (in *Instance) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !in.Alive() {
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	in.served.Add(1)
	in.router.ServeHTTP(w, r)
}

func (in *Instance) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<h1>infraload target</h1>Hostname: %s<br>", in.ID)
}

func (in *Instance) handleWork(w http.ResponseWriter, r *http.Request) {
	d := defaultWork
	if raw := r.URL.Query().Get("sec"); raw != "" {
		sec, err := strconv.ParseFloat(raw, 64)
		if err != nil || sec < 0 {
			http.Error(w, "sec must be a non-negative number", http.StatusBadRequest)
			return
		}
		d = time.Duration(sec * float64(time.Second))
	}
	d = min(d, maxWork)

	n := burn(r.Context(), d)
	fmt.Fprintf(w, "Hostname: %s<br>worked %s (%d rounds)", in.ID, d, n)
}

func (in *Instance) handleKill(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "Hostname: %s<br>terminating", in.ID)
	in.Kill()
}

// burn keeps one core busy for d or until ctx ends.
func burn(ctx context.Context, d time.Duration) int {
	deadline := time.Now().Add(d)
	rounds := 0
	x := uint64(1)
	for time.Now().Before(deadline) && ctx.Err() == nil {
		for i := 0; i < 10000; i++ {
			x = x*6364136223846793005 + 1442695040888963407
		}
		rounds++
	}
	_ = x
	return rounds
}
