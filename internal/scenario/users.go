// Package scenario defines the user classes of an infrastructure load
// test: observers measuring what clients see, scaling users generating
// CPU work, and an optional fault injector.
package scenario

import (
	"context"
	"strconv"
	"time"

	"github.com/wesleyorama2/infraload/internal/config"
	"github.com/wesleyorama2/infraload/internal/loadtest"
	"github.com/wesleyorama2/infraload/internal/tracker"
)

// Request names used in statistics.
const (
	NameWork         = "WORK"
	NameKillSingle   = "FAULT_KILL_SINGLE"
	NameKillAllPass1 = "FAULT_KILL_ALL_PASS1"
	NameKillAllPass2 = "FAULT_KILL_ALL_PASS2"
	NameKillAllProbe = "OBSERVE_KILL_ALL_PROBE"
)

const (
	observeWeight = 8
	scalingWeight = 2
	scalingWait   = 5 * time.Second

	workPath = "/work"
	killPath = "/kill"
)

// Classes returns every user class for cfg. Disabled classes are
// included with zero weight so the runner never spawns them.
func Classes(cfg *config.Config, fault FaultOptions) []*loadtest.UserClass {
	return []*loadtest.UserClass{
		ObserveUser(cfg),
		ScalingUser(cfg),
		FaultUser(cfg, fault),
	}
}

// ObserveUser polls the observe path like a regular client.
func ObserveUser(cfg *config.Config) *loadtest.UserClass {
	path := cfg.ObservePath
	return &loadtest.UserClass{
		Name:   "ObserveUser",
		Weight: observeWeight,
		Wait:   loadtest.Between(cfg.ObsWaitMin, cfg.ObsWaitMax),
		Task: func(ctx context.Context, u *loadtest.VirtualUser) error {
			_, err := u.Client.Get(ctx, path, tracker.ObserveName)
			return err
		},
	}
}

// ScalingUser calls /work at a fixed pace to drive backend CPU up.
func ScalingUser(cfg *config.Config) *loadtest.UserClass {
	weight := 0
	if cfg.EnableScaling {
		weight = scalingWeight
	}
	path := WorkPath(cfg.WorkSec)

	return &loadtest.UserClass{
		Name:   "ScalingUser",
		Weight: weight,
		Wait:   loadtest.Constant(scalingWait),
		Task: func(ctx context.Context, u *loadtest.VirtualUser) error {
			_, err := u.Client.Get(ctx, path, NameWork)
			return err
		},
	}
}

// WorkPath is the /work request for sec seconds of work; zero omits the
// parameter and leaves the duration to the server.
func WorkPath(sec float64) string {
	if sec == 0 {
		return workPath
	}
	return workPath + "?sec=" + strconv.FormatFloat(sec, 'f', -1, 64)
}
