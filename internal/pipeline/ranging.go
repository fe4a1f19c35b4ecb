package pipeline

import (
	"sync/atomic"

	"github.com/banshee-data/tofview/internal/depth"
)

// Ranging holds the user's normalization choice. The dynamic toggle may be
// flipped from any goroutine; the worker reads it once per frame.
type Ranging struct {
	dynamic  atomic.Bool
	min, max uint16
}

// NewRanging returns a Ranging with fixed bounds [min, max].
func NewRanging(dynamic bool, min, max uint16) *Ranging {
	r := &Ranging{min: min, max: max}
	r.dynamic.Store(dynamic)
	return r
}

// SetDynamic switches between dynamic and fixed normalization.
func (r *Ranging) SetDynamic(enabled bool) {
	if r.dynamic.Swap(enabled) != enabled {
		logf("dynamic ranging %v", enabled)
	}
}

// Dynamic reports whether dynamic normalization is on.
func (r *Ranging) Dynamic() bool { return r.dynamic.Load() }

// Policy returns the policy to decode the next frame with.
func (r *Ranging) Policy() depth.Policy {
	if r.dynamic.Load() {
		return depth.DynamicPolicy()
	}
	return depth.FixedPolicy(r.min, r.max)
}
