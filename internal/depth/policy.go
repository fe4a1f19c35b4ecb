package depth

import (
	"fmt"
	"math"
)

const (
	// DefaultFixedMin and DefaultFixedMax bound the fixed normalization
	// window in millimetres.
	DefaultFixedMin uint16 = 0
	DefaultFixedMax uint16 = 2500
)

// Policy selects the range window mapped onto 0..255. A fixed policy uses
// Min and Max; a dynamic policy uses each frame's discovered extent.
type Policy struct {
	Dynamic bool
	Min     uint16
	Max     uint16
}

// FixedPolicy returns a policy that always normalizes over [min, max].
func FixedPolicy(min, max uint16) Policy {
	return Policy{Min: min, Max: max}
}

// DynamicPolicy returns a policy that normalizes over each frame's own
// discovered range.
func DynamicPolicy() Policy {
	return Policy{Dynamic: true}
}

// DefaultPolicy is the fixed 0-2500 mm window.
func DefaultPolicy() Policy {
	return FixedPolicy(DefaultFixedMin, DefaultFixedMax)
}

// Bounds returns the window to normalize against, given the frame's
// discovered extent. The returned min never exceeds the returned max.
func (p Policy) Bounds(frameMin, frameMax uint16) (uint16, uint16) {
	min, max := p.Min, p.Max
	if p.Dynamic {
		min, max = frameMin, frameMax
	}
	if max < min {
		max = min
	}
	return min, max
}

func (p Policy) String() string {
	if p.Dynamic {
		return "dynamic"
	}
	return fmt.Sprintf("fixed[%d,%d]", p.Min, p.Max)
}

// Normalize maps a range onto 0..255 over [min, max]. The range is clamped
// into the window first; an empty or inverted window yields 0.
func Normalize(r, min, max uint16) uint8 {
	if max <= min {
		return 0
	}
	c := r
	if c < min {
		c = min
	}
	if c > max {
		c = max
	}
	v := math.Round(255 * float64(c-min) / float64(max-min))
	return uint8(v)
}
