// Package camera provides depth camera sessions: a synthetic scene for
// development, a UDP receiver for networked sensors and a pcap replay.
package camera

import (
	"errors"
	"fmt"
	"syscall"
	"time"

	"github.com/banshee-data/tofview/internal/monitoring"
	"github.com/banshee-data/tofview/internal/session"
	"github.com/banshee-data/tofview/internal/timeutil"
)

var logf = monitoring.Prefixed("Camera")

type options struct {
	clock timeutil.Clock
}

// Option configures the synthetic and replay cameras.
type Option func(*options)

// WithClock sets the clock driving frame pacing.
func WithClock(c timeutil.Clock) Option {
	return func(o *options) { o.clock = c }
}

func buildOptions(opts []Option) options {
	o := options{clock: timeutil.RealClock{}}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

func validateCapture(c session.CaptureConfig) error {
	if c.Width <= 0 || c.Height <= 0 || c.FPS <= 0 {
		return fmt.Errorf("invalid capture %dx%d@%d", c.Width, c.Height, c.FPS)
	}
	if c.Width > 0xFFFF || c.Height > 0xFFFF {
		return fmt.Errorf("capture %dx%d exceeds 16-bit dimensions", c.Width, c.Height)
	}
	return nil
}

func frameInterval(fps int) time.Duration {
	return time.Second / time.Duration(fps)
}

// classifyOpenError maps socket errors onto the session error kinds.
func classifyOpenError(err error) error {
	switch {
	case errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM):
		return fmt.Errorf("%w: %w", session.ErrPermissionDenied, err)
	default:
		return fmt.Errorf("%w: %w", session.ErrResourceUnavailable, err)
	}
}
