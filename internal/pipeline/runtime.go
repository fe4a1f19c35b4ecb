// Package pipeline wires the capture lifecycle, the idle monitor, the frame
// decoder and the display into one running app.
package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/banshee-data/tofview/internal/config"
	"github.com/banshee-data/tofview/internal/depth"
	"github.com/banshee-data/tofview/internal/display"
	"github.com/banshee-data/tofview/internal/journal"
	"github.com/banshee-data/tofview/internal/monitor"
	"github.com/banshee-data/tofview/internal/monitoring"
	"github.com/banshee-data/tofview/internal/motion"
	"github.com/banshee-data/tofview/internal/session"
	"github.com/banshee-data/tofview/internal/timeutil"
)

var logf = monitoring.Prefixed("Pipeline")

// Config is everything the runtime needs to build its components.
type Config struct {
	Session  session.Config
	Idle     motion.Config
	Tracking depth.RangeTracking
	Dynamic  bool
	FixedMin uint16
	FixedMax uint16
	// HistorySize is the number of motion samples kept for charts.
	HistorySize int
}

// ConfigFromTuning maps a tuning file onto a runtime Config.
func ConfigFromTuning(tc *config.TuningConfig) (Config, error) {
	tracking, ok := depth.ParseRangeTracking(tc.GetRangeTracking())
	if !ok {
		return Config{}, fmt.Errorf("unknown range_tracking %q", tc.GetRangeTracking())
	}
	return Config{
		Session: session.Config{
			CameraID: tc.GetCameraID(),
			Capture: session.CaptureConfig{
				Width:  tc.GetFrameWidth(),
				Height: tc.GetFrameHeight(),
				FPS:    tc.GetFrameRate(),
			},
		},
		Idle: motion.Config{
			Threshold:    tc.GetIdleThreshold(),
			Timeout:      tc.GetIdleTimeout(),
			TickInterval: tc.GetIdleTickInterval(),
			Gravity:      tc.GetGravity(),
		},
		Tracking:    tracking,
		Dynamic:     tc.GetDynamicRanging(),
		FixedMin:    uint16(tc.GetFixedMinMM()),
		FixedMax:    uint16(tc.GetFixedMaxMM()),
		HistorySize: 600,
	}, nil
}

// Option configures a Runtime.
type Option func(*options)

type options struct {
	clock     timeutil.Clock
	journal   *journal.Journal
	observers []session.Observer
	runIDs    func() string
	hooks     []func(motion.Sample, float64)
}

// WithClock sets the clock for the idle monitor and lifecycle.
func WithClock(c timeutil.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithJournal records transitions, idle events and frame summaries.
func WithJournal(j *journal.Journal) Option {
	return func(o *options) { o.journal = j }
}

// WithObserver adds a lifecycle transition observer.
func WithObserver(obs session.Observer) Option {
	return func(o *options) { o.observers = append(o.observers, obs) }
}

// WithRunIDs overrides lifecycle run ID generation.
func WithRunIDs(next func() string) Option {
	return func(o *options) { o.runIDs = next }
}

// WithMotionHook adds a function called with every motion sample the
// running idle monitor sees, after the diagnostics history. It runs under
// the monitor lock.
func WithMotionHook(h func(motion.Sample, float64)) Option {
	return func(o *options) { o.hooks = append(o.hooks, h) }
}

// Runtime is the assembled app. Foreground and Background mirror the app
// being shown and hidden; idle detection runs only while foregrounded.
type Runtime struct {
	Lifecycle   *session.Lifecycle
	Monitor     *motion.Monitor
	Processor   *Processor
	Ranging     *Ranging
	Surface     *display.Surface
	Diagnostics *monitor.Diagnostics

	journal *journal.Journal

	// Foreground starts the idle monitor on ctx, not on the caller's
	// context, so a short-lived request does not stop idle detection.
	ctx    context.Context
	cancel context.CancelFunc

	// fgMu orders Foreground and Background. It is never held while a
	// camera opens.
	fgMu       sync.Mutex
	foreground bool

	closeOnce sync.Once
}

// NewRuntime assembles a Runtime around opener and surface. Nothing runs
// until Foreground.
func NewRuntime(cfg Config, opener session.Opener, surface *display.Surface, opts ...Option) *Runtime {
	o := options{clock: timeutil.RealClock{}}
	for _, opt := range opts {
		opt(&o)
	}

	r := &Runtime{
		Ranging:     NewRanging(cfg.Dynamic, cfg.FixedMin, cfg.FixedMax),
		Surface:     surface,
		Diagnostics: monitor.NewDiagnostics(cfg.HistorySize, cfg.Idle.Threshold),
		journal:     o.journal,
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())

	var sinks []SummarySink
	if o.journal != nil {
		sinks = append(sinks, o.journal)
	}
	r.Processor = NewProcessor(depth.NewDecoder(depth.WithTracking(cfg.Tracking)), r.Ranging, surface, r.Diagnostics, sinks...)

	lcOpts := []session.Option{session.WithClock(o.clock)}
	if o.journal != nil {
		lcOpts = append(lcOpts, session.WithObserver(o.journal))
	}
	for _, obs := range o.observers {
		lcOpts = append(lcOpts, session.WithObserver(obs))
	}
	if o.runIDs != nil {
		lcOpts = append(lcOpts, session.WithRunIDs(o.runIDs))
	}
	r.Lifecycle = session.New(cfg.Session, opener, r.Processor, surface, lcOpts...)

	r.Monitor = motion.NewMonitor(cfg.Idle, &idleListener{lc: r.Lifecycle, journal: o.journal},
		motion.WithClock(o.clock),
		motion.WithSampleHook(func(s motion.Sample, dev float64) {
			r.Diagnostics.ObserveMotion(s, dev)
			for _, h := range o.hooks {
				h(s, dev)
			}
		}),
	)
	return r
}

// idleListener forwards idle changes to the lifecycle, journaling them
// first.
type idleListener struct {
	lc      *session.Lifecycle
	journal *journal.Journal
}

func (l *idleListener) OnIdleEntered() {
	l.record(journal.IdleEntered)
	l.lc.OnIdleEntered()
}

func (l *idleListener) OnIdleExited() {
	l.record(journal.IdleExited)
	l.lc.OnIdleExited()
}

func (l *idleListener) record(kind journal.IdleKind) {
	if l.journal == nil {
		return
	}
	if err := l.journal.RecordIdleEvent(kind); err != nil {
		logf("%v", err)
	}
}

// Foreground opens the camera and starts idle detection. The monitor is
// started even if the open fails, so motion can retry it later. If
// Background runs while the camera is opening, Background wins.
func (r *Runtime) Foreground(ctx context.Context) error {
	r.fgMu.Lock()
	r.foreground = true
	r.fgMu.Unlock()

	err := r.Lifecycle.Resume(ctx)

	r.fgMu.Lock()
	defer r.fgMu.Unlock()
	if !r.foreground {
		r.Lifecycle.Suspend()
		return err
	}
	r.Monitor.Start(r.ctx)
	return err
}

// Background stops idle detection, then closes the camera. The monitor is
// stopped first so a motion sample in flight cannot reopen the camera
// behind the suspend.
func (r *Runtime) Background() {
	r.fgMu.Lock()
	defer r.fgMu.Unlock()
	r.foreground = false
	r.Monitor.Stop()
	r.Lifecycle.Suspend()
}

// Run feeds motion samples to the idle monitor until ctx is done or samples
// is closed.
func (r *Runtime) Run(ctx context.Context, samples <-chan motion.Sample) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s, ok := <-samples:
			if !ok {
				return nil
			}
			r.Monitor.OnMotionSample(s)
		}
	}
}

// Close stops idle detection and closes the camera.
func (r *Runtime) Close() {
	r.closeOnce.Do(func() {
		r.Monitor.Stop()
		r.cancel()
		r.Monitor.Wait()
		r.Lifecycle.Close()
	})
}

// SetDynamicRanging implements display.Controls.
func (r *Runtime) SetDynamicRanging(enabled bool) { r.Ranging.SetDynamic(enabled) }

// DynamicRanging implements display.Controls.
func (r *Runtime) DynamicRanging() bool { return r.Ranging.Dynamic() }

// LifecycleState implements display.Controls.
func (r *Runtime) LifecycleState() string { return r.Lifecycle.State().String() }

var _ display.Controls = (*Runtime)(nil)
