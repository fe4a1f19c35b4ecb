// Package motion detects when the device has been at rest long enough to
// suspend the camera.
package motion

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/tofview/internal/monitoring"
	"github.com/banshee-data/tofview/internal/timeutil"
)

var logf = monitoring.Prefixed("Idle")

// Config tunes idle detection.
type Config struct {
	// Threshold is the deviation from gravity (m/s^2) a sample must exceed
	// to count as motion.
	Threshold float64
	// Timeout is how long without qualifying motion before going idle.
	Timeout time.Duration
	// TickInterval is the period of the idle timer.
	TickInterval time.Duration
	Gravity      float64
}

// DefaultConfig returns the stock idle detection settings.
func DefaultConfig() Config {
	return Config{
		Threshold:    0.5,
		Timeout:      30 * time.Second,
		TickInterval: time.Second,
		Gravity:      StandardGravity,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.TickInterval <= 0 {
		c.TickInterval = def.TickInterval
	}
	if c.Gravity <= 0 {
		c.Gravity = def.Gravity
	}
	return c
}

// Listener receives idle transitions.
type Listener interface {
	OnIdleEntered()
	OnIdleExited()
}

// ListenerFuncs adapts plain functions to a Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Entered func()
	Exited  func()
}

func (l ListenerFuncs) OnIdleEntered() {
	if l.Entered != nil {
		l.Entered()
	}
}

func (l ListenerFuncs) OnIdleExited() {
	if l.Exited != nil {
		l.Exited()
	}
}

// State is a snapshot of the monitor.
type State struct {
	Running  bool
	Idle     bool
	Deadline time.Time
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock overrides the clock used for deadlines and the tick timer.
func WithClock(c timeutil.Clock) Option {
	return func(m *Monitor) { m.clock = c }
}

// WithSampleHook registers a function called with every sample and its
// deviation while the monitor is running. The hook runs under the monitor
// lock and must not block.
func WithSampleHook(h func(Sample, float64)) Option {
	return func(m *Monitor) { m.hook = h }
}

// Monitor debounces accelerometer samples into idle enter/exit events.
//
// Sample delivery, timer ticks and Stop serialize on one mutex. Listener
// callbacks run while it is held, so listeners must not call back into the
// Monitor.
type Monitor struct {
	cfg      Config
	listener Listener
	clock    timeutil.Clock
	hook     func(Sample, float64)

	mu       sync.Mutex
	running  bool
	idle     bool
	deadline time.Time
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewMonitor creates a stopped Monitor.
func NewMonitor(cfg Config, listener Listener, opts ...Option) *Monitor {
	m := &Monitor{
		cfg:      cfg.withDefaults(),
		listener: listener,
		clock:    timeutil.RealClock{},
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Config returns the effective configuration.
func (m *Monitor) Config() Config {
	return m.cfg
}

// Start arms the idle timer in the Active state and begins ticking until
// Stop is called or ctx is done. Starting a running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.idle = false
	m.deadline = m.clock.Now().Add(m.cfg.Timeout)
	m.stopCh = make(chan struct{})

	ticker := m.clock.NewTicker(m.cfg.TickInterval)
	stopCh := m.stopCh
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ctx.Done():
				m.stop(stopCh)
				return
			case <-ticker.C():
				m.OnTimerTick()
			}
		}
	}()
	logf("started: threshold=%.2f timeout=%s", m.cfg.Threshold, m.cfg.Timeout)
}

// Stop cancels the idle timer and discards the monitor state. Use Wait to
// block until the tick goroutine has exited.
func (m *Monitor) Stop() {
	m.stop(nil)
}

// stop ends the run owning stopCh, or the current run when stopCh is nil.
func (m *Monitor) stop(stopCh chan struct{}) {
	m.mu.Lock()
	if !m.running || (stopCh != nil && stopCh != m.stopCh) {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.idle = false
	m.deadline = time.Time{}
	close(m.stopCh)
	m.mu.Unlock()
	logf("stopped")
}

// Wait blocks until the tick goroutine of the last Start has exited.
func (m *Monitor) Wait() {
	m.wg.Wait()
}

// OnMotionSample feeds one accelerometer sample.
func (m *Monitor) OnMotionSample(s Sample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	dev := s.Deviation(m.cfg.Gravity)
	if m.hook != nil {
		m.hook(s, dev)
	}
	if dev <= m.cfg.Threshold {
		return
	}
	if m.idle {
		m.idle = false
		logf("motion detected (deviation %.2f), leaving idle", dev)
		if m.listener != nil {
			m.listener.OnIdleExited()
		}
	}
	m.deadline = m.clock.Now().Add(m.cfg.Timeout)
}

// OnTimerTick checks the idle deadline. The tick goroutine calls it on
// every TickInterval; it may also be called directly.
func (m *Monitor) OnTimerTick() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running || m.idle {
		return
	}
	if m.clock.Now().Before(m.deadline) {
		return
	}
	m.idle = true
	logf("no motion for %s, entering idle", m.cfg.Timeout)
	if m.listener != nil {
		m.listener.OnIdleEntered()
	}
}

// State returns a snapshot of the monitor.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{Running: m.running, Idle: m.idle, Deadline: m.deadline}
}
