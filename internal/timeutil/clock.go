// Package timeutil provides a testable abstraction over time operations.
package timeutil

import (
	"sort"
	"sync"
	"time"
)

// Clock provides the time operations used by the idle monitor, the
// synthetic camera and the session lifecycle.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	// NewTicker returns a ticker that delivers the clock time every d.
	// Ticks for a slow receiver are dropped, as with time.Ticker.
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers periodic ticks until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock is the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time                  { return time.Now() }
func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }

func (RealClock) NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// MockClock only moves when told to. Advance fires every ticker whose
// deadline falls inside the advanced span, earliest deadline first.
type MockClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers map[*MockTicker]struct{}
}

// NewMockClock returns a MockClock reading t.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t, tickers: make(map[*MockTicker]struct{})}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Set jumps to t without firing tickers. Pending deadlines are kept.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d. A ticker that missed several
// periods receives one tick stamped with its last missed deadline, and its
// next deadline stays on the original period grid.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	due := make([]*MockTicker, 0, len(c.tickers))
	for t := range c.tickers {
		if !t.next.After(now) {
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].next.Before(due[j].next) })
	for _, t := range due {
		missed := now.Sub(t.next) / t.period
		at := t.next.Add(missed * t.period)
		t.next = at.Add(t.period)
		t.send(at)
	}
	c.mu.Unlock()
}

// NewTicker registers a MockTicker whose first deadline is d from now.
func (c *MockClock) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("timeutil: non-positive interval for NewTicker")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &MockTicker{
		clock:  c,
		ch:     make(chan time.Time, 1),
		period: d,
		next:   c.now.Add(d),
	}
	c.tickers[t] = struct{}{}
	return t
}

// Tickers returns how many tickers are registered and not stopped.
func (c *MockClock) Tickers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers)
}

// MockTicker is a ticker driven by a MockClock. Its fields are guarded by
// the owning clock's mutex.
type MockTicker struct {
	clock  *MockClock
	ch     chan time.Time
	period time.Duration
	next   time.Time
}

func (t *MockTicker) C() <-chan time.Time { return t.ch }

// Stop detaches the ticker from its clock. A tick already buffered stays
// readable.
func (t *MockTicker) Stop() {
	t.clock.mu.Lock()
	delete(t.clock.tickers, t)
	t.clock.mu.Unlock()
}

// Stopped reports whether Stop has been called.
func (t *MockTicker) Stopped() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	_, ok := t.clock.tickers[t]
	return !ok
}

// Trigger delivers a tick stamped now, regardless of the clock.
func (t *MockTicker) Trigger(now time.Time) {
	t.send(now)
}

func (t *MockTicker) send(at time.Time) {
	select {
	case t.ch <- at:
	default:
	}
}
