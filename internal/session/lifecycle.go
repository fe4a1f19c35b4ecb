// Package session owns the depth camera capture session and the background
// worker that decodes its frames, switching between streaming and paused as
// the app is foregrounded, backgrounded or left idle.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/banshee-data/tofview/internal/monitoring"
	"github.com/banshee-data/tofview/internal/timeutil"
)

var logf = monitoring.Prefixed("Lifecycle")

// Config selects the camera and capture request.
type Config struct {
	CameraID string
	Capture  CaptureConfig
}

// Option configures a Lifecycle.
type Option func(*Lifecycle)

// WithClock sets the clock used to timestamp transitions.
func WithClock(c timeutil.Clock) Option {
	return func(l *Lifecycle) { l.clock = c }
}

// WithObserver adds a transition observer.
func WithObserver(o Observer) Option {
	return func(l *Lifecycle) { l.observers = append(l.observers, o) }
}

// WithRunIDs overrides run ID generation.
func WithRunIDs(next func() string) Option {
	return func(l *Lifecycle) { l.newRunID = next }
}

// Lifecycle is the capture session state machine.
//
// Every transition serializes on one mutex. Display and observer calls are
// made while it is held, so a suspend's blank frame is shown exactly once
// and observers see transitions in order.
type Lifecycle struct {
	cfg       Config
	opener    Opener
	handler   FrameHandler
	display   Display
	observers []Observer
	clock     timeutil.Clock
	newRunID  func() string

	mu         sync.Mutex
	state      State
	gen        uint64
	runID      string
	worker     *worker
	cancelOpen context.CancelFunc
}

// New returns a Lifecycle in the Closed state.
func New(cfg Config, opener Opener, handler FrameHandler, display Display, opts ...Option) *Lifecycle {
	if cfg.Capture == (CaptureConfig{}) {
		cfg.Capture = DefaultCaptureConfig()
	}
	l := &Lifecycle{
		cfg:      cfg,
		opener:   opener,
		handler:  handler,
		display:  display,
		clock:    timeutil.RealClock{},
		newRunID: uuid.NewString,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// RunID identifies the most recent Opening run.
func (l *Lifecycle) RunID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.runID
}

// Resume opens the capture session from Closed or Paused. It is a no-op
// while Opening or Streaming. ctx bounds the open only. On failure the
// lifecycle lands in Closed, the error is shown as status text and
// returned; nothing is retried.
func (l *Lifecycle) Resume(ctx context.Context) error {
	return l.resume(ctx, CauseResume)
}

// Suspend closes the capture session and stops the worker. It is a no-op
// while Paused or Closed.
func (l *Lifecycle) Suspend() {
	l.suspend(CauseSuspend, StatusPaused)
}

// OnIdleEntered suspends capture because the device is at rest.
func (l *Lifecycle) OnIdleEntered() {
	l.suspend(CauseIdle, StatusIdle)
}

// OnIdleExited resumes capture because the device moved.
func (l *Lifecycle) OnIdleExited() {
	if err := l.resume(context.Background(), CauseMotion); err != nil {
		logf("resume on motion failed: %v", err)
	}
}

// Close tears down any session and worker and lands in Closed.
func (l *Lifecycle) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == Closed && l.worker == nil {
		return
	}
	wasActive := l.state == Opening || l.state == Streaming
	l.teardown()
	l.transition(Closed, CauseShutdown, nil)
	if wasActive {
		l.display.PresentBlank()
	}
}

func (l *Lifecycle) resume(ctx context.Context, cause Cause) error {
	l.mu.Lock()
	if l.state == Opening || l.state == Streaming {
		l.mu.Unlock()
		return nil
	}
	l.gen++
	gen := l.gen
	l.runID = l.newRunID()
	w := newWorker(l.runID, l.handler)
	openCtx, cancel := context.WithCancel(ctx)
	l.worker = w
	l.cancelOpen = cancel
	l.transition(Opening, cause, nil)
	l.display.PresentStatusText(StatusStarting)
	l.mu.Unlock()

	_, err := w.open(openCtx, l.opener, l.cfg.CameraID, l.cfg.Capture)

	l.mu.Lock()
	defer l.mu.Unlock()
	cancel()
	if l.gen != gen {
		// Superseded by Suspend or Close, which already stopped w and
		// with it any session it attached.
		if err != nil && !errors.Is(err, ErrHandlerUnavailable) && !errors.Is(err, context.Canceled) {
			logf("superseded open of run %s failed: %v", w.runID, err)
		}
		return nil
	}
	l.cancelOpen = nil
	if err != nil {
		l.worker = nil
		w.stop()
		l.transition(Closed, CauseFailed, err)
		l.display.PresentStatusText(statusForError(err))
		return err
	}
	l.transition(Streaming, CauseConfigured, nil)
	return nil
}

func (l *Lifecycle) suspend(cause Cause, status string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == Paused || l.state == Closed {
		return
	}
	l.teardown()
	l.transition(Paused, cause, nil)
	l.display.PresentBlank()
	l.display.PresentStatusText(status)
}

// teardown cancels any open in progress and stops the worker, which closes
// its session. Callers hold l.mu.
func (l *Lifecycle) teardown() {
	l.gen++
	if l.cancelOpen != nil {
		l.cancelOpen()
		l.cancelOpen = nil
	}
	if l.worker != nil {
		l.worker.stop()
		l.worker = nil
	}
}

// transition moves to state to and notifies observers. Callers hold l.mu.
func (l *Lifecycle) transition(to State, cause Cause, err error) {
	t := Transition{
		RunID: l.runID,
		From:  l.state,
		To:    to,
		Cause: cause,
		Err:   err,
		At:    l.clock.Now(),
	}
	l.state = to
	if err != nil {
		logf("%s -> %s (%s, run %s): %v", t.From, t.To, cause, t.RunID, err)
	} else {
		logf("%s -> %s (%s, run %s)", t.From, t.To, cause, t.RunID)
	}
	for _, o := range l.observers {
		o.OnTransition(t)
	}
}
