package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/banshee-data/tofview/internal/depth"
)

type frameJob struct {
	frame    depth.RawFrame
	released chan struct{}
}

// worker is the background goroutine that owns the capture session and
// runs the frame handler. Exactly one exists per Opening/Streaming run.
type worker struct {
	runID   string
	handler FrameHandler

	frames chan frameJob
	stopCh chan struct{}
	done   chan struct{}

	mu      sync.Mutex
	stopped bool
	session Session
}

func newWorker(runID string, handler FrameHandler) *worker {
	w := &worker{
		runID:   runID,
		handler: handler,
		frames:  make(chan frameJob),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *worker) loop() {
	defer close(w.done)
	for {
		select {
		case <-w.stopCh:
			return
		case job := <-w.frames:
			w.handler.HandleFrame(job.frame)
			close(job.released)
		}
	}
}

// deliver is the DeliverFunc handed to the opener.
func (w *worker) deliver(frame depth.RawFrame) {
	job := frameJob{frame: frame, released: make(chan struct{})}
	select {
	case w.frames <- job:
	case <-w.stopCh:
		return
	}
	<-job.released
}

func (w *worker) alive() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.stopped
}

// open opens and configures a session, then hands it to the worker. A
// session that cannot be handed over is closed before returning.
func (w *worker) open(ctx context.Context, opener Opener, cameraID string, capture CaptureConfig) (Session, error) {
	if !w.alive() {
		return nil, ErrHandlerUnavailable
	}
	sess, err := opener.OpenSession(ctx, cameraID, w.deliver)
	if err != nil {
		return nil, err
	}
	if err := sess.SetRepeatingCapture(capture); err != nil {
		_ = sess.Close()
		return nil, fmt.Errorf("%w: %w", ErrSessionConfigurationFailed, err)
	}
	if !w.attach(sess) {
		closeSession(sess)
		return nil, ErrHandlerUnavailable
	}
	return sess, nil
}

func (w *worker) attach(sess Session) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return false
	}
	w.session = sess
	return true
}

// stop closes the attached session and waits for the handler loop to exit.
// A frame already being handled runs to completion first.
func (w *worker) stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.stopped = true
	sess := w.session
	w.session = nil
	w.mu.Unlock()

	if sess != nil {
		closeSession(sess)
	}
	close(w.stopCh)
	<-w.done
}

func closeSession(sess Session) {
	if err := sess.AbortCaptures(); err != nil {
		logf("abort captures: %v", err)
	}
	if err := sess.StopRepeating(); err != nil {
		logf("stop repeating: %v", err)
	}
	if err := sess.Close(); err != nil {
		logf("close session: %v", err)
	}
}
