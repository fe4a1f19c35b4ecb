package session

import (
	"context"
	"sync"

	"github.com/banshee-data/tofview/internal/depth"
)

type fakeSession struct {
	mu         sync.Mutex
	calls      []string
	capture    CaptureConfig
	captureErr error
}

func (s *fakeSession) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *fakeSession) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *fakeSession) SetRepeatingCapture(c CaptureConfig) error {
	s.record("repeat")
	s.mu.Lock()
	s.capture = c
	s.mu.Unlock()
	return s.captureErr
}

func (s *fakeSession) AbortCaptures() error {
	s.record("abort")
	return nil
}

func (s *fakeSession) StopRepeating() error {
	s.record("stop")
	return nil
}

func (s *fakeSession) Close() error {
	s.record("close")
	return nil
}

type fakeOpener struct {
	mu       sync.Mutex
	opens    int
	cameraID string
	deliver  DeliverFunc
	sessions []*fakeSession

	openErr    error
	captureErr error
	// gate, when set, blocks OpenSession until closed; entered is
	// signalled once OpenSession has been called.
	gate    chan struct{}
	entered chan struct{}
}

func (o *fakeOpener) OpenSession(ctx context.Context, cameraID string, deliver DeliverFunc) (Session, error) {
	o.mu.Lock()
	o.opens++
	o.cameraID = cameraID
	o.deliver = deliver
	gate, entered := o.gate, o.entered
	o.mu.Unlock()

	if entered != nil {
		close(entered)
	}
	if gate != nil {
		<-gate
	}
	if o.openErr != nil {
		return nil, o.openErr
	}
	s := &fakeSession{captureErr: o.captureErr}
	o.mu.Lock()
	o.sessions = append(o.sessions, s)
	o.mu.Unlock()
	return s, nil
}

func (o *fakeOpener) Opens() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens
}

func (o *fakeOpener) Deliver() DeliverFunc {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.deliver
}

func (o *fakeOpener) Session(i int) *fakeSession {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessions[i]
}

type fakeDisplay struct {
	mu       sync.Mutex
	frames   int
	blanks   int
	statuses []string
	ranges   [][2]uint16
}

func (d *fakeDisplay) PresentFrame(depth.DecodedFrame) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames++
}

func (d *fakeDisplay) PresentBlank() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.blanks++
}

func (d *fakeDisplay) PresentStatusText(s string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.statuses = append(d.statuses, s)
}

func (d *fakeDisplay) PresentRangeText(min, max uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ranges = append(d.ranges, [2]uint16{min, max})
}

func (d *fakeDisplay) Blanks() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.blanks
}

func (d *fakeDisplay) Statuses() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.statuses...)
}

type recordingObserver struct {
	mu          sync.Mutex
	transitions []Transition
}

func (r *recordingObserver) OnTransition(t Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, t)
}

func (r *recordingObserver) Steps() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, t := range r.transitions {
		out = append(out, t.From.String()+"->"+t.To.String()+":"+string(t.Cause))
	}
	return out
}

func (r *recordingObserver) Last() Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transitions[len(r.transitions)-1]
}
