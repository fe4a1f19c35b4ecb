// Package display renders decoded depth frames into a fixed-size view and
// republishes them, with the status and range text, over HTTP and gRPC.
package display

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/tofview/internal/depth"
	"github.com/banshee-data/tofview/internal/monitoring"
	"github.com/banshee-data/tofview/internal/timeutil"
)

var logf = monitoring.Prefixed("Display")

// FormatRange renders the per-frame range text.
func FormatRange(min, max uint16) string {
	return fmt.Sprintf("Range: %d mm to %d mm", min, max)
}

// EventKind identifies what changed on the surface.
type EventKind string

const (
	EventFrame  EventKind = "frame"
	EventBlank  EventKind = "blank"
	EventStatus EventKind = "status"
	EventRange  EventKind = "range"
)

// Event is published to subscribers on every surface change.
type Event struct {
	Kind      EventKind `json:"kind"`
	Seq       uint64    `json:"seq"`
	Status    string    `json:"status,omitempty"`
	RangeText string    `json:"range_text,omitempty"`
	MinRange  uint16    `json:"min_range"`
	MaxRange  uint16    `json:"max_range"`
	Policy    string    `json:"policy,omitempty"`
	Time      time.Time `json:"time"`
}

// Snapshot is the current surface state without the image.
type Snapshot struct {
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Status    string    `json:"status"`
	RangeText string    `json:"range_text"`
	MinRange  uint16    `json:"min_range"`
	MaxRange  uint16    `json:"max_range"`
	Policy    string    `json:"policy"`
	Blank     bool      `json:"blank"`
	Frames    uint64    `json:"frames"`
	Seq       uint64    `json:"seq"`
	Updated   time.Time `json:"updated"`
}

// Option configures a Surface.
type Option func(*Surface)

// WithClock sets the clock used to timestamp events.
func WithClock(c timeutil.Clock) Option {
	return func(s *Surface) { s.clock = c }
}

// WithSubscriberBuffer sets the per-subscriber event buffer. Events are
// dropped for subscribers whose buffer is full.
func WithSubscriberBuffer(n int) Option {
	return func(s *Surface) {
		if n > 0 {
			s.subBuffer = n
		}
	}
}

// Surface is the view the camera session draws into. It implements
// session.Display.
type Surface struct {
	width, height int
	clock         timeutil.Clock
	subBuffer     int

	mu        sync.RWMutex
	view      *image.NRGBA
	status    string
	rangeText string
	minRange  uint16
	maxRange  uint16
	policy    string
	blank     bool
	frames    uint64
	seq       uint64
	updated   time.Time

	subMu       sync.Mutex
	subscribers map[string]chan Event
}

// NewSurface returns a black width x height surface.
func NewSurface(width, height int, opts ...Option) *Surface {
	s := &Surface{
		width:       width,
		height:      height,
		clock:       timeutil.RealClock{},
		subBuffer:   8,
		view:        Blank(width, height),
		blank:       true,
		subscribers: make(map[string]chan Event),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Size returns the view dimensions.
func (s *Surface) Size() (int, int) { return s.width, s.height }

// PresentFrame scales f into the view.
func (s *Surface) PresentFrame(f depth.DecodedFrame) {
	view := Fit(f.Image(), s.width, s.height)

	s.mu.Lock()
	s.view = view
	s.blank = false
	s.frames++
	s.minRange, s.maxRange = f.MinRange, f.MaxRange
	s.policy = f.Policy.String()
	s.publish(s.eventLocked(EventFrame))
	s.mu.Unlock()
}

// PresentBlank paints the whole view opaque black.
func (s *Surface) PresentBlank() {
	s.mu.Lock()
	s.view = Blank(s.width, s.height)
	s.blank = true
	s.publish(s.eventLocked(EventBlank))
	s.mu.Unlock()

	logf("view blanked")
}

// PresentStatusText replaces the status line. An empty string clears it.
func (s *Surface) PresentStatusText(text string) {
	s.mu.Lock()
	if s.status == text {
		s.mu.Unlock()
		return
	}
	s.status = text
	s.publish(s.eventLocked(EventStatus))
	s.mu.Unlock()

	if text != "" {
		logf("status: %s", text)
	}
}

// PresentRangeText replaces the range line.
func (s *Surface) PresentRangeText(min, max uint16) {
	s.mu.Lock()
	s.rangeText = FormatRange(min, max)
	s.minRange, s.maxRange = min, max
	s.publish(s.eventLocked(EventRange))
	s.mu.Unlock()
}

func (s *Surface) eventLocked(kind EventKind) Event {
	s.seq++
	s.updated = s.clock.Now()
	return Event{
		Kind:      kind,
		Seq:       s.seq,
		Status:    s.status,
		RangeText: s.rangeText,
		MinRange:  s.minRange,
		MaxRange:  s.maxRange,
		Policy:    s.policy,
		Time:      s.updated,
	}
}

// Snapshot returns the current state.
func (s *Surface) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Width:     s.width,
		Height:    s.height,
		Status:    s.status,
		RangeText: s.rangeText,
		MinRange:  s.minRange,
		MaxRange:  s.maxRange,
		Policy:    s.policy,
		Blank:     s.blank,
		Frames:    s.frames,
		Seq:       s.seq,
		Updated:   s.updated,
	}
}

// View returns the current view image. The result is shared and must not
// be modified.
func (s *Surface) View() *image.NRGBA {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// EncodePNG writes the current view as PNG.
func (s *Surface) EncodePNG(w io.Writer) error {
	return png.Encode(w, s.View())
}

// Subscribe registers for surface events.
func (s *Surface) Subscribe() (string, <-chan Event) {
	id := uuid.NewString()
	ch := make(chan Event, s.subBuffer)

	s.subMu.Lock()
	s.subscribers[id] = ch
	s.subMu.Unlock()
	return id, ch
}

// Unsubscribe removes and closes a subscription.
func (s *Surface) Unsubscribe(id string) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		delete(s.subscribers, id)
		close(ch)
	}
}

// publish is called with mu held so subscribers see events in Seq order.
func (s *Surface) publish(ev Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}
