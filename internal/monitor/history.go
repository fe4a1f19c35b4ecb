package monitor

import (
	"sync"
	"time"

	"github.com/banshee-data/tofview/internal/motion"
)

// MotionPoint is one accelerometer sample as the idle monitor saw it.
type MotionPoint struct {
	Time      time.Time `json:"time"`
	Magnitude float64   `json:"magnitude"`
	Deviation float64   `json:"deviation"`
}

// MotionHistory is a fixed-size ring of recent motion samples.
type MotionHistory struct {
	mu    sync.Mutex
	buf   []MotionPoint
	next  int
	full  bool
	total uint64
}

// NewMotionHistory returns a history holding up to capacity points.
func NewMotionHistory(capacity int) *MotionHistory {
	if capacity <= 0 {
		capacity = 1
	}
	return &MotionHistory{buf: make([]MotionPoint, capacity)}
}

// Record appends a sample, evicting the oldest when full. Its signature
// matches the idle monitor's sample hook.
func (h *MotionHistory) Record(s motion.Sample, deviation float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf[h.next] = MotionPoint{Time: s.Timestamp, Magnitude: s.Magnitude(), Deviation: deviation}
	h.next = (h.next + 1) % len(h.buf)
	if h.next == 0 {
		h.full = true
	}
	h.total++
}

// Points returns the retained samples, oldest first.
func (h *MotionHistory) Points() []MotionPoint {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.full {
		return append([]MotionPoint(nil), h.buf[:h.next]...)
	}
	out := make([]MotionPoint, 0, len(h.buf))
	out = append(out, h.buf[h.next:]...)
	return append(out, h.buf[:h.next]...)
}

// Total returns how many samples have ever been recorded.
func (h *MotionHistory) Total() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}
