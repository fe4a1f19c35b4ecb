package monitor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"tailscale.com/tsweb"

	"github.com/banshee-data/tofview/internal/depth"
	"github.com/banshee-data/tofview/internal/motion"
)

// Diagnostics collects the latest frame statistics and recent motion.
type Diagnostics struct {
	history   *MotionHistory
	threshold float64

	mu        sync.RWMutex
	last      FrameSummary
	hasLast   bool
	ranges    []float64
	frames    uint64
	malformed uint64
}

// NewDiagnostics keeps historySize motion samples and charts them against
// threshold.
func NewDiagnostics(historySize int, threshold float64) *Diagnostics {
	return &Diagnostics{
		history:   NewMotionHistory(historySize),
		threshold: threshold,
	}
}

// History returns the motion history.
func (d *Diagnostics) History() *MotionHistory { return d.history }

// ObserveFrame summarises f and keeps its valid ranges for the histogram.
func (d *Diagnostics) ObserveFrame(f depth.DecodedFrame) FrameSummary {
	s, valid := summarize(f)
	d.mu.Lock()
	d.last = s
	d.hasLast = true
	d.ranges = valid
	d.frames++
	d.mu.Unlock()
	return s
}

// ObserveMalformed counts a frame that failed to decode.
func (d *Diagnostics) ObserveMalformed(error) {
	d.mu.Lock()
	d.malformed++
	d.mu.Unlock()
}

// ObserveMotion records a sample. It can be installed as the idle
// monitor's sample hook.
func (d *Diagnostics) ObserveMotion(s motion.Sample, deviation float64) {
	d.history.Record(s, deviation)
}

// LastSummary returns the summary of the most recent frame.
func (d *Diagnostics) LastSummary() (FrameSummary, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.last, d.hasLast
}

// Counts returns decoded and malformed frame totals.
func (d *Diagnostics) Counts() (frames, malformed uint64) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.frames, d.malformed
}

func (d *Diagnostics) lastRanges() []float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.ranges
}

// DiagnosticsSnapshot is served by /debug/tof-stats.
type DiagnosticsSnapshot struct {
	Frames        uint64        `json:"frames"`
	Malformed     uint64        `json:"malformed"`
	MotionSamples uint64        `json:"motion_samples"`
	Last          *FrameSummary `json:"last,omitempty"`
}

// Snapshot returns the current counters and last summary.
func (d *Diagnostics) Snapshot() DiagnosticsSnapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	snap := DiagnosticsSnapshot{
		Frames:        d.frames,
		Malformed:     d.malformed,
		MotionSamples: d.history.Total(),
	}
	if d.hasLast {
		last := d.last
		snap.Last = &last
	}
	return snap
}

// AttachAdminRoutes attaches the diagnostics pages under /debug/.
func (d *Diagnostics) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("tof-stats", "depth stream statistics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(d.Snapshot())
	})

	debug.HandleFunc("tof-histogram", "range histogram of the last frame (PNG)", func(w http.ResponseWriter, r *http.Request) {
		bins := 32
		if s := r.URL.Query().Get("bins"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 || n > 1024 {
				http.Error(w, "bins must be between 1 and 1024", http.StatusBadRequest)
				return
			}
			bins = n
		}
		title := "Last frame"
		if s, ok := d.LastSummary(); ok {
			title = fmt.Sprintf("Last frame (%s, %d valid)", s.Policy, s.Valid)
		}

		var buf bytes.Buffer
		if err := RenderHistogram(&buf, d.lastRanges(), bins, title); err != nil {
			if errors.Is(err, ErrNoData) {
				http.Error(w, "no frame yet", http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(buf.Bytes())
	})

	debug.HandleFunc("motion-chart", "accelerometer deviation chart", func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		if err := RenderMotionChart(&buf, d.history.Points(), d.threshold); err != nil {
			http.Error(w, fmt.Sprintf("render error: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(buf.Bytes())
	})
}
