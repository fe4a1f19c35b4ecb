package monitor

import (
	"bytes"
	"encoding/json"
	"errors"
	"image/png"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/banshee-data/tofview/internal/depth"
	"github.com/banshee-data/tofview/internal/motion"
	"github.com/banshee-data/tofview/internal/testutil"
)

func decode(t *testing.T, w, h int, samples []uint16) depth.DecodedFrame {
	t.Helper()
	raw := depth.RawFrame{Width: w, Height: h, Data: testutil.PackDepth16(samples)}
	f, err := depth.NewDecoder().Decode(raw, depth.DynamicPolicy())
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	return *f
}

func TestSummarize(t *testing.T) {
	f := decode(t, 2, 2, []uint16{100, 0, 300, 200})

	got := Summarize(f)
	want := FrameSummary{
		Width:         2,
		Height:        2,
		Valid:         3,
		ValidFraction: 0.75,
		MinRange:      f.MinRange,
		MaxRange:      f.MaxRange,
		MeanRange:     200,
		StdDevRange:   100,
		MedianRange:   200,
		Policy:        "dynamic",
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("Summarize mismatch (-want +got):\n%s", diff)
	}
}

func TestSummarize_EdgeCases(t *testing.T) {
	t.Run("no valid samples", func(t *testing.T) {
		s := Summarize(decode(t, 1, 2, []uint16{0, 0}))
		if s.Valid != 0 || s.ValidFraction != 0 || s.MeanRange != 0 {
			t.Errorf("Summarize() = %+v, want no valid samples", s)
		}
	})
	t.Run("single valid sample", func(t *testing.T) {
		s := Summarize(decode(t, 1, 2, []uint16{0, 700}))
		if s.Valid != 1 || s.MeanRange != 700 {
			t.Errorf("Valid, MeanRange = %d, %v, want 1, 700", s.Valid, s.MeanRange)
		}
		if s.StdDevRange != 0 || math.IsNaN(s.StdDevRange) {
			t.Errorf("StdDevRange = %v, want 0", s.StdDevRange)
		}
	})
}

func TestMotionHistory_Ring(t *testing.T) {
	h := NewMotionHistory(3)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		h.Record(motion.Sample{Z: motion.StandardGravity, Timestamp: base.Add(time.Duration(i) * time.Second)}, float64(i))
	}

	pts := h.Points()
	if len(pts) != 3 {
		t.Fatalf("Points() = %d points, want 3", len(pts))
	}
	for i, p := range pts {
		if p.Deviation != float64(i+2) {
			t.Errorf("point %d Deviation = %v, want %d", i, p.Deviation, i+2)
		}
		if math.Abs(p.Magnitude-motion.StandardGravity) > 1e-9 {
			t.Errorf("point %d Magnitude = %v", i, p.Magnitude)
		}
	}
	if n := h.Total(); n != 5 {
		t.Errorf("Total() = %d, want 5", n)
	}

	partial := NewMotionHistory(4)
	partial.Record(motion.Sample{}, 1)
	if n := len(partial.Points()); n != 1 {
		t.Errorf("partial Points() = %d points, want 1", n)
	}
}

func TestRenderHistogram(t *testing.T) {
	var buf bytes.Buffer
	testutil.AssertNoError(t, RenderHistogram(&buf, []float64{100, 200, 200, 300, 1200}, 8, "test"))
	if _, err := png.Decode(&buf); err != nil {
		t.Fatalf("png.Decode() error = %v", err)
	}

	if err := RenderHistogram(&buf, nil, 8, "empty"); !errors.Is(err, ErrNoData) {
		t.Errorf("RenderHistogram(nil) error = %v, want ErrNoData", err)
	}
}

func TestRenderMotionChart(t *testing.T) {
	var buf bytes.Buffer
	pts := []MotionPoint{{Time: time.Unix(0, 0), Deviation: 0.1}, {Time: time.Unix(1, 0), Deviation: 0.9}}
	testutil.AssertNoError(t, RenderMotionChart(&buf, pts, 0.5))
	html := buf.String()
	for _, want := range []string{"Deviation from gravity", "threshold"} {
		if !strings.Contains(html, want) {
			t.Errorf("chart does not mention %q", want)
		}
	}
}

func TestDiagnostics_AdminRoutes(t *testing.T) {
	d := NewDiagnostics(16, 0.5)
	mux := http.NewServeMux()
	d.AttachAdminRoutes(mux)

	serve := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, testutil.LocalRequest(http.MethodGet, path, nil))
		return w
	}

	// No frame yet.
	w := serve("/debug/tof-histogram")
	testutil.AssertStatusCode(t, w.Code, http.StatusNotFound)

	d.ObserveFrame(decode(t, 2, 2, []uint16{100, 0, 300, 200}))
	d.ObserveMalformed(nil)
	d.ObserveMotion(motion.Sample{Z: 10}, 0.19)

	w = serve("/debug/tof-stats")
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	var snap DiagnosticsSnapshot
	testutil.AssertNoError(t, json.NewDecoder(w.Body).Decode(&snap))
	if snap.Frames != 1 || snap.Malformed != 1 || snap.MotionSamples != 1 {
		t.Errorf("counters = %d frames, %d malformed, %d motion, want 1 each", snap.Frames, snap.Malformed, snap.MotionSamples)
	}
	if snap.Last == nil {
		t.Fatal("snapshot has no last frame")
	}
	if snap.Last.Valid != 3 {
		t.Errorf("Last.Valid = %d, want 3", snap.Last.Valid)
	}

	w = serve("/debug/tof-histogram?bins=4")
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("histogram Content-Type = %q", ct)
	}

	w = serve("/debug/tof-histogram?bins=zero")
	testutil.AssertStatusCode(t, w.Code, http.StatusBadRequest)

	w = serve("/debug/motion-chart")
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("chart Content-Type = %q", ct)
	}
}
