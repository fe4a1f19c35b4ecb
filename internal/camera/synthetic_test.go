package camera

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/banshee-data/tofview/internal/depth"
	"github.com/banshee-data/tofview/internal/session"
	"github.com/banshee-data/tofview/internal/testutil"
	"github.com/banshee-data/tofview/internal/timeutil"
)

func TestRenderScene(t *testing.T) {
	frame := RenderScene(64, 48, 0)
	testutil.AssertNoError(t, frame.Validate())

	// The left band carries no data.
	for _, pt := range [][2]int{{0, 10}, {1, 47}} {
		if r := frame.Sample(pt[0], pt[1]).Range(); r != 0 {
			t.Errorf("Sample(%d, %d) = %d, want 0", pt[0], pt[1], r)
		}
	}

	// The plane recedes towards the bottom.
	if top := frame.Sample(60, 0).Range(); top != sceneNear {
		t.Errorf("top = %d, want %d", top, sceneNear)
	}
	if bottom := frame.Sample(60, 47).Range(); bottom != sceneFar {
		t.Errorf("bottom = %d, want %d", bottom, sceneFar)
	}

	// At phase zero the bump is centred and closer than the plane.
	centre := frame.Sample(32, 24).Range()
	plane := uint16(sceneNear + (sceneFar-sceneNear)*24/47)
	if centre >= plane {
		t.Errorf("bump centre %d not closer than plane %d", centre, plane)
	}
	if d := math.Abs(float64(plane) - sceneBumpDepth - float64(centre)); d > 2 {
		t.Errorf("bump centre %d is %.1f mm off its expected depth", centre, d)
	}

	// The bump moves between frames.
	later := RenderScene(64, 48, scenePeriod/4)
	if bytes.Equal(frame.Data, later.Data) {
		t.Error("scene did not change between phases")
	}

	out, err := depth.NewDecoder().Decode(frame, depth.DefaultPolicy())
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if out.Width != 48 {
		t.Errorf("decoded Width = %d, want 48", out.Width)
	}
}

func TestSynthetic_DeliversOnTicks(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	frames := make(chan depth.RawFrame, 4)
	cam := NewSynthetic(WithClock(clock))

	sess, err := cam.OpenSession(context.Background(), "tof0", func(f depth.RawFrame) { frames <- f })
	if err != nil {
		t.Fatalf("OpenSession() error = %v", err)
	}
	testutil.AssertNoError(t, sess.SetRepeatingCapture(session.CaptureConfig{Width: 16, Height: 8, FPS: 5}))

	testutil.WaitFor(t, time.Second, "ticker registered", func() bool { return clock.Tickers() == 1 })
	clock.Advance(200 * time.Millisecond)

	select {
	case f := <-frames:
		if f.Width != 16 || f.Height != 8 {
			t.Errorf("frame = %dx%d, want 16x8", f.Width, f.Height)
		}
		if !f.Timestamp.Equal(clock.Now()) {
			t.Errorf("Timestamp = %v, want %v", f.Timestamp, clock.Now())
		}
	case <-time.After(time.Second):
		t.Fatal("no frame delivered")
	}

	testutil.AssertNoError(t, sess.AbortCaptures())
	testutil.AssertNoError(t, sess.StopRepeating())
	if n := clock.Tickers(); n != 0 {
		t.Errorf("Tickers() after StopRepeating = %d, want 0", n)
	}
	testutil.AssertNoError(t, sess.Close())
	if err := sess.SetRepeatingCapture(session.DefaultCaptureConfig()); err == nil {
		t.Error("SetRepeatingCapture() succeeded on a closed session")
	}
}

func TestSynthetic_RejectsBadCapture(t *testing.T) {
	sess, err := NewSynthetic().OpenSession(context.Background(), "tof0", func(depth.RawFrame) {})
	if err != nil {
		t.Fatalf("OpenSession() error = %v", err)
	}
	defer sess.Close()
	for _, cfg := range []session.CaptureConfig{
		{Width: 0, Height: 8, FPS: 5},
		{Width: 8, Height: 8, FPS: 0},
	} {
		if err := sess.SetRepeatingCapture(cfg); err == nil {
			t.Errorf("SetRepeatingCapture(%+v) accepted", cfg)
		}
	}
}

func TestSynthetic_CancelledOpen(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSynthetic().OpenSession(ctx, "tof0", func(depth.RawFrame) {})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("OpenSession() error = %v, want context.Canceled", err)
	}
}

func TestSynthetic_DrivesLifecycle(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	handled := make(chan depth.RawFrame, 1)
	lc := session.New(session.Config{CameraID: "tof0", Capture: session.CaptureConfig{Width: 8, Height: 4, FPS: 10}},
		NewSynthetic(WithClock(clock)),
		session.FrameHandlerFunc(func(f depth.RawFrame) {
			select {
			case handled <- f:
			default:
			}
		}),
		nopDisplay{},
	)
	defer lc.Close()

	testutil.AssertNoError(t, lc.Resume(context.Background()))
	testutil.WaitFor(t, time.Second, "ticker registered", func() bool { return clock.Tickers() == 1 })
	clock.Advance(100 * time.Millisecond)
	select {
	case f := <-handled:
		if f.Width != 8 {
			t.Errorf("Width = %d, want 8", f.Width)
		}
	case <-time.After(time.Second):
		t.Fatal("frame not handled")
	}

	lc.Suspend()
	if n := clock.Tickers(); n != 0 {
		t.Errorf("Tickers() after Suspend = %d, want 0", n)
	}
}

type nopDisplay struct{}

func (nopDisplay) PresentFrame(depth.DecodedFrame) {}
func (nopDisplay) PresentBlank()                   {}
func (nopDisplay) PresentStatusText(string)        {}
func (nopDisplay) PresentRangeText(uint16, uint16) {}
