package session

import (
	"context"

	"github.com/banshee-data/tofview/internal/depth"
)

// CaptureConfig is the repeating capture request.
type CaptureConfig struct {
	Width  int
	Height int
	FPS    int
}

// DefaultCaptureConfig is 640x480 DEPTH16 at 5 frames per second.
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{Width: 640, Height: 480, FPS: 5}
}

// DeliverFunc hands one raw frame to the background worker. It blocks until
// the frame has been decoded and presented, so at most one frame is in
// flight. It returns immediately once the worker has stopped.
type DeliverFunc func(depth.RawFrame)

// Opener opens capture sessions on a camera.
type Opener interface {
	// OpenSession opens cameraID and arranges for frames to be passed to
	// deliver once a repeating capture is set. ctx bounds the open only.
	OpenSession(ctx context.Context, cameraID string, deliver DeliverFunc) (Session, error)
}

// Session is an open capture session.
type Session interface {
	SetRepeatingCapture(CaptureConfig) error
	AbortCaptures() error
	StopRepeating() error
	Close() error
}

// FrameHandler processes raw frames on the background worker.
type FrameHandler interface {
	HandleFrame(depth.RawFrame)
}

// FrameHandlerFunc adapts a function to a FrameHandler.
type FrameHandlerFunc func(depth.RawFrame)

func (f FrameHandlerFunc) HandleFrame(raw depth.RawFrame) { f(raw) }

// FrameSink shows decoded frames.
type FrameSink interface {
	PresentFrame(depth.DecodedFrame)
	PresentBlank()
}

// StatusSink shows status and range text.
type StatusSink interface {
	PresentStatusText(string)
	PresentRangeText(min, max uint16)
}

// Display is everything the lifecycle and frame processor show.
type Display interface {
	FrameSink
	StatusSink
}

// Observer is notified of every transition. It runs under the lifecycle
// lock and must not call back into the Lifecycle.
type Observer interface {
	OnTransition(Transition)
}

// ObserverFunc adapts a function to an Observer.
type ObserverFunc func(Transition)

func (f ObserverFunc) OnTransition(t Transition) { f(t) }
