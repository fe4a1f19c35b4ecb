package camera

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/tofview/internal/depth"
	"github.com/banshee-data/tofview/internal/session"
	"github.com/banshee-data/tofview/internal/timeutil"
)

var errSessionClosed = errors.New("session closed")

// Scene parameters for the synthetic camera, in millimetres.
const (
	sceneNear      = 600
	sceneFar       = 2000
	sceneBumpDepth = 400
	scenePeriod    = 50 // frames per bump sweep
)

// RenderScene draws frame n of the synthetic scene: a plane tilting away
// from the sensor towards the bottom of the image, a hemispherical bump
// sweeping left and right, and a band of no-data samples down the left
// edge.
func RenderScene(width, height int, n uint64) depth.RawFrame {
	data := make([]byte, width*height*depth.BytesPerSample)
	phase := 2 * math.Pi * float64(n%scenePeriod) / scenePeriod
	cx := float64(width)/2 + float64(width)/4*math.Sin(phase)
	cy := float64(height) / 2
	radius := max(float64(min(width, height))/5, 1)
	band := max(width/32, 1)

	for y := 0; y < height; y++ {
		base := float64(sceneNear)
		if height > 1 {
			base += float64(sceneFar-sceneNear) * float64(y) / float64(height-1)
		}
		for x := 0; x < width; x++ {
			r := base
			dx, dy := float64(x)-cx, float64(y)-cy
			if d2 := (dx*dx + dy*dy) / (radius * radius); d2 < 1 {
				r -= sceneBumpDepth * math.Sqrt(1-d2)
			}
			var s depth.Sample
			if x >= band {
				s = depth.NewSample(uint16(math.Round(r)), 0)
			}
			binary.LittleEndian.PutUint16(data[(y*width+x)*depth.BytesPerSample:], uint16(s))
		}
	}
	return depth.RawFrame{Width: width, Height: height, Data: data}
}

// Synthetic is an Opener that renders frames in-process.
type Synthetic struct {
	clock timeutil.Clock
}

// NewSynthetic returns a synthetic camera.
func NewSynthetic(opts ...Option) *Synthetic {
	return &Synthetic{clock: buildOptions(opts).clock}
}

// OpenSession implements session.Opener.
func (s *Synthetic) OpenSession(ctx context.Context, cameraID string, deliver session.DeliverFunc) (session.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logf("synthetic camera %q opened", cameraID)
	return &syntheticSession{cameraID: cameraID, clock: s.clock, deliver: deliver}, nil
}

type syntheticSession struct {
	cameraID string
	clock    timeutil.Clock
	deliver  session.DeliverFunc
	frames   atomic.Uint64

	mu     sync.Mutex
	closed bool
	stopCh chan struct{}
	done   chan struct{}
}

func (s *syntheticSession) SetRepeatingCapture(c session.CaptureConfig) error {
	if err := validateCapture(c); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSessionClosed
	}
	s.stopLocked()
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(c, s.stopCh, s.done)
	return nil
}

func (s *syntheticSession) run(c session.CaptureConfig, stopCh, done chan struct{}) {
	defer close(done)
	ticker := s.clock.NewTicker(frameInterval(c.FPS))
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C():
			n := s.frames.Add(1) - 1
			frame := RenderScene(c.Width, c.Height, n)
			frame.Timestamp = s.clock.Now()
			s.deliver(frame)
		}
	}
}

// AbortCaptures is a no-op: delivery is synchronous, so nothing is queued.
func (s *syntheticSession) AbortCaptures() error {
	return nil
}

func (s *syntheticSession) StopRepeating() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	return nil
}

func (s *syntheticSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	if !s.closed {
		s.closed = true
		logf("synthetic camera %q closed after %d frames", s.cameraID, s.frames.Load())
	}
	return nil
}

func (s *syntheticSession) stopLocked() {
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	<-s.done
	s.stopCh, s.done = nil, nil
}

var _ session.Opener = (*Synthetic)(nil)
