package camera

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/banshee-data/tofview/internal/depth"
	"github.com/banshee-data/tofview/internal/session"
	"github.com/banshee-data/tofview/internal/timeutil"
)

// ReplayConfig configures a pcap replay camera.
type ReplayConfig struct {
	Path string
	// UDPPort filters datagrams by destination port. Zero accepts all.
	UDPPort int
	// Loop restarts the capture at end of file.
	Loop bool
}

// payloadSource yields UDP payloads from a capture, returning io.EOF at
// the end.
type payloadSource interface {
	Next() ([]byte, time.Time, error)
	Close() error
}

// udpPayload extracts the UDP payload of packet if it matches port.
func udpPayload(packet gopacket.Packet, port int) []byte {
	l := packet.Layer(layers.LayerTypeUDP)
	if l == nil {
		return nil
	}
	udp, ok := l.(*layers.UDP)
	if !ok {
		return nil
	}
	if port != 0 && int(udp.DstPort) != port {
		return nil
	}
	return udp.Payload
}

// Replay is an Opener that plays back a packet capture of a Network camera,
// pacing frames at the capture FPS.
type Replay struct {
	cfg   ReplayConfig
	clock timeutil.Clock
}

// NewReplay returns a replay camera for cfg.Path.
func NewReplay(cfg ReplayConfig, opts ...Option) *Replay {
	return &Replay{cfg: cfg, clock: buildOptions(opts).clock}
}

// OpenSession opens the capture file.
func (r *Replay) OpenSession(ctx context.Context, cameraID string, deliver session.DeliverFunc) (session.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src, err := openPayloadSource(r.cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", session.ErrResourceUnavailable, err)
	}
	logf("replay camera %q reading %s", cameraID, r.cfg.Path)
	return &replaySession{cfg: r.cfg, cameraID: cameraID, clock: r.clock, deliver: deliver, src: src}, nil
}

type replaySession struct {
	cfg      ReplayConfig
	cameraID string
	clock    timeutil.Clock
	deliver  session.DeliverFunc

	mu     sync.Mutex
	src    payloadSource
	closed bool
	stopCh chan struct{}
	done   chan struct{}
}

func (s *replaySession) SetRepeatingCapture(c session.CaptureConfig) error {
	if err := validateCapture(c); err != nil {
		return err
	}
	_ = s.StopRepeating()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSessionClosed
	}
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(c, s.stopCh, s.done)
	return nil
}

func (s *replaySession) run(c session.CaptureConfig, stopCh, done chan struct{}) {
	defer close(done)
	ticker := s.clock.NewTicker(frameInterval(c.FPS))
	defer ticker.Stop()
	re := NewReassembler()
	frames := 0
	for {
		select {
		case <-stopCh:
			return
		default:
		}

		s.mu.Lock()
		src := s.src
		s.mu.Unlock()
		payload, _, err := src.Next()
		if errors.Is(err, io.EOF) {
			if !s.cfg.Loop {
				logf("replay of %s complete: %d frames", s.cfg.Path, frames)
				return
			}
			if err := s.rewind(); err != nil {
				logf("replay rewind failed: %v", err)
				return
			}
			re.Reset()
			continue
		}
		if err != nil {
			logf("replay read error: %v", err)
			return
		}
		if len(payload) == 0 {
			continue
		}

		frame, ok, err := re.Add(payload)
		if err != nil || !ok {
			continue
		}
		if frame.Width != c.Width || frame.Height != c.Height {
			continue
		}
		select {
		case <-stopCh:
			return
		case <-ticker.C():
		}
		frames++
		s.deliver(frame)
	}
}

func (s *replaySession) rewind() error {
	src, err := openPayloadSource(s.cfg)
	if err != nil {
		return err
	}
	s.mu.Lock()
	old := s.src
	s.src = src
	s.mu.Unlock()
	return old.Close()
}

func (s *replaySession) AbortCaptures() error {
	return nil
}

func (s *replaySession) StopRepeating() error {
	s.mu.Lock()
	stopCh, done := s.stopCh, s.done
	s.stopCh, s.done = nil, nil
	s.mu.Unlock()
	if stopCh != nil {
		close(stopCh)
		<-done
	}
	return nil
}

func (s *replaySession) Close() error {
	_ = s.StopRepeating()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.src.Close()
}

// ReplayFrames reads every complete frame in a capture without pacing.
func ReplayFrames(cfg ReplayConfig) ([]depth.RawFrame, error) {
	src, err := openPayloadSource(cfg)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	re := NewReassembler()
	var out []depth.RawFrame
	for {
		payload, _, err := src.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		if frame, ok, err := re.Add(payload); err == nil && ok {
			out = append(out, frame)
		}
	}
}

var _ session.Opener = (*Replay)(nil)
