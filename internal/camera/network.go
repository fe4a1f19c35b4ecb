package camera

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/banshee-data/tofview/internal/depth"
	"github.com/banshee-data/tofview/internal/session"
)

const (
	defaultRcvBuf      = 4 << 20
	networkReadTimeout = 100 * time.Millisecond
	maxDatagram        = 65535
)

// NetworkConfig configures a UDP depth camera receiver.
type NetworkConfig struct {
	// Address is the local UDP address to listen on, e.g. ":7600".
	Address string
	// RcvBuf is the socket receive buffer size in bytes.
	RcvBuf int
}

// Network is an Opener receiving fragmented DEPTH16 frames over UDP. Each
// session binds its own socket, so a paused session holds no port.
type Network struct {
	cfg NetworkConfig
}

// NewNetwork returns a UDP camera listening on cfg.Address.
func NewNetwork(cfg NetworkConfig) *Network {
	if cfg.RcvBuf <= 0 {
		cfg.RcvBuf = defaultRcvBuf
	}
	return &Network{cfg: cfg}
}

// OpenSession binds the UDP socket. Frames are only delivered once a
// repeating capture is set.
func (n *Network) OpenSession(ctx context.Context, cameraID string, deliver session.DeliverFunc) (session.Session, error) {
	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, "udp", n.cfg.Address)
	if err != nil {
		return nil, classifyOpenError(err)
	}
	conn := pc.(*net.UDPConn)
	if err := conn.SetReadBuffer(n.cfg.RcvBuf); err != nil {
		logf("Warning: failed to set UDP receive buffer to %d: %v", n.cfg.RcvBuf, err)
	}
	logf("network camera %q listening on %s", cameraID, conn.LocalAddr())
	return &networkSession{
		cameraID:    cameraID,
		conn:        conn,
		deliver:     deliver,
		reassembler: NewReassembler(),
	}, nil
}

// LocalAddr is exposed on network sessions for callers that bind port 0.
type LocalAddr interface {
	LocalAddr() net.Addr
}

type networkSession struct {
	cameraID string
	conn     *net.UDPConn
	deliver  session.DeliverFunc

	mu          sync.Mutex
	reassembler *Reassembler
	capture     session.CaptureConfig
	closed      bool
	stopCh      chan struct{}
	done        chan struct{}
}

func (s *networkSession) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

func (s *networkSession) SetRepeatingCapture(c session.CaptureConfig) error {
	if err := validateCapture(c); err != nil {
		return err
	}
	// The read loop takes s.mu per datagram, so stop it unlocked.
	_ = s.StopRepeating()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSessionClosed
	}
	s.capture = c
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	go s.readLoop(s.stopCh, s.done)
	return nil
}

func (s *networkSession) readLoop(stopCh, done chan struct{}) {
	defer close(done)
	buf := make([]byte, maxDatagram)
	for {
		select {
		case <-stopCh:
			return
		default:
		}

		_ = s.conn.SetReadDeadline(time.Now().Add(networkReadTimeout))
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logf("UDP read error: %v", err)
			continue
		}

		frame, ok, err := s.add(buf[:n])
		if err != nil {
			logf("bad fragment from %v: %v", addr, err)
			continue
		}
		if !ok {
			continue
		}
		if frame.Width != s.capture.Width || frame.Height != s.capture.Height {
			logf("dropping %dx%d frame, capture is %dx%d",
				frame.Width, frame.Height, s.capture.Width, s.capture.Height)
			continue
		}
		if frame.Timestamp.IsZero() {
			frame.Timestamp = time.Now()
		}
		s.deliver(frame)
	}
}

func (s *networkSession) add(pkt []byte) (depth.RawFrame, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reassembler.Add(pkt)
}

// AbortCaptures discards any partially received frame.
func (s *networkSession) AbortCaptures() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reassembler.Reset()
	return nil
}

func (s *networkSession) StopRepeating() error {
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

func (s *networkSession) Close() error {
	if err := s.StopRepeating(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	st := s.reassembler.Stats()
	logf("network camera %q closed: %d frames, %d dropped, %d stale, %d malformed",
		s.cameraID, st.Completed, st.Dropped, st.Stale, st.Malformed)
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("close UDP socket: %w", err)
	}
	return nil
}

// Stats returns the reassembly counters of the session.
func (s *networkSession) Stats() ReassemblerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reassembler.Stats()
}

// Send fragments frame and writes it to addr over conn. It is the sending
// half of the Network camera, used by test senders and the replay tooling.
func Send(conn net.PacketConn, addr net.Addr, frame depth.RawFrame, seq uint32, maxPayload int) error {
	pkts, err := Fragment(frame, seq, maxPayload)
	if err != nil {
		return err
	}
	for _, p := range pkts {
		if _, err := conn.WriteTo(p, addr); err != nil {
			return fmt.Errorf("send fragment: %w", err)
		}
	}
	return nil
}

var _ session.Opener = (*Network)(nil)
