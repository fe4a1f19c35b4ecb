// Package imu reads accelerometer samples from a serial IMU bridge (or a
// simulator) and fans them out to subscribers such as the idle monitor.
package imu

import (
	"bufio"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"

	"github.com/banshee-data/tofview/internal/monitoring"
	"github.com/banshee-data/tofview/internal/motion"
	"github.com/banshee-data/tofview/internal/timeutil"
)

var logf = monitoring.Prefixed("IMU")

var (
	ErrWriteFailed = errors.New("failed to write to serial port")
	ErrNoPort      = errors.New("IMU source has no serial port")
)

// subscriberBuffer is the per-subscriber channel depth. Samples for a full
// subscriber are dropped.
const subscriberBuffer = 16

// Port is the minimal serial port surface the source needs.
type Port interface {
	io.ReadWriter
	io.Closer
}

// Stats counts lines read from the device.
type Stats struct {
	Parsed   uint64
	Rejected uint64
	Injected uint64
}

// Source fans accelerometer samples out to subscribers.
type Source struct {
	port  Port
	clock timeutil.Clock

	// sim, when set, generates samples every simInterval instead of
	// reading port.
	sim         func(now time.Time) motion.Sample
	simInterval time.Duration

	subscribers  map[string]chan motion.Sample
	subscriberMu sync.Mutex
	commandMu    sync.Mutex
	closing      atomic.Bool

	parsed   atomic.Uint64
	rejected atomic.Uint64
	injected atomic.Uint64
}

// NewSource creates a Source reading lines from port.
func NewSource(port Port, clock timeutil.Clock) *Source {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Source{
		port:        port,
		clock:       clock,
		subscribers: make(map[string]chan motion.Sample),
	}
}

// NewSerialSource opens the serial device at path.
func NewSerialSource(path string, opts PortOptions) (*Source, error) {
	mode, err := opts.Mode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open IMU port %s: %w", path, err)
	}
	logf("opened %s at %s", path, opts)
	return NewSource(port, timeutil.RealClock{}), nil
}

// NewSimulatedSource creates a Source producing a device at rest: gravity
// on Z with a little sensor noise, one sample per interval. Use Inject or
// the admin shake endpoint to simulate motion.
func NewSimulatedSource(clock timeutil.Clock, interval time.Duration) *Source {
	s := NewSource(nil, clock)
	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	rng := rand.New(rand.NewPCG(1, 2))
	s.sim = func(now time.Time) motion.Sample {
		noise := func() float64 { return (rng.Float64() - 0.5) * 0.05 }
		return motion.Sample{X: noise(), Y: noise(), Z: motion.StandardGravity + noise(), Timestamp: now}
	}
	s.simInterval = interval
	return s
}

// randomID generates a random subscriber ID (8 byte random hex value).
func randomID() string {
	b := make([]byte, 8)
	_, _ = crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe registers a new subscriber. The ID is used to unsubscribe.
func (s *Source) Subscribe() (string, <-chan motion.Sample) {
	id := randomID()
	ch := make(chan motion.Sample, subscriberBuffer)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (s *Source) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

func (s *Source) publish(sample motion.Sample) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- sample:
		default:
			// skip a full subscriber rather than block the reader
		}
	}
}

// Inject publishes a sample as if it had been read from the device.
func (s *Source) Inject(sample motion.Sample) {
	if sample.Timestamp.IsZero() {
		sample.Timestamp = s.clock.Now()
	}
	s.injected.Add(1)
	s.publish(sample)
}

// Shake injects a burst of samples well above any idle threshold.
func (s *Source) Shake() {
	now := s.clock.Now()
	for i := 0; i < 5; i++ {
		a := 2 * math.Sin(float64(i))
		s.Inject(motion.Sample{X: a + 2, Y: -a, Z: motion.StandardGravity + 3, Timestamp: now})
	}
}

// SendCommand writes a newline-terminated command to the device.
func (s *Source) SendCommand(command string) error {
	if s.port == nil {
		return ErrNoPort
	}
	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	if !strings.HasSuffix(command, "\n") {
		command += "\n"
	}
	n, err := s.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// Stats returns line counters.
func (s *Source) Stats() Stats {
	return Stats{Parsed: s.parsed.Load(), Rejected: s.rejected.Load(), Injected: s.injected.Load()}
}

// Monitor reads the device (or runs the simulator) until ctx is done, the
// port reaches EOF or the source is closed.
func (s *Source) Monitor(ctx context.Context) error {
	if s.sim != nil {
		return s.simulate(ctx)
	}
	if s.port == nil {
		return ErrNoPort
	}

	scan := bufio.NewScanner(s.port)
	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// The blocking scan runs in its own goroutine so the loop below can
	// observe ctx.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			scanErrChan <- err
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-scanErrChan:
			if s.closing.Load() {
				return nil
			}
			return err
		case line, ok := <-lineChan:
			if !ok {
				select {
				case err := <-scanErrChan:
					if !s.closing.Load() {
						return err
					}
				default:
				}
				return nil
			}
			if s.closing.Load() {
				return nil
			}
			r, err := ParseLine(line, s.clock.Now())
			if err != nil {
				if s.rejected.Add(1) == 1 {
					logf("ignoring unrecognised line %q: %v", line, err)
				}
				continue
			}
			s.parsed.Add(1)
			s.publish(r.Sample)
		}
	}
}

func (s *Source) simulate(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.simInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			if s.closing.Load() {
				return nil
			}
			s.parsed.Add(1)
			s.publish(s.sim(s.clock.Now()))
		}
	}
}

// Close closes every subscriber channel and the serial port.
func (s *Source) Close() error {
	if s.closing.Swap(true) {
		return nil
	}
	s.subscriberMu.Lock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	s.subscriberMu.Unlock()
	if s.port == nil {
		return nil
	}
	return s.port.Close()
}
