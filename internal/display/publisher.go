package display

import (
	"bytes"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// PublisherConfig configures the Watch server.
type PublisherConfig struct {
	// ListenAddr is the TCP address to listen on, e.g. "localhost:50061".
	ListenAddr string
	// MaxClients caps concurrent Watch streams. Zero means no limit.
	MaxClients int
	// ClientBuffer is the per-client queue; a slow client loses messages
	// once it fills.
	ClientBuffer int
}

// DefaultPublisherConfig returns the default Watch server settings.
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		ListenAddr:   "localhost:50061",
		MaxClients:   5,
		ClientBuffer: 4,
	}
}

// Publisher streams surface events to gRPC viewers.
type Publisher struct {
	config   PublisherConfig
	surface  *Surface
	server   *grpc.Server
	listener net.Listener
	subID    string

	clients   map[string]*watchClient
	clientsMu sync.RWMutex

	sent          atomic.Uint64
	droppedFrames atomic.Uint64
	clientCount   atomic.Int32

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

type watchClient struct {
	id      string
	request WatchRequest
	msgCh   chan *structpb.Struct
}

// NewPublisher returns a stopped Publisher for s.
func NewPublisher(cfg PublisherConfig, s *Surface) *Publisher {
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = DefaultPublisherConfig().ClientBuffer
	}
	return &Publisher{
		config:  cfg,
		surface: s,
		clients: make(map[string]*watchClient),
		stopCh:  make(chan struct{}),
	}
}

// Start listens on the configured address and serves Watch.
func (p *Publisher) Start() error {
	if p.running.Load() {
		return fmt.Errorf("publisher already running")
	}
	lis, err := net.Listen("tcp", p.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return p.Serve(lis)
}

// Serve serves Watch on lis in the background.
func (p *Publisher) Serve(lis net.Listener) error {
	if !p.running.CompareAndSwap(false, true) {
		return fmt.Errorf("publisher already running")
	}
	p.listener = lis

	// A full-resolution PNG fits well inside 4 MB, but a large view may not.
	const maxMsgSize = 16 * 1024 * 1024
	p.server = grpc.NewServer(
		grpc.MaxRecvMsgSize(maxMsgSize),
		grpc.MaxSendMsgSize(maxMsgSize),
	)
	RegisterDisplayServer(p.server, p)

	id, events := p.surface.Subscribe()
	p.subID = id

	p.wg.Add(1)
	go p.broadcastLoop(events)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		logf("watch server listening on %s", lis.Addr())
		if err := p.server.Serve(lis); err != nil && p.running.Load() {
			logf("watch server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the listening address, or nil before Start.
func (p *Publisher) Addr() net.Addr {
	if p.listener == nil {
		return nil
	}
	return p.listener.Addr()
}

// Stop ends every stream and shuts the server down.
func (p *Publisher) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.stopCh)
	p.surface.Unsubscribe(p.subID)

	if p.server != nil {
		p.server.GracefulStop()
	}
	p.wg.Wait()
	logf("watch server stopped")
}

// broadcastLoop converts surface events and fans them out. The PNG is
// encoded at most once per event and only if some client asked for it.
func (p *Publisher) broadcastLoop(events <-chan Event) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			p.broadcast(ev)
		}
	}
}

func (p *Publisher) broadcast(ev Event) {
	p.clientsMu.RLock()
	defer p.clientsMu.RUnlock()
	if len(p.clients) == 0 {
		return
	}

	var plain, withPNG *structpb.Struct
	for _, c := range p.clients {
		var msg *structpb.Struct
		if c.request.IncludePNG && (ev.Kind == EventFrame || ev.Kind == EventBlank) {
			if withPNG == nil {
				withPNG = p.encode(ev, true)
			}
			msg = withPNG
		} else {
			if plain == nil {
				plain = p.encode(ev, false)
			}
			msg = plain
		}
		if msg == nil {
			continue
		}
		select {
		case c.msgCh <- msg:
		default:
			p.droppedFrames.Add(1)
		}
	}
}

func (p *Publisher) encode(ev Event, includePNG bool) *structpb.Struct {
	var img []byte
	if includePNG {
		var buf bytes.Buffer
		if err := p.surface.EncodePNG(&buf); err != nil {
			logf("png encode failed: %v", err)
		} else {
			img = buf.Bytes()
		}
	}
	msg, err := eventToStruct(ev, img)
	if err != nil {
		logf("watch message encode failed: %v", err)
		return nil
	}
	return msg
}

// Watch implements DisplayServer. The first message is a status event
// carrying the current surface state.
func (p *Publisher) Watch(in *structpb.Struct, stream grpc.ServerStream) error {
	if !p.running.Load() {
		return status.Error(codes.Unavailable, "publisher stopped")
	}
	if p.config.MaxClients > 0 && int(p.clientCount.Load()) >= p.config.MaxClients {
		return status.Errorf(codes.ResourceExhausted, "too many viewers (max %d)", p.config.MaxClients)
	}

	c := p.addClient(watchRequestFromStruct(in))
	defer p.removeClient(c.id)

	snap := p.surface.Snapshot()
	first := p.encode(Event{
		Kind:      EventStatus,
		Seq:       snap.Seq,
		Status:    snap.Status,
		RangeText: snap.RangeText,
		MinRange:  snap.MinRange,
		MaxRange:  snap.MaxRange,
		Policy:    snap.Policy,
		Time:      snap.Updated,
	}, false)
	if first != nil {
		if err := stream.SendMsg(first); err != nil {
			return err
		}
		p.sent.Add(1)
	}

	for {
		select {
		case <-stream.Context().Done():
			return nil
		case <-p.stopCh:
			return nil
		case msg := <-c.msgCh:
			if err := stream.SendMsg(msg); err != nil {
				logf("viewer %s send failed: %v", c.id, err)
				return err
			}
			p.sent.Add(1)
		}
	}
}

func (p *Publisher) addClient(req WatchRequest) *watchClient {
	c := &watchClient{
		id:      uuid.NewString(),
		request: req,
		msgCh:   make(chan *structpb.Struct, p.config.ClientBuffer),
	}
	p.clientsMu.Lock()
	p.clients[c.id] = c
	p.clientsMu.Unlock()

	n := p.clientCount.Add(1)
	logf("viewer connected: %s (total: %d, png: %v)", c.id, n, req.IncludePNG)
	return c
}

func (p *Publisher) removeClient(id string) {
	p.clientsMu.Lock()
	_, ok := p.clients[id]
	delete(p.clients, id)
	p.clientsMu.Unlock()
	if ok {
		n := p.clientCount.Add(-1)
		logf("viewer disconnected: %s (remaining: %d)", id, n)
	}
}

// PublisherStats summarises Watch traffic.
type PublisherStats struct {
	Running     bool   `json:"running"`
	ClientCount int32  `json:"client_count"`
	Sent        uint64 `json:"sent"`
	Dropped     uint64 `json:"dropped"`
}

// Stats returns current counters.
func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{
		Running:     p.running.Load(),
		ClientCount: p.clientCount.Load(),
		Sent:        p.sent.Load(),
		Dropped:     p.droppedFrames.Load(),
	}
}
