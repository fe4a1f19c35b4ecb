package camera

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/tofview/internal/depth"
)

// HeaderSize is the size of a DEPTH16 fragment header.
//
//	0  magic "DF16"
//	4  seq       u32
//	8  width     u16
//	10 height    u16
//	12 index     u16
//	14 count     u16
//	16 offset    u32  byte offset of the payload in the frame
//	20 timestamp i64  unix nanoseconds
//
// All fields are little-endian.
const HeaderSize = 28

// DefaultMaxPayload keeps fragments under a 1500 byte MTU.
const DefaultMaxPayload = 1400

var magic = [4]byte{'D', 'F', '1', '6'}

var (
	ErrShortFragment = errors.New("fragment shorter than header")
	ErrBadMagic      = errors.New("fragment magic mismatch")
	ErrBadFragment   = errors.New("fragment header inconsistent")
)

// FragmentHeader describes one fragment of a DEPTH16 frame.
type FragmentHeader struct {
	Seq       uint32
	Width     uint16
	Height    uint16
	Index     uint16
	Count     uint16
	Offset    uint32
	Timestamp int64
}

// FrameBytes is the size of the frame the fragment belongs to.
func (h FragmentHeader) FrameBytes() int {
	return int(h.Width) * int(h.Height) * depth.BytesPerSample
}

func (h FragmentHeader) appendTo(b []byte) []byte {
	b = append(b, magic[:]...)
	b = binary.LittleEndian.AppendUint32(b, h.Seq)
	b = binary.LittleEndian.AppendUint16(b, h.Width)
	b = binary.LittleEndian.AppendUint16(b, h.Height)
	b = binary.LittleEndian.AppendUint16(b, h.Index)
	b = binary.LittleEndian.AppendUint16(b, h.Count)
	b = binary.LittleEndian.AppendUint32(b, h.Offset)
	b = binary.LittleEndian.AppendUint64(b, uint64(h.Timestamp))
	return b
}

// ParseFragment splits a datagram into its header and payload. The payload
// aliases pkt.
func ParseFragment(pkt []byte) (FragmentHeader, []byte, error) {
	var h FragmentHeader
	if len(pkt) < HeaderSize {
		return h, nil, ErrShortFragment
	}
	if [4]byte(pkt[0:4]) != magic {
		return h, nil, ErrBadMagic
	}
	h.Seq = binary.LittleEndian.Uint32(pkt[4:])
	h.Width = binary.LittleEndian.Uint16(pkt[8:])
	h.Height = binary.LittleEndian.Uint16(pkt[10:])
	h.Index = binary.LittleEndian.Uint16(pkt[12:])
	h.Count = binary.LittleEndian.Uint16(pkt[14:])
	h.Offset = binary.LittleEndian.Uint32(pkt[16:])
	h.Timestamp = int64(binary.LittleEndian.Uint64(pkt[20:]))
	payload := pkt[HeaderSize:]

	switch {
	case h.Width == 0 || h.Height == 0:
		return h, nil, fmt.Errorf("%w: zero dimension %dx%d", ErrBadFragment, h.Width, h.Height)
	case h.Count == 0 || h.Index >= h.Count:
		return h, nil, fmt.Errorf("%w: index %d of %d", ErrBadFragment, h.Index, h.Count)
	case int(h.Offset)+len(payload) > h.FrameBytes():
		return h, nil, fmt.Errorf("%w: payload [%d,%d) exceeds frame of %d bytes",
			ErrBadFragment, h.Offset, int(h.Offset)+len(payload), h.FrameBytes())
	}
	return h, payload, nil
}

// Fragment splits a raw frame into datagrams of at most maxPayload payload
// bytes each.
func Fragment(frame depth.RawFrame, seq uint32, maxPayload int) ([][]byte, error) {
	if err := frame.Validate(); err != nil {
		return nil, err
	}
	if frame.Width > 0xFFFF || frame.Height > 0xFFFF {
		return nil, fmt.Errorf("%w: %dx%d exceeds 16-bit dimensions", ErrBadFragment, frame.Width, frame.Height)
	}
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}
	count := (len(frame.Data) + maxPayload - 1) / maxPayload
	if count > 0xFFFF {
		return nil, fmt.Errorf("%w: %d fragments", ErrBadFragment, count)
	}

	var ts int64
	if !frame.Timestamp.IsZero() {
		ts = frame.Timestamp.UnixNano()
	}
	out := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		off := i * maxPayload
		end := min(off+maxPayload, len(frame.Data))
		h := FragmentHeader{
			Seq:       seq,
			Width:     uint16(frame.Width),
			Height:    uint16(frame.Height),
			Index:     uint16(i),
			Count:     uint16(count),
			Offset:    uint32(off),
			Timestamp: ts,
		}
		pkt := make([]byte, 0, HeaderSize+end-off)
		pkt = h.appendTo(pkt)
		pkt = append(pkt, frame.Data[off:end]...)
		out = append(out, pkt)
	}
	return out, nil
}

// ReassemblerStats counts reassembly outcomes.
type ReassemblerStats struct {
	Completed uint64
	Dropped   uint64 // incomplete frames abandoned for a newer sequence
	Stale     uint64 // fragments for frames already completed or abandoned
	Malformed uint64
}

type partialFrame struct {
	hdr      FragmentHeader
	data     []byte
	got      []bool
	received int
}

// Reassembler rebuilds frames from fragments. It tracks one frame at a
// time; a fragment with a newer sequence abandons the frame in progress.
// It is not safe for concurrent use.
type Reassembler struct {
	cur      *partialFrame
	lastSeq  uint32
	haveLast bool
	stats    ReassemblerStats
}

// NewReassembler returns an empty Reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{}
}

// seqAfter reports whether a is after b in wrapping sequence order.
func seqAfter(a, b uint32) bool {
	return int32(a-b) > 0
}

// Add consumes one datagram. It returns the completed frame and true when
// pkt finished one.
func (r *Reassembler) Add(pkt []byte) (depth.RawFrame, bool, error) {
	h, payload, err := ParseFragment(pkt)
	if err != nil {
		r.stats.Malformed++
		return depth.RawFrame{}, false, err
	}
	if r.haveLast && !seqAfter(h.Seq, r.lastSeq) {
		r.stats.Stale++
		return depth.RawFrame{}, false, nil
	}

	if r.cur != nil && r.cur.hdr.Seq != h.Seq {
		if !seqAfter(h.Seq, r.cur.hdr.Seq) {
			r.stats.Stale++
			return depth.RawFrame{}, false, nil
		}
		r.stats.Dropped++
		r.cur = nil
	}
	if r.cur == nil {
		r.cur = &partialFrame{
			hdr:  h,
			data: make([]byte, h.FrameBytes()),
			got:  make([]bool, h.Count),
		}
	}
	cur := r.cur
	if h.Width != cur.hdr.Width || h.Height != cur.hdr.Height || h.Count != cur.hdr.Count {
		r.stats.Malformed++
		return depth.RawFrame{}, false, fmt.Errorf("%w: seq %d changed shape mid-frame", ErrBadFragment, h.Seq)
	}
	if cur.got[h.Index] {
		return depth.RawFrame{}, false, nil
	}
	copy(cur.data[h.Offset:], payload)
	cur.got[h.Index] = true
	cur.received++
	if cur.received < int(cur.hdr.Count) {
		return depth.RawFrame{}, false, nil
	}

	r.cur = nil
	r.lastSeq = h.Seq
	r.haveLast = true
	r.stats.Completed++
	frame := depth.RawFrame{
		Width:  int(cur.hdr.Width),
		Height: int(cur.hdr.Height),
		Data:   cur.data,
	}
	if cur.hdr.Timestamp != 0 {
		frame.Timestamp = time.Unix(0, cur.hdr.Timestamp)
	}
	return frame, true, nil
}

// Reset abandons any frame in progress and forgets the last sequence.
func (r *Reassembler) Reset() {
	if r.cur != nil {
		r.stats.Dropped++
	}
	r.cur = nil
	r.haveLast = false
}

// Stats returns the reassembly counters.
func (r *Reassembler) Stats() ReassemblerStats {
	return r.stats
}
