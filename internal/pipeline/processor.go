package pipeline

import (
	"sync/atomic"

	"github.com/banshee-data/tofview/internal/depth"
	"github.com/banshee-data/tofview/internal/monitor"
	"github.com/banshee-data/tofview/internal/session"
)

// SummarySink receives per-frame statistics.
type SummarySink interface {
	ObserveFrame(monitor.FrameSummary)
}

// Processor decodes raw frames on the session worker and presents them.
// It implements session.FrameHandler.
type Processor struct {
	decoder *depth.Decoder
	ranging *Ranging
	display session.Display
	diag    *monitor.Diagnostics
	sinks   []SummarySink

	decoded   atomic.Uint64
	malformed atomic.Uint64
}

// NewProcessor returns a Processor. diag may be nil.
func NewProcessor(decoder *depth.Decoder, ranging *Ranging, display session.Display, diag *monitor.Diagnostics, sinks ...SummarySink) *Processor {
	return &Processor{
		decoder: decoder,
		ranging: ranging,
		display: display,
		diag:    diag,
		sinks:   sinks,
	}
}

// HandleFrame decodes raw with the current ranging policy, clears the
// status line and shows the range text and image. A malformed frame is
// counted, logged and skipped.
func (p *Processor) HandleFrame(raw depth.RawFrame) {
	f, err := p.decoder.Decode(raw, p.ranging.Policy())
	if err != nil {
		n := p.malformed.Add(1)
		if p.diag != nil {
			p.diag.ObserveMalformed(err)
		}
		// First and then every hundredth, to keep a bad stream from
		// flooding the log.
		if n == 1 || n%100 == 0 {
			logf("dropping frame (%d malformed so far): %v", n, err)
		}
		return
	}
	p.decoded.Add(1)

	p.display.PresentStatusText("")
	p.display.PresentRangeText(f.MinRange, f.MaxRange)
	p.display.PresentFrame(*f)

	if p.diag == nil && len(p.sinks) == 0 {
		return
	}
	var s monitor.FrameSummary
	if p.diag != nil {
		s = p.diag.ObserveFrame(*f)
	} else {
		s = monitor.Summarize(*f)
	}
	for _, sink := range p.sinks {
		sink.ObserveFrame(s)
	}
}

// Counts returns decoded and malformed frame totals.
func (p *Processor) Counts() (decoded, malformed uint64) {
	return p.decoded.Load(), p.malformed.Load()
}
