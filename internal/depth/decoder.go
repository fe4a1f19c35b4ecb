package depth

// RangeTracking selects how the frame extent is discovered while scanning.
type RangeTracking int

const (
	// TrackExclusive reproduces the shipped camera: the minimum starts at 0
	// and is only lowered by a non-zero sample below it, so it stays 0 and
	// every sample is tested against the maximum.
	TrackExclusive RangeTracking = iota
	// TrackSeeded starts the minimum unset, takes the first non-zero sample
	// and lowers it from there. A sample that lowers the minimum is not
	// tested against the maximum.
	TrackSeeded
	// TrackIndependent seeds the minimum like TrackSeeded and tests every
	// sample against both ends.
	TrackIndependent
)

func (t RangeTracking) String() string {
	switch t {
	case TrackExclusive:
		return "exclusive"
	case TrackSeeded:
		return "seeded"
	case TrackIndependent:
		return "independent"
	default:
		return "unknown"
	}
}

// ParseRangeTracking maps a config string onto a RangeTracking mode.
// Unknown strings return false.
func ParseRangeTracking(s string) (RangeTracking, bool) {
	switch s {
	case "", "exclusive":
		return TrackExclusive, true
	case "seeded":
		return TrackSeeded, true
	case "independent":
		return TrackIndependent, true
	}
	return TrackExclusive, false
}

// Decoder turns raw DEPTH16 frames into DecodedFrames. A Decoder holds no
// per-frame state and is safe for concurrent use.
type Decoder struct {
	Tracking RangeTracking
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithTracking sets the extent discovery mode.
func WithTracking(t RangeTracking) Option {
	return func(d *Decoder) { d.Tracking = t }
}

// NewDecoder returns a Decoder using exclusive tracking unless overridden.
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{Tracking: TrackExclusive}
	for _, o := range opts {
		o(d)
	}
	return d
}

// extent accumulates the discovered minimum and maximum range.
type extent struct {
	tracking RangeTracking
	min      uint16
	minSet   bool
	max      uint16
}

func (e *extent) observe(r uint16) {
	switch e.tracking {
	case TrackExclusive:
		if r > 0 && r < e.min {
			e.min = r
		} else if r > e.max {
			e.max = r
		}
	case TrackSeeded:
		if e.lower(r) {
			return
		}
		if r > e.max {
			e.max = r
		}
	default:
		e.lower(r)
		if r > e.max {
			e.max = r
		}
	}
}

// lower takes r as the minimum if it is the first non-zero sample or below
// the current minimum.
func (e *extent) lower(r uint16) bool {
	if r == 0 || (e.minSet && r >= e.min) {
		return false
	}
	e.min = r
	e.minSet = true
	return true
}

// Decode validates raw, rotates it into portrait orientation and normalizes
// every sample under policy.
func (d *Decoder) Decode(raw RawFrame, policy Policy) (*DecodedFrame, error) {
	if err := raw.Validate(); err != nil {
		return nil, err
	}

	w, h := raw.Width, raw.Height
	n := w * h
	out := &DecodedFrame{
		Width:     h,
		Height:    w,
		Pix:       make([]uint8, n),
		Ranges:    make([]uint16, n),
		Policy:    policy,
		Timestamp: raw.Timestamp,
	}

	ext := extent{tracking: d.Tracking}
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			r := raw.Sample(x, h-1-y).Range()
			ext.observe(r)
			out.Ranges[h*x+y] = r
		}
	}
	out.MinRange, out.MaxRange = ext.min, ext.max

	min, max := policy.Bounds(out.MinRange, out.MaxRange)
	out.MinUsed, out.MaxUsed = min, max
	for i, r := range out.Ranges {
		out.Pix[i] = Normalize(r, min, max)
	}
	return out, nil
}
