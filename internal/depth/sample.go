package depth

const (
	// RangeMask selects the range field of a DEPTH16 sample.
	RangeMask = 0x1FFF
	// MaxRange is the largest encodable range in millimetres.
	MaxRange = RangeMask

	confidenceShift = 13
	confidenceMask  = 0x7
)

// Sample is one bit-packed DEPTH16 reading.
type Sample uint16

// NewSample packs a range (mm) and a 3-bit confidence field.
func NewSample(rangeMM uint16, confidence uint8) Sample {
	return Sample(rangeMM&RangeMask | uint16(confidence&confidenceMask)<<confidenceShift)
}

// Range returns the range field in millimetres. Zero means no data.
func (s Sample) Range() uint16 {
	return uint16(s) & RangeMask
}

// ConfidenceField returns the raw 3-bit confidence field.
func (s Sample) ConfidenceField() uint8 {
	return uint8(uint16(s)>>confidenceShift) & confidenceMask
}

// Confidence returns the confidence as a ratio in [0, 1]. A zero field
// means maximum confidence; 1..7 scale linearly from 0 to 1.
func (s Sample) Confidence() float64 {
	f := s.ConfidenceField()
	if f == 0 {
		return 1.0
	}
	return float64(f-1) / 7.0
}
