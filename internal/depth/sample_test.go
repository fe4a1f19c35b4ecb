package depth

import (
	"math"
	"testing"
)

func TestSample_Fields(t *testing.T) {
	tests := []struct {
		name       string
		raw        uint16
		wantRange  uint16
		wantField  uint8
		wantConfid float64
	}{
		{"zero", 0x0000, 0, 0, 1.0},
		{"range only", 0x09C4, 2500, 0, 1.0},
		{"field one", 0x2000 | 100, 100, 1, 0.0},
		{"field seven", 0xE000 | 8191, 8191, 7, 6.0 / 7.0},
		{"field four", 0x8000 | 42, 42, 4, 3.0 / 7.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Sample(tt.raw)
			if got := s.Range(); got != tt.wantRange {
				t.Errorf("Range() = %d, want %d", got, tt.wantRange)
			}
			if got := s.ConfidenceField(); got != tt.wantField {
				t.Errorf("ConfidenceField() = %d, want %d", got, tt.wantField)
			}
			if got := s.Confidence(); math.Abs(got-tt.wantConfid) > 1e-9 {
				t.Errorf("Confidence() = %v, want %v", got, tt.wantConfid)
			}
		})
	}
}

func TestNewSample_RoundTrip(t *testing.T) {
	s := NewSample(1234, 5)
	if s.Range() != 1234 || s.ConfidenceField() != 5 {
		t.Errorf("NewSample(1234, 5) = range %d field %d", s.Range(), s.ConfidenceField())
	}

	// Out-of-range inputs are masked.
	s = NewSample(0xFFFF, 0xFF)
	if s.Range() != MaxRange || s.ConfidenceField() != 7 {
		t.Errorf("NewSample(0xFFFF, 0xFF) = range %d field %d, want %d and 7", s.Range(), s.ConfidenceField(), MaxRange)
	}
}
