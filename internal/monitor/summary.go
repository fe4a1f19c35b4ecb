// Package monitor keeps rolling diagnostics for the depth stream and the
// motion sensor and renders them as debug charts.
package monitor

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/tofview/internal/depth"
)

// FrameSummary describes the valid (non-zero) ranges of one frame.
type FrameSummary struct {
	Timestamp     time.Time `json:"timestamp"`
	Width         int       `json:"width"`
	Height        int       `json:"height"`
	Valid         int       `json:"valid"`
	ValidFraction float64   `json:"valid_fraction"`
	MinRange      uint16    `json:"min_range"`
	MaxRange      uint16    `json:"max_range"`
	MeanRange     float64   `json:"mean_range"`
	StdDevRange   float64   `json:"stddev_range"`
	MedianRange   float64   `json:"median_range"`
	Policy        string    `json:"policy"`
}

// Summarize computes range statistics over the frame's non-zero samples.
// MinRange and MaxRange are the decoder's reported extent, not the
// statistics of the valid samples.
func Summarize(f depth.DecodedFrame) FrameSummary {
	s, _ := summarize(f)
	return s
}

func summarize(f depth.DecodedFrame) (FrameSummary, []float64) {
	s := FrameSummary{
		Timestamp: f.Timestamp,
		Width:     f.Width,
		Height:    f.Height,
		MinRange:  f.MinRange,
		MaxRange:  f.MaxRange,
		Policy:    f.Policy.String(),
	}
	valid := validRanges(f.Ranges)
	s.Valid = len(valid)
	if n := len(f.Ranges); n > 0 {
		s.ValidFraction = float64(len(valid)) / float64(n)
	}
	if len(valid) == 0 {
		return s, valid
	}

	if len(valid) == 1 {
		s.MeanRange = valid[0]
	} else {
		s.MeanRange, s.StdDevRange = stat.MeanStdDev(valid, nil)
	}
	sorted := append([]float64(nil), valid...)
	sort.Float64s(sorted)
	s.MedianRange = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	return s, valid
}

func validRanges(ranges []uint16) []float64 {
	out := make([]float64, 0, len(ranges))
	for _, r := range ranges {
		if r > 0 {
			out = append(out, float64(r))
		}
	}
	return out
}
