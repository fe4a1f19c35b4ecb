package depth

import (
	"errors"
	"image/color"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/tofview/internal/testutil"
)

func rawFrame(w, h int, samples ...uint16) RawFrame {
	return RawFrame{Width: w, Height: h, Data: testutil.PackDepth16(samples)}
}

func mustDecode(t *testing.T, d *Decoder, raw RawFrame, p Policy) *DecodedFrame {
	t.Helper()
	out, err := d.Decode(raw, p)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	return out
}

func TestDecode_TwoByTwoFixed(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	raw := rawFrame(2, 2, 100, 0, 50, 2500)
	raw.Timestamp = ts

	out := mustDecode(t, NewDecoder(), raw, DefaultPolicy())

	if out.Width != 2 || out.Height != 2 {
		t.Errorf("size = %dx%d, want 2x2", out.Width, out.Height)
	}
	if diff := cmp.Diff([]uint16{50, 100, 2500, 0}, out.Ranges); diff != "" {
		t.Errorf("ranges mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]uint8{5, 10, 255, 0}, out.Pix); diff != "" {
		t.Errorf("pixels mismatch (-want +got):\n%s", diff)
	}
	if out.MinRange != 0 || out.MaxRange != 2500 {
		t.Errorf("extent = [%d,%d], want [0,2500]", out.MinRange, out.MaxRange)
	}
	if out.MinUsed != 0 || out.MaxUsed != 2500 {
		t.Errorf("window = [%d,%d], want [0,2500]", out.MinUsed, out.MaxUsed)
	}
	if !out.Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %v, want %v", out.Timestamp, ts)
	}
}

func TestDecode_Orientation(t *testing.T) {
	// 3 wide, 2 tall. Each sample encodes its own raw position.
	//   row 0: 10 11 12
	//   row 1: 20 21 22
	raw := rawFrame(3, 2, 10, 11, 12, 20, 21, 22)
	out := mustDecode(t, NewDecoder(), raw, DefaultPolicy())

	if out.Width != 2 || out.Height != 3 {
		t.Fatalf("size = %dx%d, want 2x3", out.Width, out.Height)
	}
	want := [][]uint16{
		{20, 10},
		{21, 11},
		{22, 12},
	}
	for row := range want {
		for col := range want[row] {
			if got := out.RangeAt(row, col); got != want[row][col] {
				t.Errorf("RangeAt(%d, %d) = %d, want %d", row, col, got, want[row][col])
			}
		}
	}
}

func TestDecode_UniformMidpoint(t *testing.T) {
	raw := RawFrame{Width: 4, Height: 3, Data: testutil.UniformDepth16(4, 3, 1250)}
	out := mustDecode(t, NewDecoder(), raw, DefaultPolicy())
	for i, v := range out.Pix {
		if v != 128 {
			t.Errorf("pixel %d = %d, want 128", i, v)
		}
	}
}

func TestDecode_ConfidenceBitsIgnored(t *testing.T) {
	raw := rawFrame(1, 1, uint16(NewSample(2500, 7)))
	out := mustDecode(t, NewDecoder(), raw, DefaultPolicy())
	if out.Ranges[0] != 2500 || out.Pix[0] != 255 {
		t.Errorf("range, pixel = %d, %d, want 2500, 255", out.Ranges[0], out.Pix[0])
	}
}

// One raw column, top to bottom 10, 20, 30. Scanning runs bottom-up, so the
// samples are visited as 30, 20, 10.
func TestDecode_RangeTrackingModes(t *testing.T) {
	tests := []struct {
		name     string
		tracking RangeTracking
		min, max uint16
		pix      []uint8
	}{
		{"exclusive keeps the zero minimum", TrackExclusive, 0, 30, []uint8{255, 170, 85}},
		{"seeded starves the maximum", TrackSeeded, 10, 0, []uint8{0, 0, 0}},
		{"independent", TrackIndependent, 10, 30, []uint8{255, 128, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := rawFrame(1, 3, 10, 20, 30)
			out := mustDecode(t, NewDecoder(WithTracking(tt.tracking)), raw, DynamicPolicy())

			if out.MinRange != tt.min || out.MaxRange != tt.max {
				t.Errorf("extent = [%d,%d], want [%d,%d]", out.MinRange, out.MaxRange, tt.min, tt.max)
			}
			if diff := cmp.Diff(tt.pix, out.Pix); diff != "" {
				t.Errorf("pixels mismatch (-want +got):\n%s", diff)
			}
			if out.MinUsed > out.MaxUsed {
				t.Errorf("window = [%d,%d], min above max", out.MinUsed, out.MaxUsed)
			}
		})
	}
}

func TestDecode_DefaultTrackingIsExclusive(t *testing.T) {
	if got := NewDecoder().Tracking; got != TrackExclusive {
		t.Errorf("NewDecoder().Tracking = %v, want exclusive", got)
	}
	// A dynamic frame always normalizes from 0 to its largest sample.
	out := mustDecode(t, NewDecoder(), rawFrame(2, 1, 400, 800), DynamicPolicy())
	if out.MinUsed != 0 || out.MaxUsed != 800 {
		t.Errorf("window = [%d,%d], want [0,800]", out.MinUsed, out.MaxUsed)
	}
	if diff := cmp.Diff([]uint8{128, 255}, out.Pix); diff != "" {
		t.Errorf("pixels mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_ZeroSamplesNeverSetMin(t *testing.T) {
	for _, mode := range []RangeTracking{TrackExclusive, TrackSeeded, TrackIndependent} {
		out := mustDecode(t, NewDecoder(WithTracking(mode)), rawFrame(2, 1, 0, 0), DynamicPolicy())
		if out.MinRange != 0 || out.MaxRange != 0 {
			t.Errorf("%v: extent = [%d,%d], want [0,0]", mode, out.MinRange, out.MaxRange)
		}
		if diff := cmp.Diff([]uint8{0, 0}, out.Pix); diff != "" {
			t.Errorf("%v: pixels mismatch (-want +got):\n%s", mode, diff)
		}
	}
}

func TestDecode_WindowNeverInverted(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	policies := []Policy{DynamicPolicy(), DefaultPolicy(), FixedPolicy(300, 1200)}
	modes := []RangeTracking{TrackExclusive, TrackSeeded, TrackIndependent}

	for i := 0; i < 200; i++ {
		w, h := 1+rng.IntN(8), 1+rng.IntN(8)
		samples := make([]uint16, w*h)
		for j := range samples {
			switch rng.IntN(4) {
			case 0:
				samples[j] = 0
			default:
				// Set confidence bits as well as the range.
				samples[j] = uint16(rng.IntN(1 << 16))
			}
		}
		raw := rawFrame(w, h, samples...)

		for _, mode := range modes {
			for _, p := range policies {
				out := mustDecode(t, NewDecoder(WithTracking(mode)), raw, p)
				if out.MinUsed > out.MaxUsed {
					t.Fatalf("frame %d %v %v: window [%d,%d] inverted", i, mode, p, out.MinUsed, out.MaxUsed)
				}
				if mode == TrackExclusive && out.MinRange != 0 {
					t.Fatalf("frame %d %v: exclusive min = %d, want 0", i, p, out.MinRange)
				}
				if mode != TrackSeeded {
					var max uint16
					for _, r := range out.Ranges {
						if r > max {
							max = r
						}
					}
					if out.MaxRange != max {
						t.Fatalf("frame %d %v: max = %d, want %d", i, mode, out.MaxRange, max)
					}
				}
			}
		}
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  RawFrame
	}{
		{"short buffer", RawFrame{Width: 2, Height: 2, Data: make([]byte, 6)}},
		{"long buffer", RawFrame{Width: 2, Height: 2, Data: make([]byte, 10)}},
		{"zero width", RawFrame{Width: 0, Height: 2, Data: nil}},
		{"negative height", RawFrame{Width: 2, Height: -1, Data: nil}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := NewDecoder().Decode(tt.raw, DefaultPolicy())
			if out != nil {
				t.Errorf("Decode() returned a frame for malformed input")
			}
			if !errors.Is(err, ErrMalformedFrame) {
				t.Fatalf("Decode() error = %v, want ErrMalformedFrame", err)
			}
			var mfe *MalformedFrameError
			if !errors.As(err, &mfe) {
				t.Errorf("error %T is not a *MalformedFrameError", err)
			}
		})
	}
}

func TestDecodedFrame_Image(t *testing.T) {
	raw := rawFrame(2, 2, 100, 0, 50, 2500)
	out := mustDecode(t, NewDecoder(), raw, DefaultPolicy())

	img := out.Image()
	if img.Bounds().Dx() != 2 || img.Bounds().Dy() != 2 {
		t.Fatalf("image bounds = %v, want 2x2", img.Bounds())
	}
	want := map[[2]int]color.NRGBA{
		{0, 0}: {G: 5, A: 255},
		{1, 0}: {G: 10, A: 255},
		{0, 1}: {G: 255, A: 255},
		{1, 1}: Color(0),
	}
	for pt, c := range want {
		if got := img.NRGBAAt(pt[0], pt[1]); got != c {
			t.Errorf("pixel %v = %v, want %v", pt, got, c)
		}
	}
}

func TestParseRangeTracking(t *testing.T) {
	tests := []struct {
		in   string
		want RangeTracking
		ok   bool
	}{
		{"", TrackExclusive, true},
		{"exclusive", TrackExclusive, true},
		{"seeded", TrackSeeded, true},
		{"independent", TrackIndependent, true},
		{"bogus", TrackExclusive, false},
	}
	for _, tt := range tests {
		got, ok := ParseRangeTracking(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseRangeTracking(%q) = %v, %v, want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
		if ok && tt.in != "" && got.String() != tt.in {
			t.Errorf("%v.String() = %q, want %q", got, got.String(), tt.in)
		}
	}
}
