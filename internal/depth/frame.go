package depth

import (
	"encoding/binary"
	"image"
	"image/color"
	"time"
)

// BytesPerSample is the size of one DEPTH16 sample.
const BytesPerSample = 2

// RawFrame is a DEPTH16 plane as delivered by the camera: row-major,
// little-endian, Width*Height samples.
type RawFrame struct {
	Width     int
	Height    int
	Data      []byte
	Timestamp time.Time
}

// Validate checks that Data holds exactly Width*Height samples.
func (f RawFrame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return &MalformedFrameError{
			Width:   f.Width,
			Height:  f.Height,
			Got:     len(f.Data),
			Message: "dimensions must be positive",
		}
	}
	want := f.Width * f.Height * BytesPerSample
	if len(f.Data) != want {
		return &MalformedFrameError{Width: f.Width, Height: f.Height, Got: len(f.Data), Want: want}
	}
	return nil
}

// Sample returns the sample at column x, row y. The frame must be valid.
func (f RawFrame) Sample(x, y int) Sample {
	i := (y*f.Width + x) * BytesPerSample
	return Sample(binary.LittleEndian.Uint16(f.Data[i:]))
}

// DecodedFrame is the rotated, normalized image of one raw frame.
//
// The output has Height = raw width rows and Width = raw height columns.
// Output row x, column y holds raw column x read bottom-up, i.e. raw
// sample (x, rawHeight-1-y).
type DecodedFrame struct {
	Width  int
	Height int
	// Pix holds one brightness per pixel, row-major in output orientation.
	Pix []uint8
	// Ranges holds the range in millimetres behind each pixel.
	Ranges []uint16

	// MinRange and MaxRange are the extent discovered while scanning.
	MinRange uint16
	MaxRange uint16
	// MinUsed and MaxUsed are the window Pix was normalized against.
	MinUsed uint16
	MaxUsed uint16

	Policy    Policy
	Timestamp time.Time
}

// At returns the brightness at output row, col.
func (f DecodedFrame) At(row, col int) uint8 {
	return f.Pix[row*f.Width+col]
}

// RangeAt returns the range in millimetres at output row, col.
func (f DecodedFrame) RangeAt(row, col int) uint16 {
	return f.Ranges[row*f.Width+col]
}

// Image renders the frame as opaque green-channel pixels.
func (f DecodedFrame) Image() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, f.Width, f.Height))
	for i, v := range f.Pix {
		img.Pix[i*4+1] = v
		img.Pix[i*4+3] = 0xff
	}
	return img
}

// Color returns the display color for a brightness value.
func Color(brightness uint8) color.NRGBA {
	return color.NRGBA{R: 0, G: brightness, B: 0, A: 0xff}
}
