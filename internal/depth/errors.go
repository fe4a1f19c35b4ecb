package depth

import (
	"errors"
	"fmt"
)

// ErrMalformedFrame is matched by every frame shape violation.
var ErrMalformedFrame = errors.New("malformed depth frame")

// MalformedFrameError describes a raw frame whose buffer does not hold
// exactly Width*Height DEPTH16 samples.
type MalformedFrameError struct {
	Width   int
	Height  int
	Got     int
	Want    int
	Message string
}

func (e *MalformedFrameError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%v: %s", ErrMalformedFrame, e.Message)
	}
	return fmt.Sprintf("%v: %dx%d frame needs %d bytes, got %d",
		ErrMalformedFrame, e.Width, e.Height, e.Want, e.Got)
}

// Is reports whether target is ErrMalformedFrame.
func (e *MalformedFrameError) Is(target error) bool {
	return target == ErrMalformedFrame
}
