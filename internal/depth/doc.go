// Package depth decodes DEPTH16 frames from a time-of-flight camera into
// displayable images.
//
// A DEPTH16 sample packs a 13-bit range in millimetres (0 means "no data")
// with a 3-bit confidence field. Decoding a frame discovers the frame's own
// range extent, rotates the buffer into portrait orientation and maps every
// range onto an 8-bit brightness under a normalization Policy. The result is
// rendered into the green channel of an opaque image.
package depth
