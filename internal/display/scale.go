package display

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

var black = image.NewUniform(color.NRGBA{A: 0xff})

// FitRect returns the rectangle a srcW x srcH image occupies when scaled
// uniformly to fit inside a w x h view and centred. It is empty if either
// size is not positive.
func FitRect(srcW, srcH, w, h int) image.Rectangle {
	if srcW <= 0 || srcH <= 0 || w <= 0 || h <= 0 {
		return image.Rectangle{}
	}
	// Compare w/srcW with h/srcH without floating point.
	var dw, dh int
	if w*srcH <= h*srcW {
		dw = w
		dh = (srcH*w + srcW/2) / srcW
	} else {
		dh = h
		dw = (srcW*h + srcH/2) / srcH
	}
	x0 := (w - dw) / 2
	y0 := (h - dh) / 2
	return image.Rect(x0, y0, x0+dw, y0+dh)
}

// Fit scales src into a new opaque w x h image, aspect preserved, centred
// on black.
func Fit(src image.Image, w, h int) *image.NRGBA {
	dst := Blank(w, h)
	sb := src.Bounds()
	r := FitRect(sb.Dx(), sb.Dy(), w, h)
	if r.Empty() {
		return dst
	}
	if r.Dx() == sb.Dx() && r.Dy() == sb.Dy() {
		draw.Draw(dst, r, src, sb.Min, draw.Src)
		return dst
	}
	draw.ApproxBiLinear.Scale(dst, r, src, sb, draw.Src, nil)
	return dst
}

// Blank returns an opaque black w x h image.
func Blank(w, h int) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), black, image.Point{}, draw.Src)
	return dst
}
