package imageproc

import (
	"context"
	"image"
	"image/color"
	"strings"
)

// Backend is the pixel manipulation capability used by every stage.
type Backend interface {
	// Resize fits src into width x height (0 leaves an axis free) keeping
	// the aspect ratio and writes dst. It returns the size actually written.
	Resize(ctx context.Context, src, dst string, width, height, quality int, thumbnail bool) (image.Point, error)
	// Overlay composites asset onto src at (x, y) and writes dst.
	Overlay(ctx context.Context, src, dst, asset string, x, y, quality int) error
	// Decode reads path using the decoder for imageType.
	Decode(path, imageType string) (image.Image, error)
	// SampleAverage returns the mean color of rect within img.
	SampleAverage(img image.Image, rect image.Rectangle) color.NRGBA
}

// BackendError carries every message a backend reported for one call.
type BackendError struct {
	Op       string
	Messages []string
}

func (e *BackendError) Error() string {
	return e.Op + ": " + strings.Join(e.Messages, "; ")
}

func backendErr(op string, msgs ...string) *BackendError {
	return &BackendError{Op: op, Messages: msgs}
}

// fitBox computes the aspect preserving size of a w x h image inside the
// box. A zero box side is unconstrained. Images already inside the box keep
// their size.
func fitBox(w, h, boxW, boxH int) (int, int) {
	if w <= 0 || h <= 0 {
		return w, h
	}
	scale := 1.0
	if boxW > 0 && w > boxW {
		scale = float64(boxW) / float64(w)
	}
	if boxH > 0 && h > boxH {
		if s := float64(boxH) / float64(h); s < scale {
			scale = s
		}
	}
	if scale >= 1 {
		return w, h
	}
	nw := int(float64(w)*scale + 0.5)
	nh := int(float64(h)*scale + 0.5)
	if boxW > 0 && nw > boxW {
		nw = boxW
	}
	if boxH > 0 && nh > boxH {
		nh = boxH
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return nw, nh
}
