package imageproc

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"

	"imgupload/internal/models"
)

// ErrWatermarkPath is recorded when either watermark asset is missing.
const ErrWatermarkPath = "watermark image path is invalid"

// overlayQuality is fixed for the composited primary image.
const overlayQuality = 100

// WatermarkCompositor overlays a light or dark watermark on the primary
// image, whichever contrasts with the region it covers.
type WatermarkCompositor struct {
	backend Backend
	log     Logger
}

func NewWatermarkCompositor(backend Backend, log Logger) *WatermarkCompositor {
	return &WatermarkCompositor{backend: backend, log: log}
}

func (c *WatermarkCompositor) Apply(ctx context.Context, rec *models.FileRecord, cfg models.WatermarkConfig) []string {
	if !cfg.Enabled {
		return nil
	}
	if !isFile(cfg.LightAsset) || !isFile(cfg.DarkAsset) {
		c.log.Printf("[CRITICAL] %s: light=%q dark=%q", ErrWatermarkPath, cfg.LightAsset, cfg.DarkAsset)
		return []string{ErrWatermarkPath}
	}
	if !Eligible(rec.Width, rec.Height, cfg.MinOverlay) {
		return nil
	}

	aw, ah, err := imageSize(cfg.LightAsset)
	if err != nil {
		return collect(c.log, "unable to read watermark "+cfg.LightAsset, err)
	}
	x, y := Placement(rec.Width, rec.Height, aw, ah, cfg)

	img, err := c.backend.Decode(rec.FullPath, rec.ImageType)
	if errors.Is(err, ErrUnsupportedType) {
		return nil
	}
	if err != nil {
		return collect(c.log, "unable to decode "+rec.FullPath, err)
	}

	avg := c.backend.SampleAverage(img, image.Rect(x, y, x+aw, y+ah))
	asset := SelectAsset(avg, cfg)

	if err := c.backend.Overlay(ctx, rec.FullPath, rec.FullPath, asset, x, y, overlayQuality); err != nil {
		return collect(c.log, fmt.Sprintf("unable to apply watermark to %s", rec.FullPath), err)
	}
	return nil
}

// Eligible reports whether a w x h image is large enough to carry a
// watermark. Each non-zero side of minSize must be met on its own axis.
func Eligible(w, h int, minSize models.SizeSpec) bool {
	if minSize.Width > 0 && w < int(minSize.Width) {
		return false
	}
	if minSize.Height > 0 && h < int(minSize.Height) {
		return false
	}
	return true
}

// Placement returns the top-left corner of an aw x ah asset on a w x h
// image. Offsets push away from the aligned edge.
func Placement(w, h, aw, ah int, cfg models.WatermarkConfig) (x, y int) {
	switch cfg.VrtAlignment {
	case models.AlignTop:
		y = cfg.VrtOffset
	case models.AlignMiddle:
		y = h/2 - ah/2 + cfg.VrtOffset
	default:
		y = h - ah - cfg.VrtOffset
	}

	switch cfg.HorAlignment {
	case models.AlignLeft:
		x = cfg.HorOffset
	case models.AlignCenter:
		x = w/2 - aw/2 + cfg.HorOffset
	default:
		x = w - aw - cfg.HorOffset
	}
	return x, y
}

// Lightness is (max(R,G,B) + min(R,G,B)) / 510, 0 for black and 1 for white.
func Lightness(c color.NRGBA) float64 {
	hi, lo := c.R, c.R
	for _, v := range []uint8{c.G, c.B} {
		if v > hi {
			hi = v
		}
		if v < lo {
			lo = v
		}
	}
	return float64(int(hi)+int(lo)) / 510.0
}

// SelectAsset picks the light asset for a dark background and the dark
// asset otherwise. Exactly 0.5 counts as light background.
func SelectAsset(avg color.NRGBA, cfg models.WatermarkConfig) string {
	if Lightness(avg) < 0.5 {
		return cfg.LightAsset
	}
	return cfg.DarkAsset
}

func isFile(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
