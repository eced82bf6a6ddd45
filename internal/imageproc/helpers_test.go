package imageproc

import (
	"context"
	"image"
	"image/color"
	"io"
	"log"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"

	"imgupload/internal/models"
)

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// writeImage saves a solid w x h image, format chosen by extension.
func writeImage(t *testing.T, path string, w, h int, c color.Color) {
	t.Helper()
	if err := imaging.Save(imaging.New(w, h, c), path); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func newRecord(t *testing.T, dir, name, imageType string, w, h int, c color.Color) *models.FileRecord {
	t.Helper()
	full := filepath.Join(dir, name)
	writeImage(t, full, w, h, c)
	return &models.FileRecord{
		FullPath:  full,
		FilePath:  dir,
		FileName:  name,
		ImageType: imageType,
		IsImage:   true,
		Width:     w,
		Height:    h,
	}
}

func pixelAt(t *testing.T, path string, x, y int) color.NRGBA {
	t.Helper()
	img, err := imaging.Open(path)
	if err != nil {
		t.Fatalf("failed to open %s: %v", path, err)
	}
	return color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
}

// failingBackend wraps the imaging backend and fails any call whose
// destination contains failOn.
type failingBackend struct {
	ImagingBackend
	failOn   string
	messages []string
	overlays int
}

func (b *failingBackend) Resize(ctx context.Context, src, dst string, width, height, quality int, thumbnail bool) (image.Point, error) {
	if b.failOn != "" && strings.Contains(dst, b.failOn) {
		return image.Point{}, backendErr("fake.Resize", b.messages...)
	}
	return b.ImagingBackend.Resize(ctx, src, dst, width, height, quality, thumbnail)
}

func (b *failingBackend) Overlay(ctx context.Context, src, dst, asset string, x, y, quality int) error {
	b.overlays++
	if b.failOn != "" && strings.Contains(dst, b.failOn) {
		return backendErr("fake.Overlay", b.messages...)
	}
	return b.ImagingBackend.Overlay(ctx, src, dst, asset, x, y, quality)
}
