package imageproc

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"

	// decoders for DecodeConfig on written files
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
)

// ErrUnsupportedType is returned by Decode for image types without a decoder.
var ErrUnsupportedType = errors.New("unsupported image type")

var decodableTypes = map[string]imaging.Format{
	"gif":  imaging.GIF,
	"jpeg": imaging.JPEG,
	"png":  imaging.PNG,
}

// ImagingBackend does all pixel work in process with disintegration/imaging.
type ImagingBackend struct{}

func NewImagingBackend() *ImagingBackend {
	return &ImagingBackend{}
}

func (b *ImagingBackend) Resize(_ context.Context, src, dst string, width, height, quality int, thumbnail bool) (image.Point, error) {
	op := "imaging.Resize"
	if thumbnail {
		op = "imaging.Thumbnail"
	}

	img, err := imaging.Open(src)
	if err != nil {
		return image.Point{}, backendErr(op, fmt.Sprintf("unable to open %s", src), err.Error())
	}

	bounds := img.Bounds()
	nw, nh := fitBox(bounds.Dx(), bounds.Dy(), width, height)
	out := img
	if nw != bounds.Dx() || nh != bounds.Dy() {
		out = imaging.Resize(img, nw, nh, imaging.Lanczos)
	}

	if err := imaging.Save(out, dst, imaging.JPEGQuality(quality)); err != nil {
		return image.Point{}, backendErr(op, fmt.Sprintf("unable to save %s", dst), err.Error())
	}
	return image.Pt(nw, nh), nil
}

func (b *ImagingBackend) Overlay(_ context.Context, src, dst, asset string, x, y, quality int) error {
	const op = "imaging.Overlay"

	bg, err := imaging.Open(src)
	if err != nil {
		return backendErr(op, fmt.Sprintf("unable to open %s", src), err.Error())
	}
	fg, err := imaging.Open(asset)
	if err != nil {
		return backendErr(op, fmt.Sprintf("unable to open watermark %s", asset), err.Error())
	}

	out := imaging.Overlay(bg, fg, image.Pt(x, y), 1.0)
	if err := imaging.Save(out, dst, imaging.JPEGQuality(quality)); err != nil {
		return backendErr(op, fmt.Sprintf("unable to save %s", dst), err.Error())
	}
	return nil
}

func (b *ImagingBackend) Decode(path, imageType string) (image.Image, error) {
	if _, ok := decodableTypes[imageType]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, imageType)
	}
	img, err := imaging.Open(path)
	if err != nil {
		return nil, backendErr("imaging.Decode", err.Error())
	}
	return img, nil
}

// SampleAverage box-resamples rect down to a single pixel. A rect outside
// the image falls back to the whole image.
func (b *ImagingBackend) SampleAverage(img image.Image, rect image.Rectangle) color.NRGBA {
	region := rect.Intersect(img.Bounds())
	if region.Empty() {
		region = img.Bounds()
	}
	crop := imaging.Crop(img, region)
	px := imaging.Resize(crop, 1, 1, imaging.Box)
	return px.NRGBAAt(0, 0)
}

// imageSize reads the pixel dimensions stored in the file header.
func imageSize(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
