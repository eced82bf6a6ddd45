package imageproc

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

var (
	LightInk = color.NRGBA{R: 255, G: 255, B: 255, A: 200}
	DarkInk  = color.NRGBA{R: 20, G: 20, B: 20, A: 200}
)

// RenderTextMark draws text in ink on a transparent canvas just large
// enough to hold it.
func RenderTextMark(text string, size float64, ink color.Color) (*image.NRGBA, error) {
	const op = "imageproc.RenderTextMark"
	if text == "" {
		return nil, fmt.Errorf("%s: empty text", op)
	}

	f, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	face := truetype.NewFace(f, &truetype.Options{Size: size, DPI: 72, Hinting: font.HintingFull})
	defer face.Close()

	m := face.Metrics()
	pad := int(size/4) + 1
	w := font.MeasureString(face, text).Ceil() + 2*pad
	h := (m.Ascent + m.Descent).Ceil() + 2*pad
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))

	c := freetype.NewContext()
	c.SetDPI(72)
	c.SetFont(f)
	c.SetFontSize(size)
	c.SetHinting(font.HintingFull)
	c.SetClip(dst.Bounds())
	c.SetDst(dst)
	c.SetSrc(image.NewUniform(ink))

	if _, err := c.DrawString(text, freetype.Pt(pad, pad+m.Ascent.Ceil())); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return dst, nil
}

// WriteTextMarks renders the light and dark variants of text as PNG files.
func WriteTextMarks(text string, size float64, lightPath, darkPath string) error {
	const op = "imageproc.WriteTextMarks"
	for _, v := range []struct {
		path string
		ink  color.NRGBA
	}{
		{lightPath, LightInk},
		{darkPath, DarkInk},
	} {
		img, err := RenderTextMark(text, size, v.ink)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(v.path), 0755); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if err := imaging.Save(img, v.path); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}
