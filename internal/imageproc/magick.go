package imageproc

import (
	"context"
	"fmt"
	"image"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// MagickBackend shells out to ImageMagick for resize and composite. Decoding
// and sampling stay in process.
type MagickBackend struct {
	ImagingBackend
	bin string
}

// NewMagickBackend looks for the magick binary in dir first, then in PATH.
func NewMagickBackend(dir string) (*MagickBackend, error) {
	const op = "imageproc.NewMagickBackend"
	candidates := []string{"magick"}
	if dir != "" {
		candidates = []string{filepath.Join(dir, "magick"), "magick"}
	}
	for _, c := range candidates {
		if bin, err := exec.LookPath(c); err == nil {
			return &MagickBackend{bin: bin}, nil
		}
	}
	return nil, fmt.Errorf("%s: magick not found in %q or PATH", op, dir)
}

func (b *MagickBackend) Resize(ctx context.Context, src, dst string, width, height, quality int, thumbnail bool) (image.Point, error) {
	op := "magick.Resize"
	if thumbnail {
		op = "magick.Thumbnail"
	}
	args := []string{
		src,
		"-resize", magickGeometry(width, height),
		"-quality", strconv.Itoa(quality),
		dst,
	}
	if err := b.run(ctx, op, args); err != nil {
		return image.Point{}, err
	}
	w, h, err := imageSize(dst)
	if err != nil {
		return image.Point{}, backendErr(op, fmt.Sprintf("unable to read %s", dst), err.Error())
	}
	return image.Pt(w, h), nil
}

func (b *MagickBackend) Overlay(ctx context.Context, src, dst, asset string, x, y, quality int) error {
	args := []string{
		src, asset,
		"-geometry", fmt.Sprintf("%+d%+d", x, y),
		"-composite",
		"-quality", strconv.Itoa(quality),
		dst,
	}
	return b.run(ctx, "magick.Overlay", args)
}

func (b *MagickBackend) run(ctx context.Context, op string, args []string) error {
	out, err := exec.CommandContext(ctx, b.bin, args...).CombinedOutput()
	if err == nil {
		return nil
	}
	var msgs []string
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			msgs = append(msgs, line)
		}
	}
	msgs = append(msgs, err.Error())
	return backendErr(op, msgs...)
}

// magickGeometry builds a shrink-only geometry; "800x>" leaves the height
// free.
func magickGeometry(width, height int) string {
	var sb strings.Builder
	if width > 0 {
		sb.WriteString(strconv.Itoa(width))
	}
	sb.WriteByte('x')
	if height > 0 {
		sb.WriteString(strconv.Itoa(height))
	}
	sb.WriteByte('>')
	return sb.String()
}
