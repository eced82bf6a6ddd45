package imageproc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"imgupload/internal/models"
)

// ThumbsDir is the subdirectory of an upload's directory holding one folder
// per thumbnail profile.
const ThumbsDir = "thumbs"

// Logger is the sink for backend failures. *log.Logger satisfies it.
type Logger interface {
	Printf(format string, v ...any)
}

// collect logs err as critical and flattens it into pipeline messages.
func collect(log Logger, what string, err error) []string {
	log.Printf("[CRITICAL] %s", what)
	var be *BackendError
	if errors.As(err, &be) {
		for _, m := range be.Messages {
			log.Printf("[CRITICAL] %s: %s", be.Op, m)
		}
		return append([]string(nil), be.Messages...)
	}
	log.Printf("[CRITICAL] %v", err)
	return []string{err.Error()}
}

// Resizer constrains the primary image to a maximum box in place.
type Resizer struct {
	backend Backend
	quality int
	log     Logger
}

func NewResizer(backend Backend, quality int, log Logger) *Resizer {
	return &Resizer{backend: backend, quality: quality, log: log}
}

// Resize is a no-op for a zero box. Dimensions are always re-read from the
// file afterwards.
func (r *Resizer) Resize(ctx context.Context, rec *models.FileRecord, box models.SizeSpec) []string {
	if box.IsZero() {
		return nil
	}

	var errs []string
	if _, err := r.backend.Resize(ctx, rec.FullPath, rec.FullPath, int(box.Width), int(box.Height), r.quality, false); err != nil {
		errs = collect(r.log, "unable to resize image "+rec.FullPath, err)
	}

	if w, h, err := imageSize(rec.FullPath); err == nil {
		rec.Width, rec.Height = w, h
	}
	return errs
}

// ThumbnailGenerator derives one scaled copy per profile under
// <dir>/thumbs/<profile>/<file>.
type ThumbnailGenerator struct {
	backend Backend
	log     Logger
	urlFor  func(path string) string
}

func NewThumbnailGenerator(backend Backend, log Logger, urlFor func(string) string) *ThumbnailGenerator {
	return &ThumbnailGenerator{backend: backend, log: log, urlFor: urlFor}
}

// thumbQuality is fixed for derived copies.
const thumbQuality = 100

func (g *ThumbnailGenerator) Generate(ctx context.Context, rec *models.FileRecord, profiles []models.ThumbnailProfile) []string {
	var errs []string
	for _, p := range profiles {
		if !validProfileName(p.Name) {
			errs = append(errs, fmt.Sprintf("invalid thumbnail profile name %q", p.Name))
			continue
		}

		dir := filepath.Join(rec.FilePath, ThumbsDir, p.Name)
		// MkdirAll treats an existing directory as success
		if err := os.MkdirAll(dir, 0755); err != nil {
			errs = append(errs, collect(g.log, "unable to create thumbnail directory "+dir, err)...)
			continue
		}

		dst := filepath.Join(dir, rec.FileName)
		size, err := g.backend.Resize(ctx, rec.FullPath, dst, int(p.Spec.Width), int(p.Spec.Height), thumbQuality, true)
		if err != nil {
			errs = append(errs, collect(g.log, fmt.Sprintf("unable to create %s thumbnail for %s", p.Name, rec.FullPath), err)...)
			continue
		}

		bytes, _ := fileSize(dst)
		if rec.Thumbs == nil {
			rec.Thumbs = make(map[string]models.ThumbnailResult)
		}
		rec.Thumbs[p.Name] = models.ThumbnailResult{
			Dir:    dir,
			Path:   dst,
			URL:    g.urlFor(dst),
			Width:  size.X,
			Height: size.Y,
			Size:   bytes,
		}
	}
	return errs
}

func validProfileName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}
