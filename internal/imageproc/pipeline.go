package imageproc

import (
	"context"
	"path"
	"path/filepath"
	"strings"
	"time"

	"imgupload/internal/models"
	"imgupload/internal/optimizer"
)

// Options is the immutable per-deployment configuration of a Pipeline.
type Options struct {
	Quality   int
	MaxSize   models.SizeSpec // zero disables the resize stage
	Profiles  []models.ThumbnailProfile
	Watermark models.WatermarkConfig
	Root      string // upload root, URLs are derived relative to it
	BaseURL   string
}

// OptionsFromConfig flattens the image and upload sections of cfg.
func OptionsFromConfig(cfg *models.Config) Options {
	opts := Options{
		Quality:   cfg.Image.Quality,
		Profiles:  cfg.Image.Profiles(),
		Watermark: cfg.Image.Watermark(),
		Root:      cfg.Upload.Path,
		BaseURL:   cfg.Upload.BaseURL,
	}
	if abs, err := filepath.Abs(cfg.Upload.Path); err == nil {
		opts.Root = abs
	}
	if !cfg.Image.ResizeDisabled() {
		opts.MaxSize = models.ParseSizeSpec(cfg.Image.MaxImageSize)
	}
	return opts
}

// NewBackend returns the backend named by image_backend.
func NewBackend(cfg models.ImageConfig) (Backend, error) {
	if cfg.Backend == "magick" {
		return NewMagickBackend(cfg.BackendPath)
	}
	return NewImagingBackend(), nil
}

// Pipeline runs resize, thumbnails and watermark over one record, then
// hands every written file to the optimizer.
type Pipeline struct {
	opts      Options
	resizer   *Resizer
	thumbs    *ThumbnailGenerator
	watermark *WatermarkCompositor
	optimizer optimizer.Optimizer
	log       Logger
}

func New(opts Options, backend Backend, opt optimizer.Optimizer, log Logger) *Pipeline {
	p := &Pipeline{opts: opts, optimizer: opt, log: log}
	p.resizer = NewResizer(backend, opts.Quality, log)
	p.thumbs = NewThumbnailGenerator(backend, log, p.URL)
	p.watermark = NewWatermarkCompositor(backend, log)
	return p
}

// NewFromConfig selects the backend and optimizer once from cfg.
func NewFromConfig(cfg *models.Config, log Logger) (*Pipeline, error) {
	backend, err := NewBackend(cfg.Image)
	if err != nil {
		return nil, err
	}
	opt := optimizer.New(cfg.Image.OptimizeImages, time.Duration(cfg.Image.OptimizeTimeout)*time.Second, log)
	return New(OptionsFromConfig(cfg), backend, opt, log), nil
}

// Process mutates rec in place. It never fails; every problem is reported
// in the result's Errors in the order it happened.
func (p *Pipeline) Process(ctx context.Context, rec *models.FileRecord) *models.PipelineResult {
	res := &models.PipelineResult{Record: rec, Errors: []string{}}

	if !p.opts.MaxSize.IsZero() {
		res.Errors = append(res.Errors, p.resizer.Resize(ctx, rec, p.opts.MaxSize)...)
	}
	res.Errors = append(res.Errors, p.thumbs.Generate(ctx, rec, p.opts.Profiles)...)
	if p.opts.Watermark.Enabled {
		res.Errors = append(res.Errors, p.watermark.Apply(ctx, rec, p.opts.Watermark)...)
	}

	if size, err := fileSize(rec.FullPath); err == nil {
		rec.Size = size
	}
	rec.URL = p.URL(rec.FullPath)

	for _, prof := range p.opts.Profiles {
		if t, ok := rec.Thumbs[prof.Name]; ok {
			p.optimizer.Optimize(ctx, t.Path)
		}
	}
	p.optimizer.Optimize(ctx, rec.FullPath)

	p.log.Printf("processed %s: %dx%d, %d thumbs, %d errors", rec.FullPath, rec.Width, rec.Height, len(rec.Thumbs), len(res.Errors))
	return res
}

// URL maps a file under the upload root to its public address.
func (p *Pipeline) URL(file string) string {
	rel, err := filepath.Rel(p.opts.Root, file)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(file)
	}
	base := strings.TrimRight(p.opts.BaseURL, "/")
	return base + "/" + path.Clean(filepath.ToSlash(rel))
}
