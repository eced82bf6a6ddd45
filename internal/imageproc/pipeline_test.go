package imageproc

import (
	"context"
	"image/color"
	"path/filepath"
	"testing"
	"time"

	"imgupload/internal/models"
	"imgupload/internal/optimizer"
)

type recordingOptimizer struct {
	paths []string
}

func (o *recordingOptimizer) Optimize(_ context.Context, path string) {
	o.paths = append(o.paths, path)
}

func (o *recordingOptimizer) SetTimeout(time.Duration) {}

func testOptions(root string) Options {
	return Options{
		Quality: 80,
		MaxSize: models.ParseSizeSpec("1280x960"),
		Profiles: []models.ThumbnailProfile{
			{Name: "medium", Spec: models.ParseSizeSpec("432x324")},
			{Name: "small", Spec: models.ParseSizeSpec("208x156")},
		},
		Root:    root,
		BaseURL: "/files/",
	}
}

func TestPipelineProcess(t *testing.T) {
	root := t.TempDir()
	rec := newRecord(t, root, "photo.jpg", "jpeg", 2000, 1500, color.NRGBA{90, 60, 30, 255})
	opt := &recordingOptimizer{}

	p := New(testOptions(root), NewImagingBackend(), opt, discardLogger())
	res := p.Process(context.Background(), rec)

	if res.Errors == nil || len(res.Errors) != 0 {
		t.Fatalf("expected empty error list, got %#v", res.Errors)
	}
	if res.Status() != models.StatusDone {
		t.Errorf("expected done, got %s", res.Status())
	}
	if rec.Width > 1280 || rec.Height > 960 {
		t.Errorf("primary not constrained: %dx%d", rec.Width, rec.Height)
	}
	if len(rec.Thumbs) != 2 {
		t.Fatalf("expected 2 thumbs, got %d", len(rec.Thumbs))
	}
	if s := rec.Thumbs["small"]; s.Width > 208 || s.Height > 156 {
		t.Errorf("small thumb too big: %dx%d", s.Width, s.Height)
	}
	if m := rec.Thumbs["medium"]; m.Width > 432 || m.Height > 324 {
		t.Errorf("medium thumb too big: %dx%d", m.Width, m.Height)
	}
	if rec.Size <= 0 {
		t.Error("size not recomputed")
	}
	if rec.URL != "/files/photo.jpg" {
		t.Errorf("unexpected url %s", rec.URL)
	}
	if got := rec.Thumbs["small"].URL; got != "/files/thumbs/small/photo.jpg" {
		t.Errorf("unexpected thumb url %s", got)
	}

	want := []string{rec.Thumbs["medium"].Path, rec.Thumbs["small"].Path, rec.FullPath}
	if len(opt.paths) != len(want) {
		t.Fatalf("optimizer saw %v", opt.paths)
	}
	for i := range want {
		if opt.paths[i] != want[i] {
			t.Errorf("optimize #%d: got %s, want %s", i, opt.paths[i], want[i])
		}
	}
}

func TestPipelineResizeDisabled(t *testing.T) {
	root := t.TempDir()
	rec := newRecord(t, root, "photo.png", "png", 2000, 1500, color.White)

	opts := testOptions(root)
	opts.MaxSize = models.SizeSpec{}
	opts.Profiles = nil
	res := New(opts, NewImagingBackend(), optimizer.Noop{}, discardLogger()).Process(context.Background(), rec)

	if len(res.Errors) != 0 {
		t.Fatalf("unexpected errors %v", res.Errors)
	}
	if rec.Width != 2000 || rec.Height != 1500 {
		t.Errorf("resize should be skipped, got %dx%d", rec.Width, rec.Height)
	}
	if len(rec.Thumbs) != 0 {
		t.Errorf("no profiles, got %d thumbs", len(rec.Thumbs))
	}
}

func TestPipelineCollectsErrorsInOrder(t *testing.T) {
	root := t.TempDir()
	rec := newRecord(t, root, "photo.png", "png", 800, 600, color.Black)

	opts := testOptions(root)
	opts.Watermark = models.WatermarkConfig{
		Enabled:    true,
		LightAsset: filepath.Join(root, "missing_light.png"),
		DarkAsset:  filepath.Join(root, "missing_dark.png"),
	}
	b := &failingBackend{failOn: string(filepath.Separator) + "small" + string(filepath.Separator), messages: []string{"thumb failed"}}
	res := New(opts, b, optimizer.Noop{}, discardLogger()).Process(context.Background(), rec)

	want := []string{"thumb failed", ErrWatermarkPath}
	if len(res.Errors) != len(want) {
		t.Fatalf("expected %v, got %v", want, res.Errors)
	}
	for i := range want {
		if res.Errors[i] != want[i] {
			t.Errorf("error #%d: got %q, want %q", i, res.Errors[i], want[i])
		}
	}
	if res.Status() != models.StatusPartial {
		t.Errorf("expected partial, got %s", res.Status())
	}
	if _, ok := rec.Thumbs["medium"]; !ok {
		t.Error("medium thumb should survive the small failure")
	}
}

func TestPipelineWatermarksAfterThumbnails(t *testing.T) {
	root := t.TempDir()
	rec := newRecord(t, root, "photo.png", "png", 800, 600, color.Black)

	opts := testOptions(root)
	opts.MaxSize = models.SizeSpec{}
	opts.Watermark = watermarkFixture(t, t.TempDir())
	res := New(opts, NewImagingBackend(), optimizer.Noop{}, discardLogger()).Process(context.Background(), rec)
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected errors %v", res.Errors)
	}

	if px := pixelAt(t, rec.FullPath, 750, 590); px.R != 255 {
		t.Errorf("primary should be watermarked, got %v", px)
	}
	th := rec.Thumbs["medium"]
	if px := pixelAt(t, th.Path, th.Width-5, th.Height-2); px.R != 0 {
		t.Errorf("thumbnail should be cut before the watermark, got %v", px)
	}
}

func TestPipelineURL(t *testing.T) {
	root := t.TempDir()
	p := New(Options{Root: root, BaseURL: "https://cdn.example.com/u"}, NewImagingBackend(), optimizer.Noop{}, discardLogger())

	cases := map[string]string{
		filepath.Join(root, "a.jpg"):                        "https://cdn.example.com/u/a.jpg",
		filepath.Join(root, ThumbsDir, "small", "a.jpg"):    "https://cdn.example.com/u/thumbs/small/a.jpg",
		filepath.Join(filepath.Dir(root), "elsewhere.jpg"): "https://cdn.example.com/u/elsewhere.jpg",
	}
	for in, want := range cases {
		if got := p.URL(in); got != want {
			t.Errorf("URL(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := models.Defaults()
	cfg.Upload.Path = "relative/uploads"
	opts := OptionsFromConfig(&cfg)

	if !filepath.IsAbs(opts.Root) {
		t.Errorf("root should be absolute, got %s", opts.Root)
	}
	if opts.MaxSize != (models.SizeSpec{Width: 1280, Height: 960}) {
		t.Errorf("unexpected max size %v", opts.MaxSize)
	}
	if len(opts.Profiles) != 2 || opts.Profiles[0].Name != "medium" {
		t.Errorf("unexpected profiles %v", opts.Profiles)
	}

	cfg.Image.MaxImageSize = "0"
	if opts := OptionsFromConfig(&cfg); !opts.MaxSize.IsZero() {
		t.Errorf("\"0\" should disable resizing, got %v", opts.MaxSize)
	}
}
