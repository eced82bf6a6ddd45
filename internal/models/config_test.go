package models

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Image.Quality != 80 {
		t.Errorf("expected default quality 80, got %d", cfg.Image.Quality)
	}
	if cfg.Image.ThumbsSize["small"] != "208x156" || cfg.Image.ThumbsSize["medium"] != "432x324" {
		t.Errorf("unexpected default thumbs: %v", cfg.Image.ThumbsSize)
	}
	if cfg.Image.MinOverlaySize != "640x480" {
		t.Errorf("expected default min overlay 640x480, got %s", cfg.Image.MinOverlaySize)
	}
	if cfg.Image.WMVrtAlignment != "bottom" || cfg.Image.WMHorAlignment != "right" {
		t.Errorf("unexpected default alignment %s/%s", cfg.Image.WMVrtAlignment, cfg.Image.WMHorAlignment)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestMergePrecedence(t *testing.T) {
	q70, q90 := 70, 90
	top := "top"
	file := Layer{Quality: &q70, WMVrtAlignment: &top}
	call := Layer{Quality: &q90}

	cfg := Merge(Defaults(), file, call)
	if cfg.Image.Quality != 90 {
		t.Errorf("call-site layer should win, got quality %d", cfg.Image.Quality)
	}
	if cfg.Image.WMVrtAlignment != "top" {
		t.Errorf("file layer should survive unset call-site field, got %s", cfg.Image.WMVrtAlignment)
	}
	if cfg.Image.WMHorAlignment != "right" {
		t.Errorf("default should survive, got %s", cfg.Image.WMHorAlignment)
	}
}

func TestMergeCapsMaxSize(t *testing.T) {
	huge := TransportMaxSize * 4
	cfg := Merge(Defaults(), Layer{MaxSize: &huge})
	if cfg.Upload.MaxSize != TransportMaxSize {
		t.Errorf("expected max size capped to %d, got %d", TransportMaxSize, cfg.Upload.MaxSize)
	}
}

func TestMergeDoesNotShareThumbs(t *testing.T) {
	base := Defaults()
	cfg := Merge(base)
	cfg.Image.ThumbsSize["large"] = "800x600"
	if _, ok := base.Image.ThumbsSize["large"]; ok {
		t.Error("merged config must not alias the base thumbs map")
	}
}

func TestMergeStorageDir(t *testing.T) {
	dir := "/srv/assets"
	dark := "/custom/dark.png"
	cfg := Merge(Defaults(), Layer{StorageDir: &dir, WMImageDark: &dark})
	if cfg.Image.WMImageLight != filepath.Join(dir, "wm_light.png") {
		t.Errorf("unexpected light asset %s", cfg.Image.WMImageLight)
	}
	if cfg.Image.WMImageDark != dark {
		t.Errorf("explicit dark asset should win, got %s", cfg.Image.WMImageDark)
	}
}

func TestLoadFileLayer(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	content := `
upload_path: "/var/uploads"
quality: 95
max_image_size: "0"
thumbs_size:
  tiny: "50x50"
allow_watermark: false
wm_hor_alignment: "left"
optimize_images: true
`
	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create test config: %v", err)
	}

	layer, err := LoadFileLayer(configFile)
	if err != nil {
		t.Fatalf("LoadFileLayer failed: %v", err)
	}
	cfg := Merge(Defaults(), layer)

	if cfg.Upload.Path != "/var/uploads" {
		t.Errorf("Expected upload path /var/uploads, got %s", cfg.Upload.Path)
	}
	if cfg.Image.Quality != 95 {
		t.Errorf("Expected quality 95, got %d", cfg.Image.Quality)
	}
	if !cfg.Image.ResizeDisabled() {
		t.Error("max_image_size \"0\" should disable resizing")
	}
	if len(cfg.Image.ThumbsSize) != 1 || cfg.Image.ThumbsSize["tiny"] != "50x50" {
		t.Errorf("thumbs_size should be replaced, got %v", cfg.Image.ThumbsSize)
	}
	if cfg.Image.AllowWatermark {
		t.Error("allow_watermark should be false")
	}
	if cfg.Image.WMHorAlignment != "left" {
		t.Errorf("Expected left alignment, got %s", cfg.Image.WMHorAlignment)
	}
	if !cfg.Image.OptimizeImages {
		t.Error("optimize_images should be true")
	}
}

func TestLoadFileLayerMissing(t *testing.T) {
	layer, err := LoadFileLayer(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing file should not fail: %v", err)
	}
	if layer.Quality != nil {
		t.Error("missing file should yield an empty layer")
	}
}

func TestLoadEnvLayer(t *testing.T) {
	t.Setenv("UPLOADER_QUALITY", "60")
	t.Setenv("UPLOADER_THUMBS_SIZE", "small=100x100, big=800x600")
	t.Setenv("UPLOADER_ALLOW_WATERMARK", "false")

	layer, err := LoadEnvLayer()
	if err != nil {
		t.Fatalf("LoadEnvLayer failed: %v", err)
	}
	cfg := Merge(Defaults(), layer)
	if cfg.Image.Quality != 60 {
		t.Errorf("expected quality 60, got %d", cfg.Image.Quality)
	}
	if cfg.Image.ThumbsSize["big"] != "800x600" || cfg.Image.ThumbsSize["small"] != "100x100" {
		t.Errorf("unexpected thumbs %v", cfg.Image.ThumbsSize)
	}
	if cfg.Image.AllowWatermark {
		t.Error("allow_watermark should be false")
	}
}

func TestLoadEnvLayerInvalid(t *testing.T) {
	t.Setenv("UPLOADER_QUALITY", "high")
	if _, err := LoadEnvLayer(); err == nil {
		t.Error("expected error for non-numeric quality")
	}
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	cfg.Image.Quality = 101
	if err := cfg.Validate(); err == nil {
		t.Error("quality 101 should be rejected")
	}

	cfg = Defaults()
	cfg.Image.WMVrtAlignment = "center"
	if err := cfg.Validate(); err == nil {
		t.Error("center is not a vertical alignment")
	}

	cfg = Defaults()
	cfg.Image.Backend = "gd2"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown backend should be rejected")
	}
}

func TestProfilesSorted(t *testing.T) {
	cfg := Defaults().Image
	profiles := cfg.Profiles()
	if len(profiles) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(profiles))
	}
	if profiles[0].Name != "medium" || profiles[1].Name != "small" {
		t.Errorf("profiles should be sorted by name, got %s, %s", profiles[0].Name, profiles[1].Name)
	}
	if profiles[1].Spec != (SizeSpec{208, 156}) {
		t.Errorf("unexpected small spec %v", profiles[1].Spec)
	}
}
