package storage

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"

	"imgupload/internal/models"
)

func TestMigrationsEmbedded(t *testing.T) {
	files, err := fs.Glob(migrations, migrationPath+"/*.sql")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) == 0 {
		t.Fatal("no migrations embedded")
	}
	data, err := fs.ReadFile(migrations, files[0])
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"-- +goose Up", "-- +goose Down", "CREATE TABLE IF NOT EXISTS uploads"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("%s lacks %q", files[0], want)
		}
	}
}

func TestExtrasEmptyCollections(t *testing.T) {
	res := &models.PipelineResult{Record: &models.FileRecord{}}
	thumbs, errs, err := encodeExtras(res)
	if err != nil {
		t.Fatal(err)
	}
	if string(thumbs) != "{}" || string(errs) != "[]" {
		t.Errorf("got %s and %s", thumbs, errs)
	}

	back, err := decodeExtras(&models.FileRecord{}, thumbs, errs)
	if err != nil {
		t.Fatal(err)
	}
	if back.Errors == nil || len(back.Errors) != 0 || back.Status() != models.StatusDone {
		t.Errorf("unexpected errors %#v", back.Errors)
	}
}

// TestStorageRoundTrip needs a disposable database in UPLOADER_TEST_DATABASE_URL.
func TestStorageRoundTrip(t *testing.T) {
	dsn := os.Getenv("UPLOADER_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("UPLOADER_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := NewStorage(ctx, dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	rec := &models.FileRecord{
		ID:        uuid.New(),
		FileName:  "a.jpg",
		FilePath:  "/srv/uploads",
		FullPath:  "/srv/uploads/a.jpg",
		ImageType: "jpeg",
		IsImage:   true,
		Width:     1280,
		Height:    960,
		Size:      12345,
		Thumbs: map[string]models.ThumbnailResult{
			"small": {Path: "/srv/uploads/thumbs/small/a.jpg", Width: 208, Height: 156},
		},
	}
	res := &models.PipelineResult{Record: rec, Errors: []string{"watermark image path is invalid"}}
	if err := s.SaveUpload(ctx, res); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetUpload(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusPartial || got.Result.Record.Thumbs["small"].Width != 208 || len(got.Result.Errors) != 1 {
		t.Errorf("unexpected upload %+v", got)
	}

	if err := s.DeleteUpload(ctx, rec.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetUpload(ctx, rec.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}
