package server

import (
	"context"

	"github.com/google/uuid"

	"imgupload/internal/models"
	"imgupload/internal/storage"
)

// Store persists processed uploads. *storage.Storage satisfies it.
type Store interface {
	SaveUpload(ctx context.Context, res *models.PipelineResult) error
	GetUpload(ctx context.Context, id uuid.UUID) (*storage.Upload, error)
	DeleteUpload(ctx context.Context, id uuid.UUID) error
}

// Publisher announces processed uploads.
type Publisher interface {
	Publish(ctx context.Context, res *models.PipelineResult) error
}

// Mirror copies a processed upload to remote storage.
type Mirror interface {
	Mirror(ctx context.Context, rec *models.FileRecord) error
}

type Logger interface {
	Printf(format string, v ...any)
}

// Recorder runs everything that happens after the pipeline: mirroring,
// persistence and the processed event. Mirror and events are optional.
type Recorder struct {
	store  Store
	events Publisher
	mirror Mirror
	log    Logger
}

func NewRecorder(store Store, events Publisher, mirror Mirror, log Logger) *Recorder {
	return &Recorder{store: store, events: events, mirror: mirror, log: log}
}

// Complete never fails the upload. Problems are logged, a failed save is
// returned so the caller can report it.
func (r *Recorder) Complete(ctx context.Context, res *models.PipelineResult) error {
	rec := res.Record
	if r.mirror != nil {
		if err := r.mirror.Mirror(ctx, rec); err != nil {
			r.log.Printf("mirror %s: %v", rec.ID, err)
		}
	}
	if err := r.store.SaveUpload(ctx, res); err != nil {
		return err
	}
	if r.events != nil {
		if err := r.events.Publish(ctx, res); err != nil {
			r.log.Printf("publish %s: %v", rec.ID, err)
		}
	}
	return nil
}
