package upload

import (
	"context"
	"errors"
	"fmt"

	"imgupload/internal/models"
)

// AbortError stops a multi-file upload at the first file the transport
// rejected. Files before Index are kept with all their artifacts.
type AbortError struct {
	Index int
	Err   *TransportError
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("upload aborted at file %d: %v", e.Index+1, e.Err)
}

func (e *AbortError) Unwrap() error {
	return e.Err
}

// Processor post-processes a received image. *imageproc.Pipeline
// satisfies it.
type Processor interface {
	Process(ctx context.Context, rec *models.FileRecord) *models.PipelineResult
	URL(file string) string
}

type Logger interface {
	Printf(format string, v ...any)
}

// Uploader receives files and runs each image through the pipeline, one
// file at a time.
type Uploader struct {
	transport *Transport
	pipeline  Processor
	log       Logger
}

func NewUploader(transport *Transport, pipeline Processor, log Logger) *Uploader {
	return &Uploader{transport: transport, pipeline: pipeline, log: log}
}

// Process receives a single file. A transport failure is returned as a
// *TransportError; pipeline problems are reported in the result.
func (u *Uploader) Process(ctx context.Context, src Source) (*models.PipelineResult, error) {
	rec, err := u.transport.Receive(src)
	if err != nil {
		return nil, err
	}
	if !rec.IsImage {
		rec.URL = u.pipeline.URL(rec.FullPath)
		u.log.Printf("stored %s as %s (%s), not an image", rec.ClientName, rec.FileName, rec.FileType)
		return &models.PipelineResult{Record: rec, Errors: []string{}}, nil
	}
	return u.pipeline.Process(ctx, rec), nil
}

// ProcessBatch handles srcs strictly in order. The first transport failure
// ends the batch with an *AbortError; results for the files before it are
// returned and nothing already written is removed.
func (u *Uploader) ProcessBatch(ctx context.Context, srcs []Source) ([]*models.PipelineResult, error) {
	results := make([]*models.PipelineResult, 0, len(srcs))
	for i, src := range srcs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := u.Process(ctx, src)
		if err != nil {
			var te *TransportError
			if !errors.As(err, &te) {
				te = transportErr(src.Name, err.Error())
			}
			u.log.Printf("batch aborted at %d/%d: %v", i+1, len(srcs), te)
			return results, &AbortError{Index: i, Err: te}
		}
		results = append(results, res)
	}
	return results, nil
}
