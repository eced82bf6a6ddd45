// internal/storage/storage.go
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"imgupload/internal/models"
)

var ErrNotFound = errors.New("upload not found")

// Upload is a stored pipeline outcome.
type Upload struct {
	Status string                 `json:"status"`
	Result *models.PipelineResult `json:"result"`
}

type Storage struct {
	pool *pgxpool.Pool
}

func NewStorage(ctx context.Context, dsn string) (*Storage, error) {
	const op = "storage.NewStorage"

	if err := runMigrations(dsn); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Storage{pool: pool}, nil
}

func (s *Storage) Close() {
	s.pool.Close()
}

// SaveUpload inserts the record of res, replacing a previous row with the
// same id.
func (s *Storage) SaveUpload(ctx context.Context, res *models.PipelineResult) error {
	const op = "storage.SaveUpload"

	rec := res.Record
	thumbs, errs, err := encodeExtras(res)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO uploads (id, status, client_name, orig_name, file_name, file_path, full_path,
			file_ext, file_type, image_type, is_image, image_width, image_height, file_size, url, thumbs, errors)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status, image_width = EXCLUDED.image_width, image_height = EXCLUDED.image_height,
			file_size = EXCLUDED.file_size, url = EXCLUDED.url, thumbs = EXCLUDED.thumbs, errors = EXCLUDED.errors`,
		rec.ID, res.Status(), rec.ClientName, rec.OrigName, rec.FileName, rec.FilePath, rec.FullPath,
		rec.FileExt, rec.FileType, rec.ImageType, rec.IsImage, rec.Width, rec.Height, rec.Size, rec.URL,
		thumbs, errs)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Storage) GetUpload(ctx context.Context, id uuid.UUID) (*Upload, error) {
	const op = "storage.GetUpload"

	var (
		rec          models.FileRecord
		status       string
		thumbs, errs []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, status, client_name, orig_name, file_name, file_path, full_path,
			file_ext, file_type, image_type, is_image, image_width, image_height, file_size, url, thumbs, errors
		FROM uploads WHERE id = $1`, id).
		Scan(&rec.ID, &status, &rec.ClientName, &rec.OrigName, &rec.FileName, &rec.FilePath, &rec.FullPath,
			&rec.FileExt, &rec.FileType, &rec.ImageType, &rec.IsImage, &rec.Width, &rec.Height, &rec.Size, &rec.URL,
			&thumbs, &errs)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	res, err := decodeExtras(&rec, thumbs, errs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Upload{Status: status, Result: res}, nil
}

func (s *Storage) DeleteUpload(ctx context.Context, id uuid.UUID) error {
	const op = "storage.DeleteUpload"
	tag, err := s.pool.Exec(ctx, `DELETE FROM uploads WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// encodeExtras renders the JSONB columns. Nil collections become empty
// JSON values so the NOT NULL defaults are never bypassed.
func encodeExtras(res *models.PipelineResult) ([]byte, []byte, error) {
	thumbs := res.Record.Thumbs
	if thumbs == nil {
		thumbs = map[string]models.ThumbnailResult{}
	}
	errs := res.Errors
	if errs == nil {
		errs = []string{}
	}
	tb, err := json.Marshal(thumbs)
	if err != nil {
		return nil, nil, err
	}
	eb, err := json.Marshal(errs)
	if err != nil {
		return nil, nil, err
	}
	return tb, eb, nil
}

func decodeExtras(rec *models.FileRecord, thumbs, errs []byte) (*models.PipelineResult, error) {
	res := &models.PipelineResult{Record: rec, Errors: []string{}}
	if len(thumbs) > 0 {
		if err := json.Unmarshal(thumbs, &rec.Thumbs); err != nil {
			return nil, err
		}
	}
	if len(errs) > 0 {
		if err := json.Unmarshal(errs, &res.Errors); err != nil {
			return nil, err
		}
	}
	return res, nil
}
