package mirror

import (
	"context"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"imgupload/internal/models"
)

// PutObjectAPI is the part of *s3.Client the mirror needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Mirror copies a processed upload and its thumbnails to a bucket,
// keeping the on-disk layout below an optional prefix.
type S3Mirror struct {
	client PutObjectAPI
	bucket string
	prefix string
}

func NewS3Mirror(client PutObjectAPI, bucket, prefix string) *S3Mirror {
	return &S3Mirror{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// NewFromConfig builds a mirror from the default AWS credential chain. It
// returns nil when no bucket is configured.
func NewFromConfig(ctx context.Context, cfg models.S3Config) (*S3Mirror, error) {
	const op = "mirror.NewFromConfig"
	if cfg.Bucket == "" {
		return nil, nil
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return NewS3Mirror(s3.NewFromConfig(awsCfg), cfg.Bucket, cfg.Prefix), nil
}

// Key maps a file name relative to the upload root onto an object key.
func (m *S3Mirror) Key(rel string) string {
	rel = strings.TrimLeft(path.Clean("/"+rel), "/")
	if m.prefix == "" {
		return rel
	}
	return m.prefix + "/" + rel
}

// Mirror uploads the primary file and every thumbnail of rec. It stops at
// the first failed upload.
func (m *S3Mirror) Mirror(ctx context.Context, rec *models.FileRecord) error {
	const op = "mirror.Mirror"

	if err := m.put(ctx, rec.FullPath, m.Key(rec.FileName), rec.FileType); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	names := make([]string, 0, len(rec.Thumbs))
	for name := range rec.Thumbs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		th := rec.Thumbs[name]
		key := m.Key(path.Join("thumbs", name, rec.FileName))
		if err := m.put(ctx, th.Path, key, rec.FileType); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}

func (m *S3Mirror) put(ctx context.Context, file, key, contentType string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	input := &s3.PutObjectInput{
		Bucket:            aws.String(m.bucket),
		Key:               aws.String(key),
		Body:              f,
		ChecksumAlgorithm: types.ChecksumAlgorithmSha256,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := m.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}
