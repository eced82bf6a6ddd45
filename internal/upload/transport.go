package upload

import (
	"errors"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/google/uuid"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"imgupload/internal/models"
)

// Transport error messages.
const (
	MsgNoFile       = "You did not select a file to upload."
	MsgPartial      = "The uploaded file was only partially uploaded."
	MsgTooLarge     = "The file you are attempting to upload is larger than the permitted size."
	MsgTypeRejected = "The filetype you are attempting to upload is not allowed."
	MsgWriteFailed  = "The file could not be written to disk."
)

// TransportError is returned when a single file could not be received.
type TransportError struct {
	File     string
	Messages []string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("upload %q: %s", e.File, strings.Join(e.Messages, "; "))
}

func transportErr(file string, msgs ...string) *TransportError {
	return &TransportError{File: file, Messages: msgs}
}

// Source is one incoming file, independent of how it reached the service.
type Source struct {
	Name string // client supplied file name
	Size int64  // -1 when unknown
	// Code is the client side upload status, 0 when the upload completed,
	// 3 when partial and 4 when no file was sent.
	Code int
	Open func() (io.ReadCloser, error)
}

// FromMultipart wraps a file received over HTTP.
func FromMultipart(fh *multipart.FileHeader) Source {
	return Source{
		Name: fh.Filename,
		Size: fh.Size,
		Open: func() (io.ReadCloser, error) { return fh.Open() },
	}
}

// FromProps builds a source from one reshaped file record of an ingest
// message: name, tmp_name, size and error.
func FromProps(props map[string]any) Source {
	src := Source{
		Name: stringProp(props["name"]),
		Size: -1,
	}
	if n, ok := intProp(props["size"]); ok {
		src.Size = n
	}
	if n, ok := intProp(props["error"]); ok {
		src.Code = int(n)
	}
	tmp := stringProp(props["tmp_name"])
	src.Open = func() (io.ReadCloser, error) {
		if tmp == "" {
			return nil, os.ErrNotExist
		}
		return os.Open(tmp)
	}
	return src
}

// FromFile reads a file from local disk under its own name.
func FromFile(path string) Source {
	src := Source{Name: filepath.Base(path), Size: -1}
	if info, err := os.Stat(path); err == nil {
		src.Size = info.Size()
	}
	src.Open = func() (io.ReadCloser, error) { return os.Open(path) }
	return src
}

// SourcesFrom expands a reshaped submission into sources in index order.
func SourcesFrom(sub any) ([]Source, error) {
	switch v := sub.(type) {
	case map[string]any:
		return []Source{FromProps(v)}, nil
	case []map[string]any:
		srcs := make([]Source, 0, len(v))
		for _, props := range v {
			srcs = append(srcs, FromProps(props))
		}
		return srcs, nil
	}
	return nil, fmt.Errorf("upload.SourcesFrom: unexpected submission %T", sub)
}

func stringProp(v any) string {
	s, _ := v.(string)
	return s
}

func intProp(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	}
	return 0, false
}

// Transport stores incoming files under the upload directory with random
// names and reports what they are.
type Transport struct {
	root    string
	allowed map[string]bool
	maxSize int64
}

func NewTransport(cfg models.UploadConfig) (*Transport, error) {
	const op = "upload.NewTransport"

	root, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	allowed := make(map[string]bool)
	for _, ext := range strings.Split(cfg.AllowedTypes, "|") {
		if ext = strings.ToLower(strings.TrimSpace(ext)); ext != "" {
			allowed[ext] = true
		}
	}

	maxSize := cfg.MaxSize
	if maxSize <= 0 || maxSize > models.TransportMaxSize {
		maxSize = models.TransportMaxSize
	}
	return &Transport{root: root, allowed: allowed, maxSize: maxSize}, nil
}

// Root is the absolute upload directory.
func (t *Transport) Root() string {
	return t.root
}

// Receive validates src and writes it to the upload directory. The
// returned record has its image fields filled when the content decodes as
// an image.
func (t *Transport) Receive(src Source) (*models.FileRecord, error) {
	client := src.Name
	switch {
	case src.Code == 4, client == "":
		return nil, transportErr(client, MsgNoFile)
	case src.Code == 3:
		return nil, transportErr(client, MsgPartial)
	case src.Code != 0:
		return nil, transportErr(client, fmt.Sprintf("upload failed with code %d", src.Code))
	}

	ext := strings.ToLower(filepath.Ext(client))
	if !t.allowed[strings.TrimPrefix(ext, ".")] {
		return nil, transportErr(client, MsgTypeRejected)
	}
	if src.Size > t.maxSize {
		return nil, transportErr(client, MsgTooLarge)
	}

	id := uuid.New()
	name := id.String() + normalizeExt(ext)
	full := filepath.Join(t.root, name)

	size, err := t.write(src, full)
	if err != nil {
		return nil, err
	}

	rec := &models.FileRecord{
		ID:         id,
		FullPath:   full,
		FilePath:   t.root,
		FileName:   name,
		OrigName:   strings.ReplaceAll(filepath.Base(client), " ", "_"),
		ClientName: client,
		FileExt:    normalizeExt(ext),
		Size:       size,
	}
	if err := detect(rec); err != nil {
		os.Remove(full)
		return nil, transportErr(client, MsgWriteFailed, err.Error())
	}
	return rec, nil
}

// write copies at most maxSize bytes; anything longer is rejected and the
// partial file removed.
func (t *Transport) write(src Source, dst string) (int64, error) {
	in, err := src.Open()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, transportErr(src.Name, MsgNoFile)
		}
		return 0, transportErr(src.Name, MsgWriteFailed, err.Error())
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return 0, transportErr(src.Name, MsgWriteFailed, err.Error())
	}

	n, err := io.Copy(out, io.LimitReader(in, t.maxSize+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst)
		return 0, transportErr(src.Name, MsgWriteFailed, err.Error())
	}
	if n > t.maxSize {
		os.Remove(dst)
		return 0, transportErr(src.Name, MsgTooLarge)
	}
	return n, nil
}

// normalizeExt maps the jpeg spellings onto .jpg.
func normalizeExt(ext string) string {
	switch ext {
	case ".jpeg", ".jpe":
		return ".jpg"
	}
	return ext
}

// detect sniffs the MIME type and, for images, the format and dimensions.
func detect(rec *models.FileRecord) error {
	f, err := os.Open(rec.FullPath)
	if err != nil {
		return err
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return err
	}
	rec.FileType = http.DetectContentType(head[:n])

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		// not an image, nothing more to learn
		return nil
	}
	rec.IsImage = true
	rec.ImageType = format
	rec.Width = cfg.Width
	rec.Height = cfg.Height
	return nil
}
