// internal/models/models.go
package models

import "github.com/google/uuid"

// FileRecord describes one received upload. It is owned by the pipeline run
// that created it and mutated in place by each stage.
type FileRecord struct {
	ID         uuid.UUID `json:"id" db:"id"`
	FullPath   string    `json:"full_path" db:"full_path"`
	FilePath   string    `json:"file_path" db:"file_path"` // containing directory
	FileName   string    `json:"file_name" db:"file_name"`
	OrigName   string    `json:"orig_name" db:"orig_name"`
	ClientName string    `json:"client_name" db:"client_name"`
	FileExt    string    `json:"file_ext" db:"file_ext"`
	FileType   string    `json:"file_type" db:"file_type"`   // MIME
	ImageType  string    `json:"image_type" db:"image_type"` // gif, jpeg, png or the decoder name
	IsImage    bool      `json:"is_image" db:"is_image"`
	Width      int       `json:"image_width" db:"image_width"`
	Height     int       `json:"image_height" db:"image_height"`
	Size       int64     `json:"file_size" db:"file_size"`
	URL        string    `json:"url" db:"url"`

	Thumbs map[string]ThumbnailResult `json:"thumbs,omitempty"`
}

// ThumbnailProfile is a named target box for one derived copy.
type ThumbnailProfile struct {
	Name string
	Spec SizeSpec
}

type ThumbnailResult struct {
	Dir    string `json:"dir"`
	Path   string `json:"path"`
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Size   int64  `json:"size"`
}

type VerticalAlignment string

const (
	AlignTop    VerticalAlignment = "top"
	AlignMiddle VerticalAlignment = "middle"
	AlignBottom VerticalAlignment = "bottom"
)

type HorizontalAlignment string

const (
	AlignLeft   HorizontalAlignment = "left"
	AlignCenter HorizontalAlignment = "center"
	AlignRight  HorizontalAlignment = "right"
)

type WatermarkConfig struct {
	Enabled      bool
	MinOverlay   SizeSpec
	LightAsset   string
	DarkAsset    string
	VrtOffset    int
	HorOffset    int
	VrtAlignment VerticalAlignment
	HorAlignment HorizontalAlignment
}

// PipelineResult carries the processed record together with every non-fatal
// error collected on the way. An empty Errors slice means success.
type PipelineResult struct {
	Record *FileRecord `json:"record"`
	Errors []string    `json:"errors"`
}

// Upload status values stored alongside a record.
const (
	StatusDone    = "done"
	StatusPartial = "partial"
)

// Status reports done when no stage recorded an error.
func (r *PipelineResult) Status() string {
	if len(r.Errors) == 0 {
		return StatusDone
	}
	return StatusPartial
}
