package models

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// TransportMaxSize is the hard upload limit of the HTTP transport. A
// configured max_size above it is capped.
const TransportMaxSize int64 = 32 << 20

type Config struct {
	ServerAddr       string
	DatabaseURL      string
	KafkaBroker      string
	KafkaTopic       string
	KafkaIngestTopic string

	Upload UploadConfig
	Image  ImageConfig
	S3     S3Config
}

type UploadConfig struct {
	Path         string
	BaseURL      string
	Field        string
	AllowedTypes string // pipe separated extensions, "gif|jpg|png"
	MaxSize      int64
}

type ImageConfig struct {
	Backend         string
	BackendPath     string
	Quality         int
	MaxImageSize    string
	ThumbsSize      map[string]string
	AllowWatermark  bool
	MinOverlaySize  string
	WMImageLight    string
	WMImageDark     string
	WMText          string
	WMVrtOffset     int
	WMHorOffset     int
	WMVrtAlignment  string
	WMHorAlignment  string
	OptimizeImages  bool
	OptimizeTimeout int // seconds
}

type S3Config struct {
	Bucket string
	Region string
	Prefix string
}

// Layer is a partial configuration. Nil fields leave the lower layer
// untouched when merged.
type Layer struct {
	ServerAddr       *string `yaml:"server_addr"`
	DatabaseURL      *string `yaml:"database_url"`
	KafkaBroker      *string `yaml:"kafka_broker"`
	KafkaTopic       *string `yaml:"kafka_topic"`
	KafkaIngestTopic *string `yaml:"kafka_ingest_topic"`
	StorageDir       *string `yaml:"storage_dir"`

	UploadPath   *string `yaml:"upload_path"`
	BaseURL      *string `yaml:"base_url"`
	UploadField  *string `yaml:"upload_field"`
	AllowedTypes *string `yaml:"allowed_types"`
	MaxSize      *int64  `yaml:"max_size"`

	ImageBackend    *string           `yaml:"image_backend"`
	BackendPath     *string           `yaml:"backend_path"`
	Quality         *int              `yaml:"quality"`
	MaxImageSize    *string           `yaml:"max_image_size"`
	ThumbsSize      map[string]string `yaml:"thumbs_size"`
	AllowWatermark  *bool             `yaml:"allow_watermark"`
	MinOverlaySize  *string           `yaml:"min_overlay_size"`
	WMImageLight    *string           `yaml:"wm_image_light"`
	WMImageDark     *string           `yaml:"wm_image_dark"`
	WMText          *string           `yaml:"wm_text"`
	WMVrtOffset     *int              `yaml:"wm_vrt_offset"`
	WMHorOffset     *int              `yaml:"wm_hor_offset"`
	WMVrtAlignment  *string           `yaml:"wm_vrt_alignment"`
	WMHorAlignment  *string           `yaml:"wm_hor_alignment"`
	OptimizeImages  *bool             `yaml:"optimize_images"`
	OptimizeTimeout *int              `yaml:"optimize_timeout"`

	S3Bucket *string `yaml:"s3_bucket"`
	S3Region *string `yaml:"s3_region"`
	S3Prefix *string `yaml:"s3_prefix"`
}

const defaultStorageDir = "storage"

// Defaults returns the bottom configuration layer.
func Defaults() Config {
	return Config{
		ServerAddr:       ":8080",
		KafkaTopic:       "uploads.processed",
		KafkaIngestTopic: "uploads.ingest",
		Upload: UploadConfig{
			Path:         "uploads",
			BaseURL:      "/files",
			Field:        "file",
			AllowedTypes: "gif|jpg|png|jpe|jpeg",
			MaxSize:      TransportMaxSize,
		},
		Image: ImageConfig{
			Backend:        "imaging",
			BackendPath:    "/usr/bin",
			Quality:        80,
			MaxImageSize:   "1280x960",
			ThumbsSize:     map[string]string{"small": "208x156", "medium": "432x324"},
			AllowWatermark: true,
			MinOverlaySize: "640x480",
			WMImageLight:   filepath.Join(defaultStorageDir, "wm_light.png"),
			WMImageDark:    filepath.Join(defaultStorageDir, "wm_dark.png"),
			WMVrtAlignment: string(AlignBottom),
			WMHorAlignment: string(AlignRight),
			WMText:         "imgupload",
			// 60 seconds per optimizer binary
			OptimizeTimeout: 60,
		},
	}
}

// Merge applies layers on top of base, lowest precedence first:
// defaults < config file < environment < call-site parameters.
func Merge(base Config, layers ...Layer) Config {
	cfg := base
	cfg.Image.ThumbsSize = copyThumbs(base.Image.ThumbsSize)
	for _, l := range layers {
		setString(&cfg.ServerAddr, l.ServerAddr)
		setString(&cfg.DatabaseURL, l.DatabaseURL)
		setString(&cfg.KafkaBroker, l.KafkaBroker)
		setString(&cfg.KafkaTopic, l.KafkaTopic)
		setString(&cfg.KafkaIngestTopic, l.KafkaIngestTopic)

		// A storage dir moves both watermark assets unless a later field in
		// the same layer names them explicitly.
		if l.StorageDir != nil {
			cfg.Image.WMImageLight = filepath.Join(*l.StorageDir, "wm_light.png")
			cfg.Image.WMImageDark = filepath.Join(*l.StorageDir, "wm_dark.png")
		}

		setString(&cfg.Upload.Path, l.UploadPath)
		setString(&cfg.Upload.BaseURL, l.BaseURL)
		setString(&cfg.Upload.Field, l.UploadField)
		setString(&cfg.Upload.AllowedTypes, l.AllowedTypes)
		if l.MaxSize != nil {
			cfg.Upload.MaxSize = *l.MaxSize
		}

		setString(&cfg.Image.Backend, l.ImageBackend)
		setString(&cfg.Image.BackendPath, l.BackendPath)
		setInt(&cfg.Image.Quality, l.Quality)
		setString(&cfg.Image.MaxImageSize, l.MaxImageSize)
		if l.ThumbsSize != nil {
			cfg.Image.ThumbsSize = copyThumbs(l.ThumbsSize)
		}
		setBool(&cfg.Image.AllowWatermark, l.AllowWatermark)
		setString(&cfg.Image.MinOverlaySize, l.MinOverlaySize)
		setString(&cfg.Image.WMImageLight, l.WMImageLight)
		setString(&cfg.Image.WMImageDark, l.WMImageDark)
		setString(&cfg.Image.WMText, l.WMText)
		setInt(&cfg.Image.WMVrtOffset, l.WMVrtOffset)
		setInt(&cfg.Image.WMHorOffset, l.WMHorOffset)
		setString(&cfg.Image.WMVrtAlignment, l.WMVrtAlignment)
		setString(&cfg.Image.WMHorAlignment, l.WMHorAlignment)
		setBool(&cfg.Image.OptimizeImages, l.OptimizeImages)
		setInt(&cfg.Image.OptimizeTimeout, l.OptimizeTimeout)

		setString(&cfg.S3.Bucket, l.S3Bucket)
		setString(&cfg.S3.Region, l.S3Region)
		setString(&cfg.S3.Prefix, l.S3Prefix)
	}
	if cfg.Upload.MaxSize <= 0 || cfg.Upload.MaxSize > TransportMaxSize {
		cfg.Upload.MaxSize = TransportMaxSize
	}
	return cfg
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func copyThumbs(src map[string]string) map[string]string {
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// LoadFileLayer reads a yaml config file. A missing file yields an empty
// layer.
func LoadFileLayer(path string) (Layer, error) {
	const op = "models.LoadFileLayer"
	var l Layer
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return l, fmt.Errorf("%s: %w", op, err)
	}
	if err := yaml.Unmarshal(data, &l); err != nil {
		return l, fmt.Errorf("%s: %w", op, err)
	}
	return l, nil
}

// envPrefix namespaces every environment key, UPLOADER_QUALITY=90.
const envPrefix = "UPLOADER_"

// LoadEnvLayer loads the given dotenv files (missing ones are ignored) and
// builds a layer from UPLOADER_* variables. Thumbnail profiles come from
// UPLOADER_THUMBS_SIZE as "small=208x156,medium=432x324".
func LoadEnvLayer(files ...string) (Layer, error) {
	const op = "models.LoadEnvLayer"
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return Layer{}, fmt.Errorf("%s: %w", op, err)
		}
	}

	var l Layer
	var errs []string
	str := func(key string) *string {
		if v, ok := os.LookupEnv(envPrefix + key); ok && v != "" {
			return &v
		}
		return nil
	}
	num := func(key string) *int {
		v := str(key)
		if v == nil {
			return nil
		}
		n, err := strconv.Atoi(*v)
		if err != nil {
			errs = append(errs, envPrefix+key)
			return nil
		}
		return &n
	}
	flag := func(key string) *bool {
		v := str(key)
		if v == nil {
			return nil
		}
		b, err := strconv.ParseBool(*v)
		if err != nil {
			errs = append(errs, envPrefix+key)
			return nil
		}
		return &b
	}

	l.ServerAddr = str("SERVER_ADDR")
	l.DatabaseURL = str("DATABASE_URL")
	l.KafkaBroker = str("KAFKA_BROKER")
	l.KafkaTopic = str("KAFKA_TOPIC")
	l.KafkaIngestTopic = str("KAFKA_INGEST_TOPIC")
	l.StorageDir = str("STORAGE_DIR")
	l.UploadPath = str("UPLOAD_PATH")
	l.BaseURL = str("BASE_URL")
	l.UploadField = str("UPLOAD_FIELD")
	l.AllowedTypes = str("ALLOWED_TYPES")
	if v := str("MAX_SIZE"); v != nil {
		n, err := strconv.ParseInt(*v, 10, 64)
		if err != nil {
			errs = append(errs, envPrefix+"MAX_SIZE")
		} else {
			l.MaxSize = &n
		}
	}
	l.ImageBackend = str("IMAGE_BACKEND")
	l.BackendPath = str("BACKEND_PATH")
	l.Quality = num("QUALITY")
	l.MaxImageSize = str("MAX_IMAGE_SIZE")
	if v := str("THUMBS_SIZE"); v != nil {
		l.ThumbsSize = parseProfiles(*v)
	}
	l.AllowWatermark = flag("ALLOW_WATERMARK")
	l.MinOverlaySize = str("MIN_OVERLAY_SIZE")
	l.WMImageLight = str("WM_IMAGE_LIGHT")
	l.WMImageDark = str("WM_IMAGE_DARK")
	l.WMText = str("WM_TEXT")
	l.WMVrtOffset = num("WM_VRT_OFFSET")
	l.WMHorOffset = num("WM_HOR_OFFSET")
	l.WMVrtAlignment = str("WM_VRT_ALIGNMENT")
	l.WMHorAlignment = str("WM_HOR_ALIGNMENT")
	l.OptimizeImages = flag("OPTIMIZE_IMAGES")
	l.OptimizeTimeout = num("OPTIMIZE_TIMEOUT")
	l.S3Bucket = str("S3_BUCKET")
	l.S3Region = str("S3_REGION")
	l.S3Prefix = str("S3_PREFIX")

	if len(errs) > 0 {
		return l, fmt.Errorf("%s: invalid values for %s", op, strings.Join(errs, ", "))
	}
	return l, nil
}

func parseProfiles(s string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		name, size, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || name == "" {
			continue
		}
		out[strings.TrimSpace(name)] = strings.TrimSpace(size)
	}
	return out
}

// LoadConfig builds the effective configuration from defaults, the yaml
// file at path, the environment and finally the call-site layers.
func LoadConfig(path string, overrides ...Layer) (*Config, error) {
	fileLayer, err := LoadFileLayer(path)
	if err != nil {
		return nil, err
	}
	envLayer, err := LoadEnvLayer(".env", ".env.local")
	if err != nil {
		return nil, err
	}
	layers := append([]Layer{fileLayer, envLayer}, overrides...)
	cfg := Merge(Defaults(), layers...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks option ranges and enumerations.
func (c *Config) Validate() error {
	if c.Image.Quality < 0 || c.Image.Quality > 100 {
		return fmt.Errorf("quality must be within 0..100, got %d", c.Image.Quality)
	}
	switch VerticalAlignment(c.Image.WMVrtAlignment) {
	case AlignTop, AlignMiddle, AlignBottom:
	default:
		return fmt.Errorf("wm_vrt_alignment %q is not one of top, middle, bottom", c.Image.WMVrtAlignment)
	}
	switch HorizontalAlignment(c.Image.WMHorAlignment) {
	case AlignLeft, AlignCenter, AlignRight:
	default:
		return fmt.Errorf("wm_hor_alignment %q is not one of left, center, right", c.Image.WMHorAlignment)
	}
	switch c.Image.Backend {
	case "imaging", "magick":
	default:
		return fmt.Errorf("image_backend %q is not supported", c.Image.Backend)
	}
	if c.Upload.Path == "" {
		return fmt.Errorf("upload_path is required")
	}
	return nil
}

// ResizeDisabled reports the literal "0" max_image_size.
func (c ImageConfig) ResizeDisabled() bool {
	return strings.TrimSpace(c.MaxImageSize) == "0" || strings.TrimSpace(c.MaxImageSize) == ""
}

// Profiles returns the thumbnail profiles sorted by name.
func (c ImageConfig) Profiles() []ThumbnailProfile {
	names := make([]string, 0, len(c.ThumbsSize))
	for name := range c.ThumbsSize {
		names = append(names, name)
	}
	sort.Strings(names)
	profiles := make([]ThumbnailProfile, 0, len(names))
	for _, name := range names {
		profiles = append(profiles, ThumbnailProfile{Name: name, Spec: ParseSizeSpec(c.ThumbsSize[name])})
	}
	return profiles
}

// Watermark converts the flat options into the compositor's config.
func (c ImageConfig) Watermark() WatermarkConfig {
	return WatermarkConfig{
		Enabled:      c.AllowWatermark,
		MinOverlay:   ParseSizeSpec(c.MinOverlaySize),
		LightAsset:   c.WMImageLight,
		DarkAsset:    c.WMImageDark,
		VrtOffset:    c.WMVrtOffset,
		HorOffset:    c.WMHorOffset,
		VrtAlignment: VerticalAlignment(c.WMVrtAlignment),
		HorAlignment: HorizontalAlignment(c.WMHorAlignment),
	}
}
