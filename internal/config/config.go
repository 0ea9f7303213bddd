package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/missing-finder/internal/constants"
	"gopkg.in/yaml.v3"
)

//go:embed social_domains.yaml
var socialDomainsYAML []byte

type Config struct {
	Database    DatabaseConfig
	Embedding   EmbeddingConfig
	Geocoder    GeocoderConfig
	ImageSearch ImageSearchConfig
	Cloudinary  CloudinaryConfig
	Photos      PhotosConfig
	Timeouts    TimeoutConfig
	Log         LogConfig
	Match       MatchConfig
	Web         WebConfig
}

type DatabaseConfig struct {
	Driver        string // postgres, sqlite or mysql (default sqlite)
	URL           string // DSN for the selected driver
	MaxOpenConns  int    // Maximum open connections (default 25)
	MaxIdleConns  int    // Maximum idle connections (default 5)
	HNSWIndexPath string // Path to persist the case HNSW graph (optional)
	EmbeddingDim  int    // Length every stored embedding must have (0 accepts any)
}

type EmbeddingConfig struct {
	URL string // defaults to http://localhost:8000
	Dim int    // defaults to 512
}

type GeocoderConfig struct {
	URL       string // Nominatim base URL, defaults to https://nominatim.openstreetmap.org
	UserAgent string // required by the Nominatim usage policy
	RedisURL  string // optional result cache
	CacheTTL  time.Duration
}

type ImageSearchConfig struct {
	APIKey     string // SerpAPI key; search is disabled when empty
	URL        string // defaults to https://serpapi.com/search.json
	MaxResults int    // defaults to 5
	Domains    []string
}

// Enabled reports whether reverse image search is configured.
func (c *ImageSearchConfig) Enabled() bool {
	return c.APIKey != ""
}

type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string // defaults to missing_finder
}

// Enabled reports whether all Cloudinary credentials are present.
func (c *CloudinaryConfig) Enabled() bool {
	return c.CloudName != "" && c.APIKey != "" && c.APISecret != ""
}

type PhotosConfig struct {
	Dir       string // local photo directory used when Cloudinary is not configured
	PublicURL string // URL prefix for locally stored photos (default /photos)
}

// TimeoutConfig bounds every call to an external collaborator.
type TimeoutConfig struct {
	Embed   time.Duration
	Upload  time.Duration
	Geocode time.Duration
	Search  time.Duration
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json or console
}

type MatchConfig struct {
	DefaultThreshold float64
}

type WebConfig struct {
	Port           int
	Host           string
	AllowedOrigins []string // CORS origins besides localhost
}

type socialDomains struct {
	Domains []string `yaml:"domains"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envDuration parses a Go duration ("10s", "1m") with the same fallback rules as envInt.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
}

// envList splits a comma-separated variable, dropping empty items.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// SocialDomains returns the embedded list of social-media domains.
func SocialDomains() []string {
	var sd socialDomains
	if err := yaml.Unmarshal(socialDomainsYAML, &sd); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded social_domains.yaml: " + err.Error())
	}
	return sd.Domains
}

func Load() *Config {
	dim := envInt("EMBEDDING_DIM", 512)
	return &Config{
		Database: DatabaseConfig{
			Driver:        envString("DATABASE_DRIVER", "sqlite"),
			URL:           os.Getenv("DATABASE_URL"),
			MaxOpenConns:  envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  envInt("DATABASE_MAX_IDLE_CONNS", 5),
			HNSWIndexPath: os.Getenv("HNSW_INDEX_PATH"),
			EmbeddingDim:  dim,
		},
		Embedding: EmbeddingConfig{
			URL: os.Getenv("EMBEDDING_URL"),
			Dim: dim,
		},
		Geocoder: GeocoderConfig{
			URL:       envString("GEOCODER_URL", "https://nominatim.openstreetmap.org"),
			UserAgent: envString("GEOCODER_USER_AGENT", "missing_person_finder"),
			RedisURL:  os.Getenv("REDIS_URL"),
			CacheTTL:  envDuration("GEOCODER_CACHE_TTL", 30*24*time.Hour),
		},
		ImageSearch: ImageSearchConfig{
			APIKey:     os.Getenv("SERPAPI_KEY"),
			URL:        envString("SERPAPI_URL", "https://serpapi.com/search.json"),
			MaxResults: envInt("IMAGE_SEARCH_MAX_RESULTS", 5),
			Domains:    SocialDomains(),
		},
		Cloudinary: CloudinaryConfig{
			CloudName: os.Getenv("CLOUDINARY_CLOUD_NAME"),
			APIKey:    os.Getenv("CLOUDINARY_API_KEY"),
			APISecret: os.Getenv("CLOUDINARY_API_SECRET"),
			Folder:    envString("CLOUDINARY_FOLDER", "missing_finder"),
		},
		Photos: PhotosConfig{
			Dir:       envString("PHOTOS_DIR", "photos"),
			PublicURL: envString("PHOTOS_PUBLIC_URL", "/photos"),
		},
		Timeouts: TimeoutConfig{
			Embed:   envDuration("EMBED_TIMEOUT", 30*time.Second),
			Upload:  envDuration("UPLOAD_TIMEOUT", 30*time.Second),
			Geocode: envDuration("GEOCODE_TIMEOUT", 10*time.Second),
			Search:  envDuration("SEARCH_TIMEOUT", 30*time.Second),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "json"),
		},
		Match: MatchConfig{
			DefaultThreshold: envFloat("MATCH_DEFAULT_THRESHOLD", constants.DefaultSimilarityThreshold),
		},
		Web: WebConfig{
			Port:           envInt("WEB_PORT", 8080),
			Host:           envString("WEB_HOST", "0.0.0.0"),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
	}
}
