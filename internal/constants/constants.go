// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Upload constants
const (
	// MaxUploadSize is the maximum accepted multipart request size
	MaxUploadSize = 20 << 20

	// MaxPhotoSize is the maximum accepted size of a single photo
	MaxPhotoSize = 15 << 20
)

// Matching constants
const (
	// DefaultSimilarityThreshold is the default minimum cosine similarity for a match
	DefaultSimilarityThreshold = 0.33

	// DefaultMatchLimit is the number of matches returned when the caller gives no limit
	DefaultMatchLimit = 20

	// MaxMatchLimit caps the limit a caller may ask for
	MaxMatchLimit = 200
)

// Batch constants
const (
	// WorkerPoolSize is the default number of parallel workers for batch searches
	WorkerPoolSize = 4
)
