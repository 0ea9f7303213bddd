// Package finder registers missing-person cases, matches query photos
// against open cases and enforces the case lifecycle.
package finder

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/missing-finder/internal/config"
	"github.com/kozaktomas/missing-finder/internal/database"
	"github.com/kozaktomas/missing-finder/internal/imagesearch"
	"github.com/kozaktomas/missing-finder/internal/photostore"
	"go.uber.org/zap"
)

const (
	defaultTimeout          = 30 * time.Second
	defaultMaxSearchResults = 5
	cleanupTimeout          = 10 * time.Second
)

// Embedder computes a face embedding for an image.
type Embedder interface {
	Embed(ctx context.Context, imageData []byte) ([]float32, error)
}

// Geocoder resolves a location. A nil result with a nil error means not found.
type Geocoder interface {
	Geocode(ctx context.Context, text string) (*database.Coordinates, error)
}

// ImageSearcher finds web pages showing an image.
type ImageSearcher interface {
	Search(ctx context.Context, imageData []byte, maxResults int) ([]imagesearch.Hit, error)
}

// Dependencies are the collaborators of a Service. Geocoder and Searcher
// are optional; without them every registration carries a warning.
type Dependencies struct {
	Store    database.Store
	Index    *database.CaseIndex
	Embedder Embedder
	Photos   photostore.Store
	Geocoder Geocoder
	Searcher ImageSearcher
	Logger   *zap.Logger
	Metrics  *Metrics
}

// Options tune a Service.
type Options struct {
	Timeouts         config.TimeoutConfig
	MaxSearchResults int
}

// Service implements registration, matching and the case lifecycle.
type Service struct {
	store    database.Store
	index    *database.CaseIndex
	embedder Embedder
	photos   photostore.Store
	geocoder Geocoder
	searcher ImageSearcher
	logger   *zap.Logger
	metrics  *Metrics

	timeouts   config.TimeoutConfig
	maxResults int
	locks      *lockTable

	now   func() time.Time
	newID func() string
}

// New creates a Service.
func New(deps Dependencies, opts Options) *Service {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Index == nil {
		deps.Index = database.NewCaseIndex(0)
	}
	if opts.MaxSearchResults <= 0 {
		opts.MaxSearchResults = defaultMaxSearchResults
	}
	opts.Timeouts.Embed = orDefault(opts.Timeouts.Embed)
	opts.Timeouts.Upload = orDefault(opts.Timeouts.Upload)
	opts.Timeouts.Geocode = orDefault(opts.Timeouts.Geocode)
	opts.Timeouts.Search = orDefault(opts.Timeouts.Search)

	s := &Service{
		store:      deps.Store,
		index:      deps.Index,
		embedder:   deps.Embedder,
		photos:     deps.Photos,
		geocoder:   deps.Geocoder,
		searcher:   deps.Searcher,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		timeouts:   opts.Timeouts,
		maxResults: opts.MaxSearchResults,
		locks:      newLockTable(),
		now:        time.Now,
		newID:      uuid.NewString,
	}
	s.metrics.setOpenCases(s.index.Len())
	return s
}

func orDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultTimeout
	}
	return d
}

// Index returns the match index.
func (s *Service) Index() *database.CaseIndex {
	return s.index
}

// deletePhoto removes a stored photo, logging failures. It runs detached
// from ctx so a cancelled request still cleans up.
func (s *Service) deletePhoto(ctx context.Context, ref string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := s.photos.Delete(ctx, ref); err != nil {
		s.logger.Warn("Failed to delete photo", zap.String("photo_reference", ref), zap.Error(err))
	}
}
