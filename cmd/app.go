package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/kozaktomas/missing-finder/internal/config"
	"github.com/kozaktomas/missing-finder/internal/database"
	"github.com/kozaktomas/missing-finder/internal/database/postgres"
	"github.com/kozaktomas/missing-finder/internal/database/sqlstore"
	"github.com/kozaktomas/missing-finder/internal/embedding"
	"github.com/kozaktomas/missing-finder/internal/finder"
	"github.com/kozaktomas/missing-finder/internal/geo"
	"github.com/kozaktomas/missing-finder/internal/imagesearch"
	"github.com/kozaktomas/missing-finder/internal/logging"
	"github.com/kozaktomas/missing-finder/internal/photostore"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// app holds everything a command needs to talk to the finder service.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   database.Store
	index   *database.CaseIndex
	redis   *redis.Client
	metrics *finder.Metrics
	service *finder.Service
}

// migrator is implemented by every case store.
type migrator interface {
	Migrate(ctx context.Context) ([]string, error)
}

// openStore connects to the configured case store. Both stores migrate on open.
func openStore(ctx context.Context, cfg *config.DatabaseConfig) (database.Store, error) {
	switch cfg.Driver {
	case "postgres", "postgresql":
		repo, err := postgres.Open(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open PostgreSQL store: %w", err)
		}
		return repo, nil
	case sqlstore.DriverSQLite, sqlstore.DriverMySQL, "":
		store, err := sqlstore.Open(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s store: %w", cfg.Driver, err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported DATABASE_DRIVER %q (postgres, sqlite or mysql)", cfg.Driver)
	}
}

// newImageSearcher returns nil and the reason when reverse image search
// cannot run. The search engine fetches the photo by URL, so it needs the
// publicly reachable Cloudinary store.
func newImageSearcher(cfg *config.Config, photos photostore.Store, logger *zap.Logger) (finder.ImageSearcher, string) {
	if !cfg.ImageSearch.Enabled() {
		return nil, "SERPAPI_KEY not set"
	}
	if !cfg.Cloudinary.Enabled() {
		return nil, "photos are not publicly reachable without Cloudinary"
	}
	return imagesearch.NewClient(cfg.ImageSearch.URL, cfg.ImageSearch.APIKey, cfg.ImageSearch.Domains, photos, logger), ""
}

// newPhotoStore picks Cloudinary when credentials are set and the local
// directory otherwise. Photos are normalized before upload either way.
func newPhotoStore(cfg *config.Config) (photostore.Store, error) {
	if cfg.Cloudinary.Enabled() {
		return photostore.NewNormalizing(photostore.NewCloudinary(cfg.Cloudinary, ""), 0), nil
	}
	fs, err := photostore.NewFilesystem(cfg.Photos.Dir, cfg.Photos.PublicURL)
	if err != nil {
		return nil, err
	}
	return photostore.NewNormalizing(fs, 0), nil
}

// newApp loads configuration, opens the store and builds the service with
// the index populated from the open cases.
func newApp(ctx context.Context, withMetrics bool) (*app, error) {
	cfg := config.Load()

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, "missing-finder")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	store, err := openStore(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, store: store}
	if err := a.wire(ctx, withMetrics); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context, withMetrics bool) error {
	cfg := a.cfg

	photos, err := newPhotoStore(cfg)
	if err != nil {
		return err
	}

	var geocoder finder.Geocoder = geo.NewNominatimClient(cfg.Geocoder.URL, cfg.Geocoder.UserAgent)
	if cfg.Geocoder.RedisURL != "" {
		rdb, err := geo.NewRedisClient(cfg.Geocoder.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		a.redis = rdb
		geocoder = geo.NewCachedGeocoder(geocoder, rdb, cfg.Geocoder.CacheTTL, a.logger)
	}

	searcher, reason := newImageSearcher(cfg, photos, a.logger)
	if searcher == nil {
		a.logger.Info("Reverse image search disabled", zap.String("reason", reason))
	}

	if withMetrics {
		a.metrics = finder.NewMetrics(prometheus.NewRegistry())
	}

	a.index = database.NewCaseIndex(cfg.Embedding.Dim)
	loaded, err := a.index.Rebuild(ctx, a.store, cfg.Database.HNSWIndexPath)
	switch {
	case errors.Is(err, database.ErrGraphLoad):
		a.logger.Warn("Persisted HNSW graph unusable, rebuilt from cases", zap.Error(err))
	case err != nil:
		return fmt.Errorf("failed to build case index: %w", err)
	}
	a.logger.Info("Case index ready",
		zap.Int("open_cases", a.index.Len()),
		zap.Bool("graph_loaded", loaded))

	a.service = finder.New(finder.Dependencies{
		Store:    a.store,
		Index:    a.index,
		Embedder: embedding.NewClient(cfg.Embedding.URL, cfg.Embedding.Dim),
		Photos:   photos,
		Geocoder: geocoder,
		Searcher: searcher,
		Logger:   a.logger,
		Metrics:  a.metrics,
	}, finder.Options{
		Timeouts:         cfg.Timeouts,
		MaxSearchResults: cfg.ImageSearch.MaxResults,
	})
	return nil
}

// saveGraph persists the HNSW graph when HNSW_INDEX_PATH is set.
func (a *app) saveGraph() {
	path := a.cfg.Database.HNSWIndexPath
	if path == "" || a.index == nil {
		return
	}
	if err := a.index.SaveGraph(path); err != nil {
		a.logger.Warn("Failed to save HNSW graph", zap.String("path", path), zap.Error(err))
		return
	}
	a.logger.Info("HNSW graph saved", zap.String("path", path), zap.Int("cases", a.index.Len()))
}

// Close releases the store and cache connections.
func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("Failed to close store", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
