package geo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/kozaktomas/missing-finder/internal/database"
	"go.uber.org/zap"
)

const (
	cacheKeyPrefix  = "geocode:"
	defaultCacheTTL = 30 * 24 * time.Hour
	notFoundMarker  = "none"
)

// CachedGeocoder memoizes another Geocoder in Redis. Cache failures are
// logged and fall through to the wrapped geocoder.
type CachedGeocoder struct {
	next   Geocoder
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedGeocoder wraps next with a Redis cache
func NewCachedGeocoder(next Geocoder, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedGeocoder {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedGeocoder{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

// NewRedisClient creates a Redis client from a redis:// URL
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err //nolint:wrapcheck // parse errors are self-describing
	}
	return redis.NewClient(opts), nil
}

func cacheKey(text string) string {
	return cacheKeyPrefix + NormalizeLocation(text)
}

// Geocode serves from cache when possible. Provider errors are not cached.
func (g *CachedGeocoder) Geocode(ctx context.Context, text string) (*database.Coordinates, error) {
	key := cacheKey(text)

	val, err := g.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		if val == notFoundMarker {
			return nil, nil
		}
		var coords database.Coordinates
		if err := json.Unmarshal([]byte(val), &coords); err == nil {
			return &coords, nil
		}
		g.logger.Warn("Dropping corrupt geocode cache entry", zap.String("key", key))
	case errors.Is(err, redis.Nil):
	default:
		g.logger.Warn("Geocode cache read failed", zap.Error(err))
	}

	coords, err := g.next.Geocode(ctx, text)
	if err != nil {
		return nil, err
	}

	val = notFoundMarker
	if coords != nil {
		b, _ := json.Marshal(coords)
		val = string(b)
	}
	if err := g.rdb.Set(ctx, key, val, g.ttl).Err(); err != nil {
		g.logger.Warn("Geocode cache write failed", zap.Error(err))
	}
	return coords, nil
}
