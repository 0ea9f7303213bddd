// Package geo resolves free-text locations to coordinates.
package geo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kozaktomas/missing-finder/internal/database"
	"golang.org/x/time/rate"
)

const (
	defaultNominatimURL = "https://nominatim.openstreetmap.org"
	defaultUserAgent    = "missing-finder/1.0"
)

// Geocoder resolves a location description. A nil result with a nil error
// means the provider knows no such place.
type Geocoder interface {
	Geocode(ctx context.Context, text string) (*database.Coordinates, error)
}

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// NominatimClient queries an OpenStreetMap Nominatim instance. Requests are
// limited to one per second as the public usage policy demands.
type NominatimClient struct {
	httpClient *resty.Client
	limiter    *rate.Limiter
}

// NewNominatimClient creates a Nominatim client
func NewNominatimClient(baseURL, userAgent string) *NominatimClient {
	if baseURL == "" {
		baseURL = defaultNominatimURL
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10*time.Second).
		SetRetryCount(1).
		SetRetryWaitTime(500*time.Millisecond).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "application/json")

	return &NominatimClient{
		httpClient: client,
		limiter:    rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// SetRateLimit overrides the request rate.
func (c *NominatimClient) SetRateLimit(limit rate.Limit) {
	c.limiter.SetLimit(limit)
}

// Geocode returns the coordinates of the best match for text
func (c *NominatimClient) Geocode(ctx context.Context, text string) (*database.Coordinates, error) {
	if text == "" {
		return nil, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	var places []nominatimPlace
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":      text,
			"format": "json",
			"limit":  "1",
		}).
		SetResult(&places).
		Get("/search")
	if err != nil {
		return nil, fmt.Errorf("failed to call Nominatim: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("Nominatim error (status %d): %s", resp.StatusCode(), resp.String())
	}
	if len(places) == 0 {
		return nil, nil
	}

	lat, errLat := strconv.ParseFloat(places[0].Lat, 64)
	lon, errLon := strconv.ParseFloat(places[0].Lon, 64)
	if err := errors.Join(errLat, errLon); err != nil {
		return nil, fmt.Errorf("parse coordinates: %w", err)
	}
	return &database.Coordinates{Latitude: lat, Longitude: lon}, nil
}
