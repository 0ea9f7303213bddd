// Package imagesearch finds social media pages showing a photo using the
// SerpAPI Google Lens engine.
package imagesearch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kozaktomas/missing-finder/internal/photostore"
	"go.uber.org/zap"
)

const (
	defaultSerpAPIURL = "https://serpapi.com/search.json"
	defaultMaxResults = 5
)

// Hit is a related web page.
type Hit struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

type visualMatch struct {
	Title  string `json:"title"`
	Link   string `json:"link"`
	Source string `json:"source"`
}

type lensResponse struct {
	Error         string        `json:"error"`
	VisualMatches []visualMatch `json:"visual_matches"`
}

// Client runs reverse image searches. The engine needs a public image URL,
// so the photo is uploaded to a transient store first and removed afterwards.
type Client struct {
	httpClient *resty.Client
	endpoint   string
	apiKey     string
	domains    []string
	uploads    photostore.Store
	logger     *zap.Logger
}

// NewClient creates a search client
func NewClient(endpoint, apiKey string, domains []string, uploads photostore.Store, logger *zap.Logger) *Client {
	if endpoint == "" {
		endpoint = defaultSerpAPIURL
	}
	normalized := make([]string, 0, len(domains))
	for _, d := range domains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			normalized = append(normalized, d)
		}
	}
	client := resty.New().
		SetTimeout(30*time.Second).
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient: client,
		endpoint:   endpoint,
		apiKey:     apiKey,
		domains:    normalized,
		uploads:    uploads,
		logger:     logger,
	}
}

// Search returns at most maxResults hits on the configured domains, in the
// engine's order.
func (c *Client) Search(ctx context.Context, imageData []byte, maxResults int) ([]Hit, error) {
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	imageURL, err := c.uploads.Upload(ctx, imageData)
	if err != nil {
		return nil, fmt.Errorf("upload query image: %w", err)
	}
	defer func() {
		// The request context may already be spent.
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := c.uploads.Delete(cleanupCtx, imageURL); err != nil {
			c.logger.Warn("Failed to delete transient search image", zap.String("url", imageURL), zap.Error(err))
		}
	}()

	return c.SearchURL(ctx, imageURL, maxResults)
}

// SearchURL queries the engine with an already public image URL
func (c *Client) SearchURL(ctx context.Context, imageURL string, maxResults int) ([]Hit, error) {
	var result lensResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"engine":  "google_lens",
			"api_key": c.apiKey,
			"url":     imageURL,
		}).
		SetResult(&result).
		SetError(&result).
		Get(c.endpoint)
	if err != nil {
		// Drop the request URL, it carries the API key.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, fmt.Errorf("failed to call SerpAPI: %w", err)
	}
	if resp.IsError() {
		if result.Error != "" {
			return nil, fmt.Errorf("SerpAPI error (status %d): %s", resp.StatusCode(), result.Error)
		}
		return nil, fmt.Errorf("SerpAPI error (status %d)", resp.StatusCode())
	}
	if result.Error != "" && len(result.VisualMatches) == 0 {
		// SerpAPI reports "no results" as a 200 with an error message.
		if strings.Contains(strings.ToLower(result.Error), "hasn't returned any results") {
			return []Hit{}, nil
		}
		return nil, errors.New(result.Error)
	}

	return c.filter(result.VisualMatches, maxResults), nil
}

func (c *Client) filter(matches []visualMatch, maxResults int) []Hit {
	hits := make([]Hit, 0, maxResults)
	for _, m := range matches {
		if !c.allowed(m.Link) {
			continue
		}
		title := m.Title
		if title == "" {
			title = m.Link
		}
		hits = append(hits, Hit{Title: title, URL: m.Link})
		if len(hits) >= maxResults {
			break
		}
	}
	return hits
}

// allowed reports whether link's host is one of the domains or a subdomain of one.
func (c *Client) allowed(link string) bool {
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range c.domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
