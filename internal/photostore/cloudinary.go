package photostore

import (
	"bytes"
	"context"
	"crypto/sha1" //nolint:gosec // Cloudinary request signatures are SHA-1
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kozaktomas/missing-finder/internal/config"
)

const defaultCloudinaryURL = "https://api.cloudinary.com/v1_1"

var versionSegment = regexp.MustCompile(`^v\d+$`)

type cloudinaryUploadResponse struct {
	PublicID  string `json:"public_id"`
	SecureURL string `json:"secure_url"`
}

type cloudinaryDestroyResponse struct {
	Result string `json:"result"`
}

type cloudinaryErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Cloudinary uploads photos through the signed Cloudinary upload API.
type Cloudinary struct {
	httpClient *resty.Client
	cloudName  string
	apiKey     string
	apiSecret  string
	folder     string
	now        func() time.Time
}

// NewCloudinary creates a Cloudinary store. baseURL may be empty.
func NewCloudinary(cfg config.CloudinaryConfig, baseURL string) *Cloudinary {
	if baseURL == "" {
		baseURL = defaultCloudinaryURL
	}
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")+"/"+cfg.CloudName).
		SetTimeout(60*time.Second).
		SetHeader("Accept", "application/json")

	return &Cloudinary{
		httpClient: client,
		cloudName:  cfg.CloudName,
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		folder:     cfg.Folder,
		now:        time.Now,
	}
}

// sign computes the Cloudinary signature: the sorted key=value pairs joined
// by '&' followed by the API secret, SHA-1 hex encoded.
func (c *Cloudinary) sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+params[k])
	}
	sum := sha1.Sum([]byte(strings.Join(parts, "&") + c.apiSecret)) //nolint:gosec // required by the API
	return hex.EncodeToString(sum[:])
}

func (c *Cloudinary) signedForm(params map[string]string) map[string]string {
	params["timestamp"] = strconv.FormatInt(c.now().Unix(), 10)
	form := make(map[string]string, len(params)+2)
	for k, v := range params {
		form[k] = v
	}
	form["signature"] = c.sign(params)
	form["api_key"] = c.apiKey
	return form
}

func cloudinaryError(resp *resty.Response) error {
	if e, ok := resp.Error().(*cloudinaryErrorResponse); ok && e.Error.Message != "" {
		return fmt.Errorf("Cloudinary error (status %d): %s", resp.StatusCode(), e.Error.Message)
	}
	return fmt.Errorf("Cloudinary error (status %d): %s", resp.StatusCode(), resp.String())
}

func (c *Cloudinary) Upload(ctx context.Context, data []byte) (string, error) {
	params := map[string]string{}
	if c.folder != "" {
		params["folder"] = c.folder
	}

	var result cloudinaryUploadResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetFormData(c.signedForm(params)).
		SetFileReader("file", "photo.jpg", bytes.NewReader(data)).
		SetResult(&result).
		SetError(&cloudinaryErrorResponse{}).
		Post("/image/upload")
	if err != nil {
		return "", fmt.Errorf("failed to call Cloudinary: %w", err)
	}
	if resp.IsError() {
		return "", cloudinaryError(resp)
	}
	if result.SecureURL == "" {
		return "", fmt.Errorf("Cloudinary returned no secure_url")
	}
	return result.SecureURL, nil
}

// PublicID extracts the public id from a Cloudinary delivery URL
// (https://res.cloudinary.com/<cloud>/image/upload/v123/<folder>/<id>.jpg).
func PublicID(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidReference, ref)
	}
	_, rest, ok := strings.Cut(u.Path, "/upload/")
	if !ok || rest == "" {
		return "", fmt.Errorf("%w: %s", ErrInvalidReference, ref)
	}
	segments := strings.Split(rest, "/")
	if len(segments) > 1 && versionSegment.MatchString(segments[0]) {
		segments = segments[1:]
	}
	id := strings.Join(segments, "/")
	id = strings.TrimSuffix(id, path.Ext(id))
	if id == "" {
		return "", fmt.Errorf("%w: %s", ErrInvalidReference, ref)
	}
	return id, nil
}

func (c *Cloudinary) Delete(ctx context.Context, ref string) error {
	publicID, err := PublicID(ref)
	if err != nil {
		return err
	}

	var result cloudinaryDestroyResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetFormData(c.signedForm(map[string]string{"public_id": publicID})).
		SetResult(&result).
		SetError(&cloudinaryErrorResponse{}).
		Post("/image/destroy")
	if err != nil {
		return fmt.Errorf("failed to call Cloudinary: %w", err)
	}
	if resp.IsError() {
		return cloudinaryError(resp)
	}
	if result.Result != "ok" && result.Result != "not found" {
		return fmt.Errorf("Cloudinary destroy %s: %s", publicID, result.Result)
	}
	return nil
}
