package handlers

import (
	"context"
	"net/http"

	"github.com/kozaktomas/missing-finder/internal/constants"
	"github.com/kozaktomas/missing-finder/internal/finder"
	"go.uber.org/zap"
)

// SearchService is the matching part of the finder service.
type SearchService interface {
	SearchByPhoto(ctx context.Context, imageData []byte, threshold float64) ([]finder.Match, error)
	NearestByPhoto(ctx context.Context, imageData []byte, k int) ([]finder.Match, error)
}

// SearchHandler handles photo search endpoints.
type SearchHandler struct {
	service          SearchService
	defaultThreshold float64
	logger           *zap.Logger
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(service SearchService, defaultThreshold float64, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{service: service, defaultThreshold: defaultThreshold, logger: logger}
}

// SearchResponse is the ranked match list.
type SearchResponse struct {
	Matches   []finder.Match `json:"matches"`
	Count     int            `json:"count"`
	Total     int            `json:"total"`
	Threshold float64        `json:"threshold"`
}

// Search ranks open cases against an uploaded photo. Form fields:
// photo (file), threshold (default from config), limit (default 20).
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	threshold, err := formFloat(r, "threshold", h.defaultThreshold)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := formInt(r, "limit", constants.DefaultMatchLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit = min(limit, constants.MaxMatchLimit)

	photo, err := readPhoto(r, "photo")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	matches, err := h.service.SearchByPhoto(r.Context(), photo, threshold)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	total := len(matches)
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	if matches == nil {
		matches = []finder.Match{}
	}
	respondJSON(w, http.StatusOK, SearchResponse{Matches: matches, Count: len(matches), Total: total, Threshold: threshold})
}

// Nearest returns the k open cases closest to an uploaded photo regardless
// of threshold. Form fields: photo (file), k (default 5).
func (h *SearchHandler) Nearest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	k, err := formInt(r, "k", 5)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	k = min(k, constants.MaxMatchLimit)

	photo, err := readPhoto(r, "photo")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	matches, err := h.service.NearestByPhoto(r.Context(), photo, k)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	if matches == nil {
		matches = []finder.Match{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"matches": matches, "count": len(matches)})
}
