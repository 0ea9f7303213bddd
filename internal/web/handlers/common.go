package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/kozaktomas/missing-finder/internal/constants"
	"github.com/kozaktomas/missing-finder/internal/finder"
	"go.uber.org/zap"
)

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data) //nolint:errcheck // client went away
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

type validationResponse struct {
	Error  string              `json:"error"`
	Fields []finder.FieldError `json:"fields"`
}

// respondServiceError maps a finder error to its HTTP status. Unknown errors
// are logged and reported as 500 without details.
func respondServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var (
		validationErr *finder.ValidationError
		embeddingErr  *finder.EmbeddingError
		uploadErr     *finder.UploadError
		notFoundErr   *finder.NotFoundError
		permissionErr *finder.PermissionError
		resolvedErr   *finder.AlreadyResolvedError
	)

	switch {
	case errors.As(err, &validationErr):
		respondJSON(w, http.StatusBadRequest, validationResponse{Error: validationErr.Error(), Fields: validationErr.Fields})
	case errors.As(err, &embeddingErr):
		respondError(w, http.StatusUnprocessableEntity, embeddingErr.Error())
	case errors.As(err, &uploadErr):
		logger.Error("Photo upload failed", zap.Error(err))
		respondError(w, http.StatusBadGateway, "photo storage is unavailable, try again later")
	case errors.As(err, &notFoundErr):
		respondError(w, http.StatusNotFound, notFoundErr.Error())
	case errors.As(err, &permissionErr):
		respondError(w, http.StatusForbidden, permissionErr.Error())
	case errors.As(err, &resolvedErr):
		respondError(w, http.StatusConflict, resolvedErr.Error())
	default:
		logger.Error("Request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// readPhoto reads the named multipart file, bounded by MaxPhotoSize.
func readPhoto(r *http.Request, field string) ([]byte, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", field, err)
	}
	defer file.Close()
	return readLimited(file, header)
}

func readLimited(file multipart.File, header *multipart.FileHeader) ([]byte, error) {
	if header.Size > constants.MaxPhotoSize {
		return nil, fmt.Errorf("photo exceeds %d bytes", constants.MaxPhotoSize)
	}
	data, err := io.ReadAll(io.LimitReader(file, constants.MaxPhotoSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read photo: %w", err)
	}
	if len(data) > constants.MaxPhotoSize {
		return nil, fmt.Errorf("photo exceeds %d bytes", constants.MaxPhotoSize)
	}
	return data, nil
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
