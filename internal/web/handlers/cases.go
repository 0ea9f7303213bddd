package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/missing-finder/internal/constants"
	"github.com/kozaktomas/missing-finder/internal/database"
	"github.com/kozaktomas/missing-finder/internal/finder"
	"github.com/kozaktomas/missing-finder/internal/web/middleware"
	"go.uber.org/zap"
)

// CaseService is the case part of the finder service.
type CaseService interface {
	Register(ctx context.Context, in finder.RegisterInput, ownerID string) (*finder.Result[finder.CaseView], error)
	ListByOwner(ctx context.Context, ownerID string) ([]finder.CaseView, error)
	ListResolvedByOwner(ctx context.Context, ownerID string) ([]finder.CaseView, error)
	GetCase(ctx context.Context, caseID string) (*finder.CaseView, error)
	MarkFound(ctx context.Context, caseID, requesterID string) (*finder.CaseView, error)
	DeleteResolved(ctx context.Context, caseID, requesterID string) error
}

// CasesHandler handles case endpoints.
type CasesHandler struct {
	service CaseService
	logger  *zap.Logger
}

// NewCasesHandler creates a new cases handler.
func NewCasesHandler(service CaseService, logger *zap.Logger) *CasesHandler {
	return &CasesHandler{service: service, logger: logger}
}

// RegisterResponse is the response of a successful registration.
type RegisterResponse struct {
	Case     finder.CaseView  `json:"case"`
	Warnings []finder.Warning `json:"warnings"`
}

// CaseListResponse wraps a list of cases.
type CaseListResponse struct {
	Cases []finder.CaseView `json:"cases"`
	Count int               `json:"count"`
}

// parseRegisterForm builds the typed input from form values. Values that do
// not parse are reported as field errors.
func parseRegisterForm(r *http.Request) (finder.RegisterInput, []finder.FieldError) {
	var fieldErrs []finder.FieldError
	in := finder.RegisterInput{
		Profile: database.Profile{
			Name:   r.FormValue("name"),
			Gender: database.Gender(strings.TrimSpace(r.FormValue("gender"))),
			Notes:  r.FormValue("notes"),
		},
		Contact: database.Contact{
			Name:       r.FormValue("contact_name"),
			Number:     r.FormValue("contact_number"),
			Relation:   r.FormValue("relation"),
			Address:    r.FormValue("address"),
			NationalID: r.FormValue("national_id"),
		},
		Location: r.FormValue("location"),
	}

	ageStr := strings.TrimSpace(r.FormValue("age"))
	if ageStr == "" {
		fieldErrs = append(fieldErrs, finder.FieldError{Field: "age", Message: "is required"})
	} else if age, err := strconv.Atoi(ageStr); err != nil {
		fieldErrs = append(fieldErrs, finder.FieldError{Field: "age", Message: "must be a whole number"})
	} else {
		in.Profile.Age = age
	}

	if dateStr := strings.TrimSpace(r.FormValue("sighting_date")); dateStr != "" {
		date, err := time.Parse(time.DateOnly, dateStr)
		if err != nil {
			fieldErrs = append(fieldErrs, finder.FieldError{Field: "sighting_date", Message: "must be a date (YYYY-MM-DD)"})
		}
		in.SightingDate = date
	}
	return in, fieldErrs
}

// mergeFieldErrors combines form parse errors with the input validation
// result. A field that failed to parse is reported once, with its parse error.
func mergeFieldErrors(parsed []finder.FieldError, validateErr error) *finder.ValidationError {
	merged := &finder.ValidationError{Fields: parsed}
	var verr *finder.ValidationError
	if !errors.As(validateErr, &verr) {
		return merged
	}
	seen := make(map[string]bool, len(parsed))
	for _, f := range parsed {
		seen[f.Field] = true
	}
	for _, f := range verr.Fields {
		if !seen[f.Field] {
			merged.Fields = append(merged.Fields, f)
		}
	}
	return merged
}

// Register handles case registration (multipart form with a "photo" file).
func (h *CasesHandler) Register(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	in, fieldErrs := parseRegisterForm(r)
	photo, err := readPhoto(r, "photo")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	in.Image = photo

	userID := middleware.GetUserID(r.Context())
	if len(fieldErrs) > 0 {
		respondServiceError(w, h.logger, mergeFieldErrors(fieldErrs, in.Validate(userID)))
		return
	}

	res, err := h.service.Register(r.Context(), in, userID)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	warnings := res.Warnings
	if warnings == nil {
		warnings = []finder.Warning{}
	}
	respondJSON(w, http.StatusCreated, RegisterResponse{Case: res.Value, Warnings: warnings})
}

// List returns the requester's open cases.
func (h *CasesHandler) List(w http.ResponseWriter, r *http.Request) {
	cases, err := h.service.ListByOwner(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, CaseListResponse{Cases: cases, Count: len(cases)})
}

// ListResolved returns the requester's resolved cases.
func (h *CasesHandler) ListResolved(w http.ResponseWriter, r *http.Request) {
	cases, err := h.service.ListResolvedByOwner(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, CaseListResponse{Cases: cases, Count: len(cases)})
}

// Get returns one case.
func (h *CasesHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.GetCase(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// MarkFound resolves an open case.
func (h *CasesHandler) MarkFound(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "id")
	view, err := h.service.MarkFound(r.Context(), caseID, middleware.GetUserID(r.Context()))
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	h.logger.Info("Case marked found via API", zap.String("case_id", sanitizeForLog(caseID)))
	respondJSON(w, http.StatusOK, view)
}

// Delete permanently removes a resolved case.
func (h *CasesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "id")
	if err := h.service.DeleteResolved(r.Context(), caseID, middleware.GetUserID(r.Context())); err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"deleted": caseID})
}

func formFloat(r *http.Request, name string, def float64) (float64, error) {
	v := strings.TrimSpace(r.FormValue(name))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number", name)
	}
	return f, nil
}

func formInt(r *http.Request, name string, def int) (int, error) {
	v := strings.TrimSpace(r.FormValue(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative whole number", name)
	}
	return n, nil
}
