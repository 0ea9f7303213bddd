package finder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kozaktomas/missing-finder/internal/database"
	"github.com/kozaktomas/missing-finder/internal/logging"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const maxAge = 120

// RegisterInput is the typed registration request.
type RegisterInput struct {
	Profile      database.Profile
	Contact      database.Contact
	Location     string
	SightingDate time.Time // zero means today
	Image        []byte
}

func (in *RegisterInput) normalize() {
	in.Profile.Name = strings.TrimSpace(in.Profile.Name)
	in.Profile.Notes = strings.TrimSpace(in.Profile.Notes)
	in.Location = strings.TrimSpace(in.Location)
	in.Contact.Name = strings.TrimSpace(in.Contact.Name)
	in.Contact.Number = strings.TrimSpace(in.Contact.Number)
	in.Contact.Relation = strings.TrimSpace(in.Contact.Relation)
	in.Contact.Address = strings.TrimSpace(in.Contact.Address)
	in.Contact.NationalID = strings.TrimSpace(in.Contact.NationalID)
}

// Validate trims the input and returns a ValidationError listing every
// missing or invalid field.
func (in *RegisterInput) Validate(ownerID string) error {
	in.normalize()
	verr := &ValidationError{}
	if strings.TrimSpace(ownerID) == "" {
		verr.add("owner_id", "is required")
	}
	if in.Profile.Name == "" {
		verr.add("name", "is required")
	}
	if in.Profile.Age < 0 || in.Profile.Age > maxAge {
		verr.add("age", fmt.Sprintf("must be between 0 and %d", maxAge))
	}
	if !in.Profile.Gender.Valid() {
		verr.add("gender", "must be one of Male, Female, Other")
	}
	if in.Location == "" {
		verr.add("location", "is required")
	}
	if in.Contact.Name == "" {
		verr.add("contact_name", "is required")
	}
	if in.Contact.Number == "" {
		verr.add("contact_number", "is required")
	}
	if len(in.Image) == 0 {
		verr.add("photo", "is required")
	}
	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

// enrichment holds the outcome of the four concurrent registration branches.
type enrichment struct {
	embedding []float32
	embedErr  error

	photoRef  string
	uploadErr error

	coords    *database.Coordinates
	geoWarn   *Warning
	links     []string
	linksWarn *Warning
}

// Register validates the input, runs the embedding, upload, geocoding and
// image search branches concurrently and persists the new open case.
// Embedding and upload failures are fatal; geocoding and image search
// failures only add warnings.
func (s *Service) Register(ctx context.Context, in RegisterInput, ownerID string) (*Result[CaseView], error) {
	if err := in.Validate(ownerID); err != nil {
		s.metrics.registration("invalid", nil)
		return nil, err
	}

	e := s.enrich(ctx, &in)

	if e.embedErr != nil || e.uploadErr != nil {
		if e.photoRef != "" {
			s.deletePhoto(ctx, e.photoRef)
		}
		if e.embedErr != nil {
			s.metrics.registration("embedding_error", nil)
			s.logger.Info("Registration rejected, no usable face", zap.String("owner_id", ownerID), zap.Error(e.embedErr))
			return nil, &EmbeddingError{Err: e.embedErr}
		}
		s.metrics.registration("upload_error", nil)
		s.logger.Error("Registration failed, photo upload", zap.String("owner_id", ownerID), zap.Error(e.uploadErr))
		return nil, &UploadError{Err: e.uploadErr}
	}

	var warnings []Warning
	if e.geoWarn != nil {
		warnings = append(warnings, *e.geoWarn)
	}
	if e.linksWarn != nil {
		warnings = append(warnings, *e.linksWarn)
	}

	now := s.now().UTC()
	sighting := in.SightingDate
	if sighting.IsZero() {
		sighting = now
	}
	c := &database.Case{
		ID:             s.newID(),
		OwnerID:        ownerID,
		Profile:        in.Profile,
		Location:       in.Location,
		Coordinates:    e.coords,
		SightingDate:   time.Date(sighting.Year(), sighting.Month(), sighting.Day(), 0, 0, 0, 0, time.UTC),
		Contact:        in.Contact,
		PhotoReference: e.photoRef,
		Embedding:      e.embedding,
		RelatedLinks:   e.links,
		State:          database.StateOpen,
		CreatedAt:      now,
	}

	if err := s.store.InsertCase(ctx, c); err != nil {
		s.deletePhoto(ctx, e.photoRef)
		s.metrics.registration("store_error", nil)
		return nil, fmt.Errorf("persist case: %w", err)
	}
	if err := s.index.Add(c); err != nil {
		// The store is authoritative; the case shows up after the next rebuild.
		s.logger.Error("Failed to index case", zap.String("case_id", c.ID), zap.Error(err))
	}
	s.metrics.registration("ok", warnings)
	s.metrics.setOpenCases(s.index.Len())

	s.logger.Info("Case registered",
		zap.String("case_id", c.ID),
		zap.String("owner_id", ownerID),
		logging.MaskedID("national_id", c.Contact.NationalID),
		zap.Bool("geocoded", c.Coordinates != nil),
		zap.Int("related_links", len(c.RelatedLinks)),
		zap.Int("warnings", len(warnings)),
	)

	return &Result[CaseView]{Value: NewCaseView(c), Warnings: warnings}, nil
}

// enrich runs the four collaborator calls. Each branch has its own timeout
// and records its own outcome; no branch cancels another.
func (s *Service) enrich(ctx context.Context, in *RegisterInput) *enrichment {
	e := &enrichment{links: []string{}}
	var g errgroup.Group

	g.Go(func() error {
		e.embedding, e.embedErr = s.embed(ctx, in.Image)
		return nil
	})

	g.Go(func() error {
		uctx, cancel := context.WithTimeout(ctx, s.timeouts.Upload)
		defer cancel()
		ref, err := s.photos.Upload(uctx, in.Image)
		if err == nil && ref == "" {
			err = errors.New("storage returned an empty reference")
		}
		e.photoRef, e.uploadErr = ref, err
		return nil
	})

	g.Go(func() error {
		e.coords, e.geoWarn = s.geocode(ctx, in.Location)
		return nil
	})

	g.Go(func() error {
		e.links, e.linksWarn = s.relatedLinks(ctx, in.Image)
		return nil
	})

	_ = g.Wait()
	return e
}

// embed computes and checks the face embedding of imageData.
func (s *Service) embed(ctx context.Context, imageData []byte) ([]float32, error) {
	ectx, cancel := context.WithTimeout(ctx, s.timeouts.Embed)
	defer cancel()

	emb, err := s.embedder.Embed(ectx, imageData)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("embedding timed out after %s: %w", s.timeouts.Embed, err)
		}
		return nil, err
	}
	if len(emb) == 0 {
		return nil, errors.New("empty embedding returned")
	}
	if dim := s.index.Dim(); dim > 0 && len(emb) != dim {
		return nil, fmt.Errorf("%w: got %d, want %d", database.ErrDimensionMismatch, len(emb), dim)
	}
	return emb, nil
}

func (s *Service) geocode(ctx context.Context, location string) (*database.Coordinates, *Warning) {
	warn := &Warning{Code: WarnGeocodeUnavailable, Message: "geocoding unavailable"}
	if s.geocoder == nil {
		return nil, warn
	}

	gctx, cancel := context.WithTimeout(ctx, s.timeouts.Geocode)
	defer cancel()

	coords, err := s.geocoder.Geocode(gctx, location)
	if err != nil {
		s.logger.Warn("Geocoding failed", zap.String("location", location), zap.Error(err))
		return nil, warn
	}
	return coords, nil
}

func (s *Service) relatedLinks(ctx context.Context, imageData []byte) ([]string, *Warning) {
	if s.searcher == nil {
		return []string{}, &Warning{Code: WarnImageSearchFailed, Message: "image search failed: not configured"}
	}

	sctx, cancel := context.WithTimeout(ctx, s.timeouts.Search)
	defer cancel()

	hits, err := s.searcher.Search(sctx, imageData, s.maxResults)
	if err != nil {
		s.logger.Warn("Image search failed", zap.Error(err))
		return []string{}, &Warning{Code: WarnImageSearchFailed, Message: "image search failed: " + err.Error()}
	}
	if len(hits) == 0 {
		return []string{}, &Warning{Code: WarnImageSearchNoResults, Message: "image search found no related links"}
	}

	links := make([]string, 0, len(hits))
	for _, h := range hits {
		links = append(links, h.URL)
	}
	return links, nil
}
