package finder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/missing-finder/internal/config"
	"github.com/kozaktomas/missing-finder/internal/database"
	"github.com/kozaktomas/missing-finder/internal/database/mock"
	"github.com/kozaktomas/missing-finder/internal/embedding"
	"github.com/kozaktomas/missing-finder/internal/imagesearch"
	"go.uber.org/zap"
)

type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	err     error
	block   bool
	calls   int
}

func (f *fakeEmbedder) Embed(ctx context.Context, imageData []byte) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	block, err := f.block, f.err
	v, ok := f.vectors[string(imageData)]
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, embedding.ErrNoFace
	}
	return append([]float32(nil), v...), nil
}

type fakePhotos struct {
	mu       sync.Mutex
	err      error
	uploaded []string
	deleted  []string
}

func (f *fakePhotos) Upload(ctx context.Context, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	ref := "/photos/" + string(data) + ".jpg"
	f.uploaded = append(f.uploaded, ref)
	return ref, nil
}

func (f *fakePhotos) Delete(ctx context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ref)
	return nil
}

func (f *fakePhotos) deletedRefs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

type fakeGeocoder struct {
	coords *database.Coordinates
	err    error
	block  bool
}

func (f *fakeGeocoder) Geocode(ctx context.Context, text string) (*database.Coordinates, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.coords, f.err
}

type fakeSearcher struct {
	hits []imagesearch.Hit
	err  error
}

func (f *fakeSearcher) Search(ctx context.Context, imageData []byte, maxResults int) ([]imagesearch.Hit, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.hits) > maxResults {
		return f.hits[:maxResults], nil
	}
	return f.hits, nil
}

type testEnv struct {
	svc      *Service
	store    *mock.MockCaseStore
	embedder *fakeEmbedder
	photos   *fakePhotos
	geocoder *fakeGeocoder
	searcher *fakeSearcher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store: mock.NewMockCaseStore(),
		embedder: &fakeEmbedder{vectors: map[string][]float32{
			"asha-1.jpg":  {0.90, 0.10, 0.00},
			"asha-2.jpg":  {0.88, 0.14, 0.02},
			"ravi.jpg":    {0.05, 0.10, 0.99},
			"unknown.jpg": {0.00, 1.00, 0.00},
		}},
		photos:   &fakePhotos{},
		geocoder: &fakeGeocoder{coords: &database.Coordinates{Latitude: 18.52, Longitude: 73.85}},
		searcher: &fakeSearcher{hits: []imagesearch.Hit{{Title: "Asha", URL: "https://facebook.com/asha"}}},
	}
	env.svc = New(Dependencies{
		Store:    env.store,
		Index:    database.NewCaseIndex(3),
		Embedder: env.embedder,
		Photos:   env.photos,
		Geocoder: env.geocoder,
		Searcher: env.searcher,
		Logger:   zap.NewNop(),
		Metrics:  NewMetrics(nil),
	}, Options{
		Timeouts: config.TimeoutConfig{
			Embed:   200 * time.Millisecond,
			Upload:  200 * time.Millisecond,
			Geocode: 50 * time.Millisecond,
			Search:  50 * time.Millisecond,
		},
		MaxSearchResults: 5,
	})
	return env
}

func validInput(photo string) RegisterInput {
	return RegisterInput{
		Profile:      database.Profile{Name: "Asha Rao", Age: 29, Gender: database.GenderFemale},
		Contact:      database.Contact{Name: "R. Rao", Number: "9999999999", NationalID: "1234-5678-9012"},
		Location:     "Pune, India",
		SightingDate: time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC),
		Image:        []byte(photo),
	}
}

// seedOpen puts an open case straight into the store and index.
func (env *testEnv) seedOpen(t *testing.T, id, owner string, emb ...float32) {
	t.Helper()
	c := database.Case{
		ID:             id,
		OwnerID:        owner,
		Profile:        database.Profile{Name: "Case " + id, Age: 40, Gender: database.GenderMale},
		Location:       "Mumbai",
		SightingDate:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Contact:        database.Contact{Name: "C", Number: "1", NationalID: "998877665544"},
		PhotoReference: "/photos/" + id + ".jpg",
		Embedding:      emb,
		RelatedLinks:   []string{},
		State:          database.StateOpen,
	}
	env.store.AddCase(c)
	if err := env.svc.Index().Add(&c); err != nil {
		t.Fatalf("index add: %v", err)
	}
}

func errorAs[T error](t *testing.T, err error) T {
	t.Helper()
	var target T
	if !errors.As(err, &target) {
		t.Fatalf("expected %T, got %v", target, err)
	}
	return target
}
