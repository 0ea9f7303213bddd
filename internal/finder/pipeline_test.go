package finder

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/kozaktomas/missing-finder/internal/database"
	"github.com/kozaktomas/missing-finder/internal/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_Success(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.svc.Register(ctx, validInput("asha-1.jpg"), "owner-1")
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)

	v := res.Value
	assert.Equal(t, database.StateOpen, v.State)
	assert.Equal(t, "owner-1", v.OwnerID)
	assert.Equal(t, "/photos/asha-1.jpg.jpg", v.PhotoReference)
	assert.Equal(t, []string{"https://facebook.com/asha"}, v.RelatedLinks)
	require.NotNil(t, v.Coordinates)
	assert.InDelta(t, 18.52, v.Coordinates.Latitude, 1e-9)
	assert.Equal(t, "2024-04-30", v.SightingDate)
	assert.Equal(t, "XXXX-XXXX-9012", v.Contact.NationalID)

	stored, err := env.store.GetCase(ctx, v.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.NotEmpty(t, stored.Embedding)
	assert.Equal(t, "1234-5678-9012", stored.Contact.NationalID)
	assert.Equal(t, 1, env.svc.Index().Len())
}

func TestRegister_AdvisoryFailuresOnlyWarn(t *testing.T) {
	env := newTestEnv(t)
	env.geocoder.err = errors.New("nominatim unreachable")
	env.searcher.err = errors.New("quota exceeded")

	res, err := env.svc.Register(context.Background(), validInput("asha-1.jpg"), "owner-1")
	require.NoError(t, err)

	assert.Nil(t, res.Value.Coordinates)
	assert.Equal(t, []string{}, res.Value.RelatedLinks)
	require.Len(t, res.Warnings, 2)
	assert.Equal(t, WarnGeocodeUnavailable, res.Warnings[0].Code)
	assert.Equal(t, "geocoding unavailable", res.Warnings[0].Message)
	assert.Equal(t, WarnImageSearchFailed, res.Warnings[1].Code)
	assert.Equal(t, "image search failed: quota exceeded", res.Warnings[1].Message)
	assert.Equal(t, database.StateOpen, res.Value.State)
	assert.Equal(t, 1, env.store.InsertCalls)
}

func TestRegister_AdvisoryTimeoutsOnlyWarn(t *testing.T) {
	env := newTestEnv(t)
	env.geocoder.block = true

	res, err := env.svc.Register(context.Background(), validInput("asha-1.jpg"), "owner-1")
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, WarnGeocodeUnavailable, res.Warnings[0].Code)
}

func TestRegister_GeocodeNotFoundIsSilent(t *testing.T) {
	env := newTestEnv(t)
	env.geocoder.coords = nil

	res, err := env.svc.Register(context.Background(), validInput("asha-1.jpg"), "owner-1")
	require.NoError(t, err)
	assert.Nil(t, res.Value.Coordinates)
	assert.Empty(t, res.Warnings)
}

func TestRegister_NoSearchResultsWarns(t *testing.T) {
	env := newTestEnv(t)
	env.searcher.hits = nil

	res, err := env.svc.Register(context.Background(), validInput("asha-1.jpg"), "owner-1")
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, WarnImageSearchNoResults, res.Warnings[0].Code)
	assert.Equal(t, []string{}, res.Value.RelatedLinks)
}

func TestRegister_ValidationListsEveryField(t *testing.T) {
	env := newTestEnv(t)

	in := RegisterInput{Profile: database.Profile{Name: "  ", Age: 130, Gender: "Unknown"}}
	_, err := env.svc.Register(context.Background(), in, "")

	verr := errorAs[*ValidationError](t, err)
	var fields []string
	for _, f := range verr.Fields {
		fields = append(fields, f.Field)
	}
	assert.Equal(t, []string{"owner_id", "name", "age", "gender", "location", "contact_name", "contact_number", "photo"}, fields)
	assert.Zero(t, env.embedder.calls)
	assert.Empty(t, env.photos.uploaded)
	assert.Zero(t, env.store.InsertCalls)
}

func TestRegister_AgeBounds(t *testing.T) {
	env := newTestEnv(t)
	for _, age := range []int{0, 120} {
		in := validInput("asha-1.jpg")
		in.Profile.Age = age
		_, err := env.svc.Register(context.Background(), in, "owner-1")
		assert.NoError(t, err, age)
	}
	in := validInput("asha-1.jpg")
	in.Profile.Age = -1
	_, err := env.svc.Register(context.Background(), in, "owner-1")
	errorAs[*ValidationError](t, err)
}

func TestRegister_EmbeddingFailureIsFatal(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Register(context.Background(), validInput("no-face.jpg"), "owner-1")
	eerr := errorAs[*EmbeddingError](t, err)
	assert.ErrorIs(t, eerr, embedding.ErrNoFace)

	assert.Zero(t, env.store.InsertCalls)
	assert.Zero(t, env.svc.Index().Len())
	// the photo uploaded concurrently is cleaned up
	assert.Equal(t, []string{"/photos/no-face.jpg.jpg"}, env.photos.deletedRefs())
}

func TestRegister_EmbeddingTimeoutIsFatal(t *testing.T) {
	env := newTestEnv(t)
	env.embedder.block = true

	_, err := env.svc.Register(context.Background(), validInput("asha-1.jpg"), "owner-1")
	eerr := errorAs[*EmbeddingError](t, err)
	assert.ErrorIs(t, eerr, context.DeadlineExceeded)
	assert.Zero(t, env.store.InsertCalls)
}

func TestRegister_DimensionMismatchIsFatal(t *testing.T) {
	env := newTestEnv(t)
	env.embedder.vectors["odd.jpg"] = []float32{1, 2}

	_, err := env.svc.Register(context.Background(), validInput("odd.jpg"), "owner-1")
	eerr := errorAs[*EmbeddingError](t, err)
	assert.ErrorIs(t, eerr, database.ErrDimensionMismatch)
	assert.Zero(t, env.store.InsertCalls)
}

func TestRegister_UploadFailureIsFatal(t *testing.T) {
	env := newTestEnv(t)
	env.photos.err = errors.New("bucket unavailable")

	_, err := env.svc.Register(context.Background(), validInput("asha-1.jpg"), "owner-1")
	uerr := errorAs[*UploadError](t, err)
	assert.Contains(t, uerr.Error(), "bucket unavailable")
	assert.Zero(t, env.store.InsertCalls)
	assert.Empty(t, env.photos.deletedRefs())
}

func TestRegister_StoreFailureLeavesNothing(t *testing.T) {
	env := newTestEnv(t)
	env.store.InsertError = errors.New("disk full")

	_, err := env.svc.Register(context.Background(), validInput("asha-1.jpg"), "owner-1")
	require.Error(t, err)
	assert.Zero(t, env.svc.Index().Len())
	assert.Equal(t, []string{"/photos/asha-1.jpg.jpg"}, env.photos.deletedRefs())
}

func TestRegister_DefaultsSightingDateToToday(t *testing.T) {
	env := newTestEnv(t)
	in := validInput("asha-1.jpg")
	in.SightingDate = time.Time{}

	res, err := env.svc.Register(context.Background(), in, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, time.Now().UTC().Format(time.DateOnly), res.Value.SightingDate)
}

func TestRegister_ViewNeverCarriesEmbeddingOrFullNationalID(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.svc.Register(context.Background(), validInput("asha-1.jpg"), "owner-1")
	require.NoError(t, err)

	out, err := json.Marshal(res.Value)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "embedding")
	assert.NotContains(t, string(out), "1234-5678-9012")
	assert.Contains(t, string(out), "XXXX-XXXX-9012")
}

func TestRegister_SameFaceMatchesUnrelatedDoesNot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a1, err := env.svc.Register(ctx, validInput("asha-1.jpg"), "owner-1")
	require.NoError(t, err)
	a2, err := env.svc.Register(ctx, validInput("asha-2.jpg"), "owner-2")
	require.NoError(t, err)
	other, err := env.svc.Register(ctx, validInput("ravi.jpg"), "owner-3")
	require.NoError(t, err)

	emb := func(id string) []float32 {
		c, ok := env.svc.Index().Get(id)
		require.True(t, ok)
		return c.Embedding
	}
	assert.GreaterOrEqual(t, database.CosineSimilarity(emb(a1.Value.ID), emb(a2.Value.ID)), 0.9)
	assert.Less(t, database.CosineSimilarity(emb(a1.Value.ID), emb(other.Value.ID)), 0.3)
	assert.Less(t, database.CosineSimilarity(emb(a2.Value.ID), emb(other.Value.ID)), 0.3)

	matches, err := env.svc.SearchByPhoto(ctx, []byte("asha-1.jpg"), 0.9)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, a1.Value.ID, matches[0].Case.ID)
	assert.Equal(t, a2.Value.ID, matches[1].Case.ID)
}

func TestRegister_ConcurrentCallsAreIndependent(t *testing.T) {
	env := newTestEnv(t)

	const n = 10
	errs := make(chan error, n)
	for range n {
		go func() {
			_, err := env.svc.Register(context.Background(), validInput("asha-1.jpg"), "owner-1")
			errs <- err
		}()
	}
	for range n {
		require.NoError(t, <-errs)
	}
	assert.Equal(t, n, env.svc.Index().Len())
	views, err := env.svc.ListByOwner(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Len(t, views, n)
}
