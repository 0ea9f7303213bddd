package finder

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unitAt returns a unit vector whose cosine with (1, 0, 0) is s.
func unitAt(s float64) []float32 {
	return []float32{float32(s), float32(math.Sqrt(1 - s*s)), 0}
}

func matchIDs(matches []Match) []string {
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.Case.ID
	}
	return ids
}

func TestFindMatches_ThresholdAndOrder(t *testing.T) {
	env := newTestEnv(t)
	env.seedOpen(t, "case-a", "o", unitAt(0.5)...)
	env.seedOpen(t, "case-b", "o", unitAt(0.2)...)
	env.seedOpen(t, "case-c", "o", unitAt(0.4)...)

	matches, err := env.svc.FindMatches(context.Background(), []float32{1, 0, 0}, 0.33)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, []string{"case-a", "case-c"}, matchIDs(matches))
	assert.InDelta(t, 0.5, matches[0].Score, 1e-6)
	assert.InDelta(t, 0.4, matches[1].Score, 1e-6)
}

func TestFindMatches_TiesBrokenByID(t *testing.T) {
	env := newTestEnv(t)
	env.seedOpen(t, "zeta", "o", 1, 1, 0)
	env.seedOpen(t, "alpha", "o", 2, 2, 0)
	env.seedOpen(t, "mid", "o", 3, 3, 0)

	matches, err := env.svc.FindMatches(context.Background(), []float32{1, 1, 0}, 0.5)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, matchIDs(matches))
}

func TestFindMatches_EmptyIsNotAnError(t *testing.T) {
	env := newTestEnv(t)

	matches, err := env.svc.FindMatches(context.Background(), []float32{1, 0, 0}, 0.33)
	require.NoError(t, err)
	assert.Empty(t, matches)

	env.seedOpen(t, "a", "o", 0, 1, 0)
	matches, err = env.svc.FindMatches(context.Background(), []float32{1, 0, 0}, 0.33)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestFindMatches_ZeroQueryScoresZero(t *testing.T) {
	env := newTestEnv(t)
	env.seedOpen(t, "a", "o", 1, 0, 0)

	matches, err := env.svc.FindMatches(context.Background(), []float32{0, 0, 0}, 0)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Zero(t, matches[0].Score)
}

func TestFindMatches_ThresholdIsMonotonic(t *testing.T) {
	env := newTestEnv(t)
	rng := rand.New(rand.NewPCG(1, 2))
	randVec := func() []float32 {
		return []float32{float32(rng.NormFloat64()), float32(rng.NormFloat64()), float32(rng.NormFloat64())}
	}
	for i := range 60 {
		env.seedOpen(t, fmt.Sprintf("case-%02d", i), "o", randVec()...)
	}

	ctx := context.Background()
	for range 20 {
		query := randVec()
		prev := map[string]bool{}
		first := true
		for _, threshold := range []float64{0.95, 0.8, 0.5, 0.33, 0.2, 0, -0.5, -1} {
			matches, err := env.svc.FindMatches(ctx, query, threshold)
			require.NoError(t, err)

			cur := map[string]bool{}
			for i, m := range matches {
				cur[m.Case.ID] = true
				assert.GreaterOrEqual(t, m.Score, threshold)
				if i > 0 {
					assert.GreaterOrEqual(t, matches[i-1].Score, m.Score)
				}
			}
			if !first {
				for id := range prev {
					assert.True(t, cur[id], "lower threshold %v lost %s", threshold, id)
				}
			}
			prev, first = cur, false
		}
		assert.Len(t, prev, 60)
	}
}

func TestFindMatches_ConcurrentWithRegistration(t *testing.T) {
	env := newTestEnv(t)
	env.seedOpen(t, "seed", "o", 1, 0, 0)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range 20 {
			_, err := env.svc.Register(ctx, validInput("asha-1.jpg"), "owner-1")
			assert.NoError(t, err)
		}
	}()
	for i := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			threshold := 0.1 * float64(i)
			for range 50 {
				matches, err := env.svc.FindMatches(ctx, []float32{0.9, 0.1, 0}, threshold)
				assert.NoError(t, err)
				for _, m := range matches {
					assert.GreaterOrEqual(t, m.Score, threshold)
				}
			}
		}()
	}
	wg.Wait()
}

func TestSearchByPhoto_Errors(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.SearchByPhoto(context.Background(), nil, 0.33)
	errorAs[*ValidationError](t, err)

	_, err = env.svc.SearchByPhoto(context.Background(), []byte("blurry.jpg"), 0.33)
	errorAs[*EmbeddingError](t, err)
}

func TestSearchByPhoto_MasksNationalID(t *testing.T) {
	env := newTestEnv(t)
	env.seedOpen(t, "a", "o", 0.9, 0.1, 0)

	matches, err := env.svc.SearchByPhoto(context.Background(), []byte("asha-1.jpg"), 0.5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "XXXX-XXXX-5544", matches[0].Case.Contact.NationalID)
}

func TestNearest(t *testing.T) {
	env := newTestEnv(t)
	env.seedOpen(t, "near", "o", 1, 0.05, 0)
	env.seedOpen(t, "mid", "o", 1, 0.5, 0)
	env.seedOpen(t, "far", "o", 0, 0, 1)

	matches, err := env.svc.Nearest(context.Background(), []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"near", "mid"}, matchIDs(matches))
	assert.Greater(t, matches[0].Score, matches[1].Score)

	matches, err = env.svc.Nearest(context.Background(), []float32{1, 0, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, matches)
}
