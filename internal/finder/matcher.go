package finder

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/kozaktomas/missing-finder/internal/database"
)

// Match is an open case scored against a query embedding.
type Match struct {
	Case  CaseView `json:"case"`
	Score float64  `json:"score"`
}

type scored struct {
	c     *database.Case
	score float64
}

// sortScored orders by score descending, ties by case ID ascending.
func sortScored(s []scored) {
	slices.SortFunc(s, func(a, b scored) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return cmp.Compare(a.c.ID, b.c.ID)
	})
}

func toMatches(s []scored) []Match {
	matches := make([]Match, len(s))
	for i, m := range s {
		matches[i] = Match{Case: NewCaseView(m.c), Score: m.score}
	}
	return matches
}

// FindMatches scores every open case against query by cosine similarity and
// returns those scoring at least threshold. The threshold is not clamped.
// An empty result is not an error.
func (s *Service) FindMatches(ctx context.Context, query []float32, threshold float64) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer s.metrics.matched("scan", start)

	var hits []scored
	s.index.Scan(func(c *database.Case) {
		if score := database.CosineSimilarity(query, c.Embedding); score >= threshold {
			hits = append(hits, scored{c: c, score: score})
		}
	})
	sortScored(hits)
	return toMatches(hits), nil
}

// SearchByPhoto embeds a query photo and runs FindMatches with it.
func (s *Service) SearchByPhoto(ctx context.Context, imageData []byte, threshold float64) ([]Match, error) {
	if len(imageData) == 0 {
		return nil, &ValidationError{Fields: []FieldError{{Field: "photo", Message: "is required"}}}
	}
	emb, err := s.embed(ctx, imageData)
	if err != nil {
		return nil, &EmbeddingError{Err: err}
	}
	return s.FindMatches(ctx, emb, threshold)
}

// Nearest returns up to k open cases closest to query. Candidates come from
// the approximate graph and are re-scored exactly.
func (s *Service) Nearest(ctx context.Context, query []float32, k int) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []Match{}, nil
	}
	start := time.Now()
	defer s.metrics.matched("nearest", start)

	ids := s.index.Nearest(query, k*database.HNSWSearchMultiplier)
	hits := make([]scored, 0, len(ids))
	for _, id := range ids {
		c, ok := s.index.Get(id)
		if !ok {
			continue
		}
		hits = append(hits, scored{c: c, score: database.CosineSimilarity(query, c.Embedding)})
	}
	sortScored(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return toMatches(hits), nil
}

// NearestByPhoto embeds a query photo and runs Nearest with it.
func (s *Service) NearestByPhoto(ctx context.Context, imageData []byte, k int) ([]Match, error) {
	if len(imageData) == 0 {
		return nil, &ValidationError{Fields: []FieldError{{Field: "photo", Message: "is required"}}}
	}
	emb, err := s.embed(ctx, imageData)
	if err != nil {
		return nil, &EmbeddingError{Err: err}
	}
	return s.Nearest(ctx, emb, k)
}
