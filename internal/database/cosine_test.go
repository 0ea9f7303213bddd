package database

import (
	"math"
	"math/rand/v2"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"scaled", []float32{1, 2, 3}, []float32{2, 4, 6}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"length mismatch", []float32{1, 0, 0}, []float32{1, 0}, 0},
		{"empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CosineSimilarity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCosineSimilarity_Symmetric(t *testing.T) {
	a := []float32{0.3, -1.2, 4.5, 0.01}
	b := []float32{2.2, 0.7, -0.4, 3.3}
	if CosineSimilarity(a, b) != CosineSimilarity(b, a) {
		t.Errorf("expected symmetric score, got %v and %v", CosineSimilarity(a, b), CosineSimilarity(b, a))
	}
}

func TestCosineSimilarity_SelfIsOne(t *testing.T) {
	vectors := [][]float32{
		{1},
		{0.5, -0.5},
		{1e-3, 2e-3, 3e-3},
		{-7, 0, 0, 12.5},
	}
	rng := rand.New(rand.NewPCG(7, 11))
	for range 1000 {
		v := make([]float32, 512)
		for j := range v {
			v[j] = float32(rng.NormFloat64())
		}
		vectors = append(vectors, v)
	}
	for i, v := range vectors {
		if got := CosineSimilarity(v, v); got != 1 {
			t.Fatalf("vector %d: CosineSimilarity(v, v) = %v, want exactly 1", i, got)
		}
	}
}

func TestEmbeddingEncoding(t *testing.T) {
	in := []float32{0, 1.5, -2.25, float32(math.Pi)}
	out, err := DecodeEmbedding(EncodeEmbedding(in))
	if err != nil {
		t.Fatalf("DecodeEmbedding() error = %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("expected %d values, got %d", len(in), len(out))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("value %d: got %v, want %v", i, out[i], in[i])
		}
	}

	if _, err := DecodeEmbedding([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}

func TestCosineSimilarity_ParallelVectorsTieExactly(t *testing.T) {
	q := []float32{1, 1, 0}
	a := CosineSimilarity(q, []float32{2, 2, 0})
	b := CosineSimilarity(q, []float32{3, 3, 0})
	if a != b {
		t.Errorf("parallel vectors scored %v and %v, want equal", a, b)
	}
}
