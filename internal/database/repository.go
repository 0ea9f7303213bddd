package database

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a case does not exist in the queried set.
	ErrNotFound = errors.New("case not found")
	// ErrNotOpen is returned when a case expected in the open set is not there
	// anymore (already resolved or deleted by a concurrent caller).
	ErrNotOpen = errors.New("case is not open")
	// ErrDimensionMismatch is returned when an embedding does not have the
	// deployment's fixed length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrGraphLoad marks a persisted HNSW graph that could not be read. The
	// index is still usable; the graph was rebuilt from the cases.
	ErrGraphLoad = errors.New("load persisted graph")
)

// CaseReader provides read-only access to cases
type CaseReader interface {
	// GetCase retrieves a case by ID from either the open or the resolved set
	GetCase(ctx context.Context, id string) (*Case, error)
	// ListOpen returns every open case including embeddings
	ListOpen(ctx context.Context) ([]Case, error)
	// ListByOwner returns the owner's cases in the given state
	ListByOwner(ctx context.Context, ownerID string, state CaseState) ([]Case, error)
	// CountOpen returns the number of open cases
	CountOpen(ctx context.Context) (int, error)
}

// CaseWriter provides write access to cases
type CaseWriter interface {
	CaseReader

	// InsertCase stores a new open case. The write is atomic: either every
	// field is visible or the case does not exist.
	InsertCase(ctx context.Context, c *Case) error

	// MoveToResolved moves an open case into the resolved set, preserving all
	// fields. Returns ErrNotOpen when the case is no longer in the open set.
	MoveToResolved(ctx context.Context, id string, resolvedAt time.Time) error

	// DeleteResolved permanently removes a resolved case.
	// Returns ErrNotFound when the case is not in the resolved set.
	DeleteResolved(ctx context.Context, id string) error
}

// Store is a CaseWriter that owns database resources.
type Store interface {
	CaseWriter
	Close() error
}

// CheckEmbedding rejects an empty embedding and, when dim is positive, one
// whose length is not dim.
func CheckEmbedding(embedding []float32, dim int) error {
	if len(embedding) == 0 {
		return ErrDimensionMismatch
	}
	if dim > 0 && len(embedding) != dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(embedding), dim)
	}
	return nil
}
