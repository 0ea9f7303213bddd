// Package photostore persists reference photos and returns public URLs.
package photostore

import (
	"context"
	"errors"
)

// ErrInvalidReference is returned by Delete for a reference the store did not issue.
var ErrInvalidReference = errors.New("invalid photo reference")

// Store uploads and deletes photos.
type Store interface {
	Upload(ctx context.Context, data []byte) (string, error)
	Delete(ctx context.Context, ref string) error
}

// Normalizing re-encodes photos to bounded JPEGs before handing them to the
// wrapped store.
type Normalizing struct {
	next    Store
	maxSize int
}

// NewNormalizing wraps next. maxSize <= 0 uses DefaultMaxSize.
func NewNormalizing(next Store, maxSize int) *Normalizing {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Normalizing{next: next, maxSize: maxSize}
}

func (n *Normalizing) Upload(ctx context.Context, data []byte) (string, error) {
	normalized, err := Normalize(data, n.maxSize)
	if err != nil {
		return "", err
	}
	return n.next.Upload(ctx, normalized)
}

func (n *Normalizing) Delete(ctx context.Context, ref string) error {
	return n.next.Delete(ctx, ref)
}
