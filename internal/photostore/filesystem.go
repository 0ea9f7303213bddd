package photostore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Filesystem stores photos in a local directory served under publicURL.
type Filesystem struct {
	dir       string
	publicURL string
}

// NewFilesystem creates the directory if needed.
func NewFilesystem(dir, publicURL string) (*Filesystem, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create photo directory: %w", err)
	}
	if publicURL == "" {
		publicURL = "/photos"
	}
	return &Filesystem{dir: dir, publicURL: strings.TrimSuffix(publicURL, "/")}, nil
}

// Dir returns the directory photos are written to.
func (f *Filesystem) Dir() string {
	return f.dir
}

func (f *Filesystem) Upload(ctx context.Context, data []byte) (string, error) {
	name := uuid.NewString() + ".jpg"
	tmp := filepath.Join(f.dir, "."+name+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write photo: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(f.dir, name)); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("rename photo: %w", err)
	}
	return f.publicURL + "/" + name, nil
}

func (f *Filesystem) Delete(ctx context.Context, ref string) error {
	name, ok := strings.CutPrefix(ref, f.publicURL+"/")
	if !ok || name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: %s", ErrInvalidReference, ref)
	}
	if err := os.Remove(filepath.Join(f.dir, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove photo: %w", err)
	}
	return nil
}
