package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"
)

// Stored is the reference returned by the blob-storage collaborator. It is
// everything a media message needs: a retrievable URL plus the display name.
type Stored struct {
	URL  string
	Name string
}

// Storage is the external blob-storage collaborator. Implementations must be
// collision-free for distinct blobs.
type Storage interface {
	Store(ctx context.Context, kind Kind, name string, blob io.Reader) (Stored, error)
}

// DiskStorage implements Storage on the local filesystem, serving files under
// a base URL. Stored names are uuid-prefixed so concurrent uploads of the
// same filename never collide.
type DiskStorage struct {
	dir     string
	baseURL string
}

// NewDiskStorage creates a filesystem-backed storage rooted at dir.
func NewDiskStorage(dir, baseURL string) *DiskStorage {
	return &DiskStorage{dir: dir, baseURL: baseURL}
}

// Store writes the blob to disk and returns its reference.
func (s *DiskStorage) Store(ctx context.Context, kind Kind, name string, blob io.Reader) (Stored, error) {
	if err := ctx.Err(); err != nil {
		return Stored{}, fmt.Errorf("media: store: %w", err)
	}

	subdir := filepath.Join(s.dir, string(kind))
	if err := os.MkdirAll(subdir, 0o755); err != nil {
		return Stored{}, fmt.Errorf("media: create storage dir: %w", err)
	}

	stored := uuid.NewString() + "_" + filepath.Base(name)
	dst := filepath.Join(subdir, stored)

	f, err := os.Create(dst)
	if err != nil {
		return Stored{}, fmt.Errorf("media: create file: %w", err)
	}
	if _, err := io.Copy(f, blob); err != nil {
		f.Close()
		os.Remove(dst)
		return Stored{}, fmt.Errorf("media: write file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(dst)
		return Stored{}, fmt.Errorf("media: close file: %w", err)
	}

	return Stored{
		URL:  s.baseURL + "/" + path.Join(string(kind), stored),
		Name: filepath.Base(name),
	}, nil
}
