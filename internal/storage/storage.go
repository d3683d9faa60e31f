package storage

import (
	"context"
	"io"
	"time"
)

// ArchiveInfo describes one stored archive.
type ArchiveInfo struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// ArchiveStorage abstracts where packaged bundles live. Local-disk today.
type ArchiveStorage interface {
	// Save persists an archive under name and returns its storage path.
	Save(ctx context.Context, name string, reader io.Reader) (storagePath string, err error)
	// Open returns a reader for the named archive.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// Delete removes the named archive. Missing archives are not an error.
	Delete(ctx context.Context, name string) error
	// List returns the stored archives sorted by name.
	List(ctx context.Context) ([]ArchiveInfo, error)
}
