package store

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrObjectNotFound is returned when the requested archive object does not
// exist in the backing store. Callers match it with errors.Is.
var ErrObjectNotFound = errors.New("object not found")

// Backend is the read side of an object store holding sensor archive files
// (realtime, historic and per-deployment objects). Stores are remote mirrors
// or local archive trees; the engine never writes through this interface.
type Backend interface {
	// Read reads the full object at the specified path
	Read(ctx context.Context, path string) ([]byte, error)

	// ReadTo streams the object at the specified path into the writer
	ReadTo(ctx context.Context, path string, writer io.Writer) error

	// List lists all object paths with the given prefix
	List(ctx context.Context, prefix string) ([]string, error)

	// Exists checks if an object exists at the specified path
	Exists(ctx context.Context, path string) (bool, error)

	// Stat returns metadata for the object at the specified path
	Stat(ctx context.Context, path string) (ObjectInfo, error)

	// Close closes any resources held by the backend
	Close() error

	// Type returns the store type identifier ("local", "s3", "azure")
	Type() string
}

// ObjectInfo provides metadata about a stored archive object. LastModified
// drives change detection against the published modification manifest.
type ObjectInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
}
