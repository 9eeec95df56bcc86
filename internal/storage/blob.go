// Package storage defines the blob storage contract shared by the audio upload
// backends (local filesystem, Google Cloud Storage, and memory). Objects live
// in a single flat namespace; names never contain path separators.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// ErrObjectNotFound is returned when a named object does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Name        string
	Size        int64
	ContentType string
	ModTime     time.Time
	// URI is a backend-specific locator (file://, gs://, memory://).
	URI string
}

// BlobStore is implemented by every upload backend.
type BlobStore interface {
	PutObject(ctx context.Context, name, contentType string, r io.Reader) (ObjectInfo, error)
	GetObject(ctx context.Context, name string) (io.ReadCloser, ObjectInfo, error)
	StatObject(ctx context.Context, name string) (ObjectInfo, error)
	ListObjects(ctx context.Context) ([]ObjectInfo, error)
	DeleteObject(ctx context.Context, name string) error
}

// ValidateObjectName rejects names that could escape the flat namespace.
func ValidateObjectName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("object name is required")
	case name == "." || name == "..":
		return fmt.Errorf("invalid object name %q", name)
	case strings.ContainsAny(name, `/\`), strings.ContainsRune(name, 0):
		return fmt.Errorf("object name %q must not contain path separators", name)
	}
	return nil
}
