// Package memory holds in-memory implementations of the blob store and the
// notebook repository for development and tests.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/resona/internal/storage"
)

type object struct {
	data        []byte
	contentType string
	modTime     time.Time
}

// BlobStore stores objects in-memory and returns memory:// URIs.
type BlobStore struct {
	mu      sync.RWMutex
	objects map[string]object
	now     func() time.Time
}

// NewBlobStore creates a new in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{
		objects: make(map[string]object),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the modification-time source.
func (s *BlobStore) WithClock(now func() time.Time) *BlobStore {
	s.now = now
	return s
}

// PutObject persists the content and returns its info.
func (s *BlobStore) PutObject(_ context.Context, name, contentType string, r io.Reader) (storage.ObjectInfo, error) {
	if err := storage.ValidateObjectName(name); err != nil {
		return storage.ObjectInfo{}, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("failed to read data from reader: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	obj := object{data: data, contentType: contentType, modTime: s.now()}
	s.objects[name] = obj
	return info(name, obj), nil
}

// GetObject returns a reader over the stored bytes.
func (s *BlobStore) GetObject(_ context.Context, name string) (io.ReadCloser, storage.ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[name]
	if !ok {
		return nil, storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), info(name, obj), nil
}

// StatObject returns metadata for name.
func (s *BlobStore) StatObject(_ context.Context, name string) (storage.ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[name]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return info(name, obj), nil
}

// ListObjects returns every object sorted by name.
func (s *BlobStore) ListObjects(_ context.Context) ([]storage.ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]storage.ObjectInfo, 0, len(s.objects))
	for name, obj := range s.objects {
		out = append(out, info(name, obj))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// DeleteObject removes name.
func (s *BlobStore) DeleteObject(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[name]; !ok {
		return storage.ErrObjectNotFound
	}
	delete(s.objects, name)
	return nil
}

func info(name string, obj object) storage.ObjectInfo {
	return storage.ObjectInfo{
		Name:        name,
		Size:        int64(len(obj.data)),
		ContentType: obj.contentType,
		ModTime:     obj.modTime,
		URI:         "memory://" + name,
	}
}
