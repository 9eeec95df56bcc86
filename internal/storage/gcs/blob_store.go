// Package gcs provides a BlobStore backed by Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	blob "github.com/JakeFAU/resona/internal/storage"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	// Prefix is prepended to every object name, e.g. "uploads/".
	Prefix string
}

// BlobStore stores uploads in a configured GCS bucket.
type BlobStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed blob store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &BlobStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

func (s *BlobStore) object(name string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(s.prefix + name)
}

// PutObject uploads data to the configured bucket.
func (s *BlobStore) PutObject(ctx context.Context, name, contentType string, r io.Reader) (blob.ObjectInfo, error) {
	if err := blob.ValidateObjectName(name); err != nil {
		return blob.ObjectInfo{}, err
	}
	writer := s.object(name).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := io.Copy(writer, r); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return blob.ObjectInfo{}, fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return blob.ObjectInfo{}, fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return blob.ObjectInfo{}, fmt.Errorf("close writer: %w", err)
	}
	return s.info(name, writer.Attrs()), nil
}

// GetObject opens a reader on the object.
func (s *BlobStore) GetObject(ctx context.Context, name string) (io.ReadCloser, blob.ObjectInfo, error) {
	attrs, err := s.object(name).Attrs(ctx)
	if err != nil {
		return nil, blob.ObjectInfo{}, mapErr(err)
	}
	reader, err := s.object(name).NewReader(ctx)
	if err != nil {
		return nil, blob.ObjectInfo{}, mapErr(err)
	}
	return reader, s.info(name, attrs), nil
}

// StatObject returns the object's attributes.
func (s *BlobStore) StatObject(ctx context.Context, name string) (blob.ObjectInfo, error) {
	attrs, err := s.object(name).Attrs(ctx)
	if err != nil {
		return blob.ObjectInfo{}, mapErr(err)
	}
	return s.info(name, attrs), nil
}

// ListObjects lists every object under the prefix.
func (s *BlobStore) ListObjects(ctx context.Context) ([]blob.ObjectInfo, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: s.prefix})
	var out []blob.ObjectInfo
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		name := attrs.Name[len(s.prefix):]
		if blob.ValidateObjectName(name) != nil {
			continue
		}
		out = append(out, s.info(name, attrs))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// DeleteObject removes the object.
func (s *BlobStore) DeleteObject(ctx context.Context, name string) error {
	if err := s.object(name).Delete(ctx); err != nil {
		return mapErr(err)
	}
	return nil
}

func (s *BlobStore) info(name string, attrs *storage.ObjectAttrs) blob.ObjectInfo {
	info := blob.ObjectInfo{
		Name: name,
		URI:  fmt.Sprintf("gs://%s/%s%s", s.bucket, s.prefix, name),
	}
	if attrs != nil {
		info.Size = attrs.Size
		info.ContentType = attrs.ContentType
		info.ModTime = attrs.Updated.UTC()
	}
	return info
}

func mapErr(err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return blob.ErrObjectNotFound
	}
	return err
}
