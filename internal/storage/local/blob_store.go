// Package local implements a local filesystem blob store.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/JakeFAU/resona/internal/storage"
)

// Config captures the parameters for the local filesystem blob store.
type Config struct {
	// BaseDir is the root directory where uploads are stored.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// BlobStore writes objects as files directly under BaseDir. Content types are
// not persisted; callers derive them from the name.
type BlobStore struct {
	baseDir string
}

// New creates a new local filesystem-backed blob store.
func New(cfg Config) (*BlobStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	// Check for write permissions.
	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &BlobStore{baseDir: filepath.Clean(cfg.BaseDir)}, nil
}

// resolve maps a name to a path and verifies it stays within baseDir.
func (s *BlobStore) resolve(name string) (string, error) {
	if err := storage.ValidateObjectName(name); err != nil {
		return "", err
	}
	fullPath := filepath.Clean(filepath.Join(s.baseDir, name))
	if !strings.HasPrefix(fullPath, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return fullPath, nil
}

// PutObject streams r into a temp file and renames it into place.
func (s *BlobStore) PutObject(_ context.Context, name, _ string, r io.Reader) (storage.ObjectInfo, error) {
	fullPath, err := s.resolve(name)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	tmp, err := os.CreateTemp(s.baseDir, ".upload-*")
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return storage.ObjectInfo{}, fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return storage.ObjectInfo{}, fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		_ = os.Remove(tmpName)
		return storage.ObjectInfo{}, fmt.Errorf("failed to move file into place: %w", err)
	}
	return s.stat(name, fullPath)
}

// GetObject opens the named file.
func (s *BlobStore) GetObject(_ context.Context, name string) (io.ReadCloser, storage.ObjectInfo, error) {
	fullPath, err := s.resolve(name)
	if err != nil {
		return nil, storage.ObjectInfo{}, err
	}
	info, err := s.stat(name, fullPath)
	if err != nil {
		return nil, storage.ObjectInfo{}, err
	}
	// #nosec G304 -- fullPath is confined to baseDir by resolve.
	f, err := os.Open(fullPath)
	if err != nil {
		return nil, storage.ObjectInfo{}, mapNotExist(err)
	}
	return f, info, nil
}

// StatObject returns file metadata.
func (s *BlobStore) StatObject(_ context.Context, name string) (storage.ObjectInfo, error) {
	fullPath, err := s.resolve(name)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	return s.stat(name, fullPath)
}

// ListObjects returns regular files in baseDir, skipping dotfiles.
func (s *BlobStore) ListObjects(_ context.Context) ([]storage.ObjectInfo, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read base directory: %w", err)
	}
	out := make([]storage.ObjectInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := s.stat(entry.Name(), filepath.Join(s.baseDir, entry.Name()))
		if err != nil {
			if errors.Is(err, storage.ErrObjectNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// DeleteObject removes the named file.
func (s *BlobStore) DeleteObject(_ context.Context, name string) error {
	fullPath, err := s.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil {
		return mapNotExist(err)
	}
	return nil
}

func (s *BlobStore) stat(name, fullPath string) (storage.ObjectInfo, error) {
	fi, err := os.Stat(fullPath)
	if err != nil {
		return storage.ObjectInfo{}, mapNotExist(err)
	}
	if fi.IsDir() {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{
		Name:    name,
		Size:    fi.Size(),
		ModTime: fi.ModTime().UTC(),
		URI:     "file://" + fullPath,
	}, nil
}

func mapNotExist(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return storage.ErrObjectNotFound
	}
	return err
}
