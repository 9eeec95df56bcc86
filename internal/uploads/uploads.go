// Package uploads stores audio files submitted before notebook creation. Files
// are kept under "<uuid>-<original name>" in a storage.BlobStore so repeated
// uploads of the same recording never collide.
package uploads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/resona/internal/clock"
	"github.com/JakeFAU/resona/internal/drive"
	hashsha "github.com/JakeFAU/resona/internal/hash/sha256"
	"github.com/JakeFAU/resona/internal/storage"
)

// Limits mirror the multipart limits of the upload endpoint.
const (
	DefaultMaxFileBytes = 100 << 20
	DefaultMaxFiles     = 50
)

var (
	// ErrNotAudio rejects files whose content type is not an accepted audio type.
	ErrNotAudio = errors.New("only audio files are allowed")
	// ErrTooLarge rejects files over the configured size limit.
	ErrTooLarge = errors.New("file exceeds the upload size limit")
	// ErrNotFound is returned for unknown stored names.
	ErrNotFound = storage.ErrObjectNotFound
)

var allowedMimeTypes = map[string]struct{}{
	"audio/mpeg":  {},
	"audio/mp3":   {},
	"audio/wav":   {},
	"audio/wave":  {},
	"audio/x-wav": {},
	"audio/mp4":   {},
	"audio/m4a":   {},
	"audio/ogg":   {},
	"audio/webm":  {},
	"audio/flac":  {},
	"audio/aac":   {},
}

// IsAllowedMimeType reports whether mt (parameters ignored) is accepted.
func IsAllowedMimeType(mt string) bool {
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	_, ok := allowedMimeTypes[strings.ToLower(strings.TrimSpace(mt))]
	return ok
}

// OriginalName strips the "<uuid>-" prefix from a stored name. Names that do
// not start with a UUID lose everything up to the first dash; names without a
// dash are returned unchanged.
func OriginalName(stored string) string {
	if len(stored) > 37 && stored[36] == '-' {
		if _, err := uuid.Parse(stored[:36]); err == nil {
			return stored[37:]
		}
	}
	if i := strings.IndexByte(stored, '-'); i >= 0 && i+1 < len(stored) {
		return stored[i+1:]
	}
	return stored
}

// Upload describes one stored audio file.
type Upload struct {
	ID             string    `json:"id"`
	Filename       string    `json:"filename"`
	StoredFilename string    `json:"storedFilename"`
	MimeType       string    `json:"mimetype"`
	Size           int64     `json:"size"`
	SHA256         string    `json:"sha256"`
	URI            string    `json:"uri"`
	UploadedAt     time.Time `json:"uploadedAt"`
}

// FileInfo is a listing entry.
type FileInfo struct {
	Filename     string    `json:"filename"`
	OriginalName string    `json:"originalName"`
	Size         int64     `json:"size"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

// IDs generates upload IDs and stored names.
type IDs interface {
	NewID() (string, error)
	NewStoredName(original string) (string, error)
}

// Config bounds uploads.
type Config struct {
	MaxFileBytes int64
	MaxFiles     int
}

// Service validates, names, hashes, and stores uploads.
type Service struct {
	blobs  storage.BlobStore
	ids    IDs
	clock  clock.Clock
	hasher *hashsha.Hasher
	cfg    Config
	logger *zap.Logger
}

// NewService wires a Service. Zero limits fall back to the defaults.
func NewService(blobs storage.BlobStore, ids IDs, clk clock.Clock, cfg Config, logger *zap.Logger) *Service {
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = DefaultMaxFileBytes
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = DefaultMaxFiles
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		blobs:  blobs,
		ids:    ids,
		clock:  clk,
		hasher: hashsha.New(),
		cfg:    cfg,
		logger: logger,
	}
}

// Limits returns the effective limits.
func (s *Service) Limits() Config { return s.cfg }

// Save stores one file. filename must be a bare base name.
func (s *Service) Save(ctx context.Context, filename, mimeType string, r io.Reader) (Upload, error) {
	if !IsAllowedMimeType(mimeType) {
		return Upload{}, fmt.Errorf("%w: %s (%s)", ErrNotAudio, filename, mimeType)
	}
	stored, err := s.ids.NewStoredName(filename)
	if err != nil {
		return Upload{}, err
	}
	if err := storage.ValidateObjectName(stored); err != nil {
		return Upload{}, fmt.Errorf("invalid file name %q: %w", filename, err)
	}
	id, err := s.ids.NewID()
	if err != nil {
		return Upload{}, err
	}

	limited := &limitReader{r: r, remaining: s.cfg.MaxFileBytes}
	tee, digest := s.hasher.TeeReader(limited)
	info, err := s.blobs.PutObject(ctx, stored, mimeType, tee)
	if err != nil {
		if errors.Is(err, ErrTooLarge) {
			if delErr := s.blobs.DeleteObject(ctx, stored); delErr != nil && !errors.Is(delErr, storage.ErrObjectNotFound) {
				s.logger.Warn("failed to remove oversized upload", zap.String("stored", stored), zap.Error(delErr))
			}
		}
		return Upload{}, fmt.Errorf("store %s: %w", filename, err)
	}

	up := Upload{
		ID:             id,
		Filename:       filename,
		StoredFilename: stored,
		MimeType:       mimeType,
		Size:           digest.Size(),
		SHA256:         digest.Sum(),
		URI:            info.URI,
		UploadedAt:     s.clock.Now().UTC(),
	}
	s.logger.Info("audio file stored",
		zap.String("stored", stored),
		zap.Int64("bytes", up.Size),
		zap.String("sha256", up.SHA256))
	return up, nil
}

// Open returns a reader for a stored file.
func (s *Service) Open(ctx context.Context, stored string) (io.ReadCloser, storage.ObjectInfo, error) {
	if err := storage.ValidateObjectName(stored); err != nil {
		return nil, storage.ObjectInfo{}, ErrNotFound
	}
	return s.blobs.GetObject(ctx, stored)
}

// Stat returns metadata for a stored file.
func (s *Service) Stat(ctx context.Context, stored string) (storage.ObjectInfo, error) {
	if err := storage.ValidateObjectName(stored); err != nil {
		return storage.ObjectInfo{}, ErrNotFound
	}
	return s.blobs.StatObject(ctx, stored)
}

// List returns every stored file.
func (s *Service) List(ctx context.Context) ([]FileInfo, error) {
	objs, err := s.blobs.ListObjects(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]FileInfo, 0, len(objs))
	for _, obj := range objs {
		out = append(out, FileInfo{
			Filename:     obj.Name,
			OriginalName: OriginalName(obj.Name),
			Size:         obj.Size,
			UploadedAt:   obj.ModTime,
		})
	}
	return out, nil
}

// ListAudio returns stored files whose original name has an audio extension.
func (s *Service) ListAudio(ctx context.Context) ([]FileInfo, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, f := range all {
		if drive.IsAudioName(f.OriginalName) {
			out = append(out, f)
		}
	}
	return out, nil
}

// Delete removes a stored file.
func (s *Service) Delete(ctx context.Context, stored string) error {
	if err := storage.ValidateObjectName(stored); err != nil {
		return ErrNotFound
	}
	return s.blobs.DeleteObject(ctx, stored)
}

// PurgeOlderThan deletes files last modified before now-age and reports how
// many were removed.
func (s *Service) PurgeOlderThan(ctx context.Context, age time.Duration) (int, error) {
	if age <= 0 {
		return 0, nil
	}
	cutoff := s.clock.Now().Add(-age)
	objs, err := s.blobs.ListObjects(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	var errs []error
	for _, obj := range objs {
		if !obj.ModTime.Before(cutoff) {
			continue
		}
		if err := s.blobs.DeleteObject(ctx, obj.Name); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			errs = append(errs, fmt.Errorf("delete %s: %w", obj.Name, err))
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

type limitReader struct {
	r         io.Reader
	remaining int64
}

func (l *limitReader) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		return 0, ErrTooLarge
	}
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n, ErrTooLarge
	}
	return n, err
}
