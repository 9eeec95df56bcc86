// Package sha256 provides SHA-256 checksums for uploaded audio files.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
)

// Hasher computes hex digests.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// TeeReader wraps r so every byte read is also hashed. Call Sum on the
// returned Digest once r has been fully consumed.
func (h *Hasher) TeeReader(r io.Reader) (io.Reader, *Digest) {
	d := &Digest{h: sha256.New()}
	return io.TeeReader(r, d), d
}

// Digest accumulates bytes written through a TeeReader.
type Digest struct {
	h hash.Hash
	n int64
}

// Write implements io.Writer.
func (d *Digest) Write(p []byte) (int, error) {
	n, err := d.h.Write(p)
	d.n += int64(n)
	if err != nil {
		return n, fmt.Errorf("hash write: %w", err)
	}
	return n, nil
}

// Sum returns the hex digest of everything written so far.
func (d *Digest) Sum() string {
	return hex.EncodeToString(d.h.Sum(nil))
}

// Size reports the number of bytes hashed.
func (d *Digest) Size() int64 {
	return d.n
}
