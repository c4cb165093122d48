// Package sha256 provides SHA-256 content hashing utilities.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
)

// Hasher implements harvest.Hasher using SHA-256.
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

// Digest accumulates streamed bytes and yields the hex digest at the end.
// It implements io.Writer so it can sit behind an io.TeeReader while a
// download streams to disk.
type Digest struct {
	h hash.Hash
}

// NewDigest returns an empty streaming digest.
func NewDigest() *Digest {
	return &Digest{h: sha256.New()}
}

// Write adds p to the running digest. It never fails.
func (d *Digest) Write(p []byte) (int, error) {
	return d.h.Write(p)
}

// Sum returns the hex digest of everything written so far.
func (d *Digest) Sum() string {
	return hex.EncodeToString(d.h.Sum(nil))
}
