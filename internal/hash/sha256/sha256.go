// Package sha256 names archived pages after their SHA-256 digest.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher implements crawler.Hasher using SHA-256.
type Hasher struct {
	// Length truncates the hex digest when positive.
	Length int
}

// New returns a hasher producing the full 64 character digest.
func New() *Hasher {
	return &Hasher{}
}

// NewShort returns a hasher producing the first n hex characters, enough to
// tell page revisions apart in an object name.
func NewShort(n int) *Hasher {
	return &Hasher{Length: n}
}

// Hash returns the hex digest of data.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	if h.Length > 0 && h.Length < len(digest) {
		digest = digest[:h.Length]
	}
	return digest, nil
}
