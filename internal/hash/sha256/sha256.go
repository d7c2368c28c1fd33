// Package sha256 fingerprints run artifacts so consumers of a published run
// notice can check they read the same report that was archived.
package sha256

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// Hasher produces hex SHA-256 digests.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() Hasher {
	return Hasher{}
}

// Hash returns the lowercase hex digest of data.
func (Hasher) Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Verify reports whether data hashes to digest. Case is ignored.
func (h Hasher) Verify(data []byte, digest string) bool {
	want := strings.ToLower(strings.TrimSpace(digest))
	return subtle.ConstantTimeCompare([]byte(h.Hash(data)), []byte(want)) == 1
}
