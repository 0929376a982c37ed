package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a URL-safe random hex string, used for session tokens
// and request-id correlation. Entity identifiers use UUIDs instead.
func NewID() string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
