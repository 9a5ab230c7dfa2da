package internal

import (
	"crypto/rand"
	"encoding/base64"
)

// opaqueTokenSize is the entropy of reset and verification tokens in bytes.
const opaqueTokenSize = 32

// NewOpaqueToken returns a URL-safe random token. Only its SHA-256 hash is
// ever persisted.
func NewOpaqueToken() (string, error) {
	var raw [opaqueTokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}
