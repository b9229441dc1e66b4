// Package csrf implements the primitives for double-submit CSRF defense:
// a high-entropy per-session token and a constant-time comparison. No
// server-side storage is involved; the cookie round-trip is the proof.
package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"io"
)

// tokenBytes is the raw entropy per token (256 bits).
const tokenBytes = 32

// NewToken returns a fresh random token, base64url-encoded without padding.
func NewToken() (string, error) {
	raw := make([]byte, tokenBytes)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Equal compares two presented tokens in constant time. Empty tokens never
// match anything, including each other.
func Equal(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	// ConstantTimeCompare is length-dependent; comparing lengths first leaks
	// nothing useful because token length is public and fixed.
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
