package security

import (
	"crypto/subtle"
	"strings"
)

// ServerKey authorizes server-to-server calls against a shared secret loaded once at start-up.
type ServerKey struct {
	secret []byte
}

// NewServerKey constructs a ServerKey; an empty secret authorizes nothing.
func NewServerKey(secret string) *ServerKey {
	return &ServerKey{secret: []byte(strings.TrimSpace(secret))}
}

// Configured reports whether a non-empty secret is set.
func (k *ServerKey) Configured() bool {
	return k != nil && len(k.secret) > 0
}

// Authorize compares provided against the secret in constant time.
func (k *ServerKey) Authorize(provided string) bool {
	if !k.Configured() || provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), k.secret) == 1
}
