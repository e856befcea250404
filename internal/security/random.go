package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// TokenValueBytes is the entropy of a game token value (128 bits).
const TokenValueBytes = 16

// GenerateRandomString returns n random bytes encoded as unpadded base64url.
func GenerateRandomString(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("random string: invalid length %d", n)
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("random string: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateTokenValue returns a fresh URL-safe game token secret.
func GenerateTokenValue() (string, error) {
	return GenerateRandomString(TokenValueBytes)
}
