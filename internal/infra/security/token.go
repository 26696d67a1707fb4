package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// GenerateRefreshToken returns a cryptographically random opaque token:
// base64 URL-safe over the given number of random bytes. The value is
// unrelated in format to the access token and is never parsed, only
// compared by value through its hash.
func GenerateRefreshToken(byteLength int) (string, error) {
	if byteLength <= 0 {
		return "", fmt.Errorf("length must be positive")
	}

	buf := make([]byte, byteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken calculates the SHA-256 hash of a token value. Only hashes are
// persisted and indexed; the raw value exists solely in the client's hands.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
