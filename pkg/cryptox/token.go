package cryptox

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// Token size constants (bytes of entropy before encoding).
const (
	TokenSize128 = 16
	TokenSize256 = 32
)

// GenerateToken creates a cryptographically random opaque token, returned
// base64url-encoded without padding.
func GenerateToken(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("cryptox: token size must be positive, got %d", size)
	}
	buf, err := randomBytes(size)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// FingerprintToken returns the deterministic SHA-256 fingerprint of a token,
// base64url-encoded. Stored in place of the token itself so lookups work
// without keeping the original value at rest.
func FingerprintToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
