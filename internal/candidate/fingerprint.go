package candidate

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashLen is the length of a content hash in hex characters.
const HashLen = sha256.Size * 2

// Fingerprint returns the lowercase hex SHA-256 digest of content.
func Fingerprint(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// FingerprintURL fingerprints the canonical form of raw. It is used when the
// document body could not be fetched, so rediscovering the same link still
// yields the same hash.
func FingerprintURL(raw string) (string, error) {
	canonical, err := CanonicalURL(raw)
	if err != nil {
		return "", err
	}
	return Fingerprint([]byte(canonical)), nil
}

// NormalizeHash lowercases token and reports whether it is a well formed
// content hash: exactly HashLen characters of [0-9a-f].
func NormalizeHash(token string) (string, bool) {
	token = strings.ToLower(strings.TrimSpace(token))
	if len(token) != HashLen {
		return "", false
	}
	for i := 0; i < len(token); i++ {
		c := token[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", false
		}
	}
	return token, true
}

// ValidHash reports whether token is a well formed lowercase content hash.
func ValidHash(token string) bool {
	norm, ok := NormalizeHash(token)
	return ok && norm == token
}
