package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// DocIDLength is the number of hex characters in a doc id.
const DocIDLength = 16

// AddressDoc returns the content address of normalised bytes: the first
// DocIDLength hex characters of their SHA-256 digest.
func AddressDoc(b []byte) string {
	return HashContent(b)[:DocIDLength]
}

// HashContent returns the full hex SHA-256 digest of b.
func HashContent(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// IsDocID reports whether s has the shape of a doc id.
func IsDocID(s string) bool {
	if len(s) != DocIDLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
