package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashToken returns the hex SHA-256 of an opaque token. Refresh tokens are
// stored and looked up by this value only.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
