package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashUserKey returns a stable, non-reversible identifier for a user ID, safe for logs
// and notification payloads.
func HashUserKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
