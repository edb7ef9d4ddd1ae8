package canon

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash returns lowercase_hex(SHA-256(b)), the H() primitive every hash field
// in the data model is built from.
func Hash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HashJSON canonicalizes v and hashes the resulting bytes.
func HashJSON(v any) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return Hash(b), nil
}
