package cryptoutil

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// SessionKeyLen is the derived symmetric key size.
const SessionKeyLen = 32

// GenerateNonce returns 32 cryptographically random bytes, hex-encoded,
// used to bootstrap the inter-agent handshake that precedes an
// AuthorityGrant delegation.
func GenerateNonce() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("cryptoutil: generate nonce: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// DeriveSessionKey derives a 32-byte symmetric session key from a shared
// secret (e.g. an X25519/ECDH output the two agents computed out of band),
// a salt, and an info string binding the derivation to its purpose.
// HKDF-SHA256 extract-then-expand makes it safe to derive multiple
// independent keys from the same shared secret by varying info.
func DeriveSessionKey(sharedSecret, salt, info []byte) ([]byte, error) {
	if len(sharedSecret) == 0 {
		return nil, fmt.Errorf("cryptoutil: shared secret must not be empty")
	}
	reader := hkdf.New(sha256.New, sharedSecret, salt, info)
	key := make([]byte, SessionKeyLen)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("cryptoutil: derive session key: %w", err)
	}
	return key, nil
}

// HandshakeInfo names the delegation a derived session key binds to, so a
// key derived for one grantee/grant pair can never be replayed against
// another's authority-grant bootstrap.
func HandshakeInfo(granteeAgentID, grantID string) []byte {
	return []byte("nooterra-authority-grant-handshake:" + granteeAgentID + ":" + grantID)
}
