// Package cryptoutil wraps stdlib crypto/ed25519 the way the tolchain
// sibling pack's crypto/keys.go and crypto/signature.go do, binding a
// purpose tag and context object into every signed message so a signature
// produced for one protocol step can never be replayed as another.
package cryptoutil

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/x509"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/nooterra/substrate/internal/canon"
)

// GenerateKeyPair returns a fresh Ed25519 key pair.
func GenerateKeyPair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(nil)
}

// KeyIDFromPublicKey returns the SHA-256 of the key's SPKI (PKIX) encoding,
// lowercase hex.
func KeyIDFromPublicKey(pub ed25519.PublicKey) (string, error) {
	spki, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("cryptoutil: marshal SPKI: %w", err)
	}
	sum := sha256.Sum256(spki)
	return hex.EncodeToString(sum[:]), nil
}

// signedMessage builds H(purpose || H(canonicalJSON(context)) || payloadHashHex),
// each segment length-prefixed so concatenation can never be ambiguous across
// boundaries.
func signedMessage(payloadHashHex, purpose string, context any) (string, error) {
	ctxHash := ""
	if context != nil {
		h, err := canon.HashJSON(context)
		if err != nil {
			return "", fmt.Errorf("cryptoutil: hash context: %w", err)
		}
		ctxHash = h
	} else {
		ctxHash = canon.Hash(nil)
	}

	h := sha256.New()
	writeSegment(h, []byte(purpose))
	writeSegment(h, []byte(ctxHash))
	writeSegment(h, []byte(payloadHashHex))
	return hex.EncodeToString(h.Sum(nil)), nil
}

func writeSegment(h interface{ Write([]byte) (int, error) }, seg []byte) {
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(seg)))
	h.Write(lenBuf[:])
	h.Write(seg)
}

// Sign signs payloadHashHex bound to purpose/context under priv, returning
// the hex-encoded signature.
func Sign(payloadHashHex string, priv ed25519.PrivateKey, purpose string, context any) (string, error) {
	msg, err := signedMessage(payloadHashHex, purpose, context)
	if err != nil {
		return "", err
	}
	sig := ed25519.Sign(priv, []byte(msg))
	return hex.EncodeToString(sig), nil
}

// Verify reports whether sigHex is a valid signature over payloadHashHex
// bound to purpose/context under pub. It does not consult key-revocation
// state; callers must check that separately against the governance stream.
func Verify(payloadHashHex, sigHex string, pub ed25519.PublicKey, purpose string, context any) bool {
	msg, err := signedMessage(payloadHashHex, purpose, context)
	if err != nil {
		return false
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}
	return ed25519.Verify(pub, []byte(msg), sig)
}
