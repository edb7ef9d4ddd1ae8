package eventchain

import (
	"context"
	"crypto/ed25519"
	"time"

	"github.com/nooterra/substrate/internal/cryptoutil"
)

// KeyDirectory maps a keyId to its Ed25519 public key. It holds key
// material only; lifecycle status is never taken from here, always from
// GovernanceKeyRegistry.StatusAt.
type KeyDirectory interface {
	Lookup(keyID string) (ed25519.PublicKey, bool)
}

// VerifySigned checks that sigHex over payloadHashHex, bound to purpose and
// context, was produced by signerKeyID, and that signerKeyID's governance
// status was "active" at signedAt. It returns ok=false with a reason code
// on any failure; it never panics and never trusts an out-of-band revoked-at
// field.
func VerifySigned(ctx context.Context, registry *GovernanceKeyRegistry, dir KeyDirectory,
	payloadHashHex, sigHex, signerKeyID, purpose string, context_ any, signedAt time.Time) (ok bool, reason string, err error) {

	status, err := registry.StatusAt(ctx, signerKeyID, signedAt)
	if err != nil {
		return false, "", err
	}
	if status != KeyActive {
		return false, "KEY_REVOKED", nil
	}
	pub, found := dir.Lookup(signerKeyID)
	if !found {
		return false, "KEY_NOT_FOUND", nil
	}
	if !cryptoutil.Verify(payloadHashHex, sigHex, pub, purpose, context_) {
		return false, "SIGNATURE_INVALID", nil
	}
	return true, "", nil
}
