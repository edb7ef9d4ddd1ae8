package agent

import (
	"context"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
)

// KeyDirectory resolves a keyId to its Ed25519 public key by scanning every
// registered agent's key set, satisfying eventchain.KeyDirectory. It never
// answers lifecycle/revocation questions, only key material lookup; the
// governance stream remains the sole source of status.
type KeyDirectory struct {
	store Store
	// tenantID scopes the lookup: keys are only ever checked against the
	// agents of the one tenant given to NewKeyDirectory.
	tenantID string
}

func NewKeyDirectory(store Store, tenantID string) *KeyDirectory {
	return &KeyDirectory{store: store, tenantID: tenantID}
}

func (d *KeyDirectory) Lookup(keyID string) (ed25519.PublicKey, bool) {
	agents, err := d.store.ListAgents(context.Background(), d.tenantID)
	if err != nil {
		return nil, false
	}
	for _, a := range agents {
		for _, pk := range a.PublicKeys {
			if pk.KeyID != keyID {
				continue
			}
			block, _ := pem.Decode([]byte(pk.PEM))
			if block == nil {
				continue
			}
			pub, err := x509.ParsePKIXPublicKey(block.Bytes)
			if err != nil {
				continue
			}
			if ed, ok := pub.(ed25519.PublicKey); ok {
				return ed, true
			}
		}
	}
	return nil, false
}
