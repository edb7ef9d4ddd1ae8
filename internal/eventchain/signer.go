package eventchain

import (
	"crypto/ed25519"
	"fmt"

	"github.com/nooterra/substrate/internal/cryptoutil"
)

// ServerSigner implements Signer over a single active Ed25519 key pair. It
// is the concrete collaborator the Chain signs appends with; production
// deployments rotate the active key by constructing a new ServerSigner and
// recording the rotation on the governance stream via GovernanceKeyRegistry.
type ServerSigner struct {
	priv  ed25519.PrivateKey
	keyID string
}

// NewServerSigner derives keyID from priv's public half and returns a Signer.
func NewServerSigner(priv ed25519.PrivateKey) (*ServerSigner, error) {
	keyID, err := cryptoutil.KeyIDFromPublicKey(priv.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, fmt.Errorf("eventchain: derive signer key id: %w", err)
	}
	return &ServerSigner{priv: priv, keyID: keyID}, nil
}

func (s *ServerSigner) KeyID() string { return s.keyID }

func (s *ServerSigner) PublicKey() ed25519.PublicKey { return s.priv.Public().(ed25519.PublicKey) }

func (s *ServerSigner) Sign(payloadHashHex, purpose string, context any) (string, string, error) {
	sig, err := cryptoutil.Sign(payloadHashHex, s.priv, purpose, context)
	if err != nil {
		return "", "", err
	}
	return sig, s.keyID, nil
}
