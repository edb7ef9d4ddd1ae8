package agent

import (
	"context"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"time"

	"github.com/nooterra/substrate/internal/cryptoutil"
	"github.com/nooterra/substrate/internal/substraterr"
)

// Manager mediates agent registration, key rotation, and lifecycle
// transitions. It never signs on an agent's behalf; it only validates and
// stores the public half of keys agents present.
type Manager struct {
	store Store
}

func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// RegisterParams are the fields a caller supplies to register an agent.
type RegisterParams struct {
	AgentID      string
	TenantID     string
	DisplayName  string
	OwnerRef     string
	Capabilities []string
	PublicKeyPEM string
}

// Register creates a new active agent, deriving its first key's keyId from
// the SPKI encoding in publicKeyPEM.
func (m *Manager) Register(ctx context.Context, p RegisterParams, now time.Time) (*Agent, error) {
	if p.AgentID == "" || p.TenantID == "" {
		return nil, substraterr.New("VALIDATION_REQUIRED", "agentId and tenantId are required")
	}
	a := Agent{
		AgentID:         p.AgentID,
		TenantID:        p.TenantID,
		DisplayName:     p.DisplayName,
		OwnerRef:        p.OwnerRef,
		Capabilities:    p.Capabilities,
		LifecycleStatus: Active,
		CreatedAt:       now,
	}
	if p.PublicKeyPEM != "" {
		pk, err := newPublicKey(p.PublicKeyPEM, now)
		if err != nil {
			return nil, err
		}
		a.PublicKeys = append(a.PublicKeys, pk)
	}
	if err := m.store.CreateAgent(ctx, a); err != nil {
		return nil, err
	}
	return &a, nil
}

// AddPublicKey registers an additional key for an existing agent, enforcing
// "at most one key per (agentId, keyId)".
func (m *Manager) AddPublicKey(ctx context.Context, tenantID, agentID, pemStr string, now time.Time) (*Agent, error) {
	a, found, err := m.store.GetAgent(ctx, tenantID, agentID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, substraterr.New("AGENT_NOT_FOUND", "agent not found")
	}
	pk, err := newPublicKey(pemStr, now)
	if err != nil {
		return nil, err
	}
	for _, existing := range a.PublicKeys {
		if existing.KeyID == pk.KeyID {
			return &a, nil
		}
	}
	a.PublicKeys = append(a.PublicKeys, pk)
	if err := m.store.PutAgent(ctx, a); err != nil {
		return nil, err
	}
	return &a, nil
}

// SetLifecycle transitions an agent to status, the gate's fail-closed
// lifecycle gating consults immediately afterward.
func (m *Manager) SetLifecycle(ctx context.Context, tenantID, agentID string, status LifecycleStatus) (*Agent, error) {
	a, found, err := m.store.GetAgent(ctx, tenantID, agentID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, substraterr.New("AGENT_NOT_FOUND", "agent not found")
	}
	a.LifecycleStatus = status
	if err := m.store.PutAgent(ctx, a); err != nil {
		return nil, err
	}
	return &a, nil
}

func newPublicKey(pemStr string, now time.Time) (PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return PublicKey{}, substraterr.New("VALIDATION_INVALID", "publicKeyPem is not valid PEM")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return PublicKey{}, substraterr.Withf("VALIDATION_INVALID", "parse SPKI public key: %v", err)
	}
	ed, ok := pub.(ed25519.PublicKey)
	if !ok {
		return PublicKey{}, substraterr.New("VALIDATION_INVALID", "only Ed25519 keys are supported")
	}
	keyID, err := cryptoutil.KeyIDFromPublicKey(ed)
	if err != nil {
		return PublicKey{}, err
	}
	return PublicKey{KeyID: keyID, PEM: pemStr, CreatedAt: now}, nil
}

// CheckLifecycle fails closed: suspended agents are rejected with
// X402_AGENT_SUSPENDED, throttled ones with X402_AGENT_THROTTLED.
func CheckLifecycle(status string) error {
	switch LifecycleStatus(status) {
	case Suspended:
		return substraterr.New("X402_AGENT_SUSPENDED", "agent is suspended")
	case Throttled:
		return substraterr.New("X402_AGENT_THROTTLED", "agent is throttled")
	default:
		return nil
	}
}
