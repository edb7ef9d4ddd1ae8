package authority

import (
	"context"
	"time"

	"github.com/nooterra/substrate/internal/substraterr"
)

// Manager issues and revokes grants.
type Manager struct {
	store Store
}

func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// Issue computes grantHash over g's canonical content and persists it.
// Callers are expected to have already collected g.Signature /
// g.SignerKeyID from the principal out of band.
func (m *Manager) Issue(ctx context.Context, g Grant) (*Grant, error) {
	if g.GrantID == "" || g.TenantID == "" || g.GranteeAgentID == "" {
		return nil, substraterr.New("VALIDATION_REQUIRED", "grantId, tenantId, granteeAgentId are required")
	}
	hash, err := ComputeGrantHash(g)
	if err != nil {
		return nil, err
	}
	g.GrantHash = hash
	if err := m.store.PutGrant(ctx, g); err != nil {
		return nil, err
	}
	return &g, nil
}

// List returns every grant issued for tenantID.
func (m *Manager) List(ctx context.Context, tenantID string) ([]Grant, error) {
	return m.store.ListGrants(ctx, tenantID)
}

// Get returns a single grant by id.
func (m *Manager) Get(ctx context.Context, tenantID, grantID string) (*Grant, error) {
	g, found, err := m.store.GetGrant(ctx, tenantID, grantID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, substraterr.New("GRANT_NOT_FOUND", "authority grant not found")
	}
	return &g, nil
}

// Revoke marks a grant revoked, enforcing the invariant that
// revocationReasonCode is non-empty whenever revokedAt is set.
func (m *Manager) Revoke(ctx context.Context, tenantID, grantID, reasonCode string, at time.Time) (*Grant, error) {
	if reasonCode == "" {
		return nil, substraterr.New("VALIDATION_REQUIRED", "revocationReasonCode is required")
	}
	g, found, err := m.store.GetGrant(ctx, tenantID, grantID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, substraterr.New("GRANT_NOT_FOUND", "authority grant not found")
	}
	if !g.Revocation.Revocable {
		return nil, substraterr.New("VALIDATION_INVALID", "grant is not revocable")
	}
	g.Revocation.RevokedAt = &at
	g.Revocation.RevocationReasonCode = reasonCode
	if err := m.store.PutGrant(ctx, g); err != nil {
		return nil, err
	}
	return &g, nil
}
