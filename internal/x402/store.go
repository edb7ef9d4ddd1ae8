package x402

import "context"

// Store persists gates and the holds verify() produces. It also answers the
// ListGatesForGrant query authority.RunningTotalSource needs, and the
// ListHolds query internal/holdback's maintenance sweep needs; both kept as
// narrow interfaces so those packages never reach into x402 internals.
type Store interface {
	CreateGate(ctx context.Context, g Gate) error
	GetGate(ctx context.Context, tenantID, gateID string) (Gate, bool, error)
	GetGateByAgreementHash(ctx context.Context, tenantID, agreementHash string) (Gate, bool, error)
	PutGate(ctx context.Context, g Gate) error
	ListGatesForGrant(ctx context.Context, tenantID, grantID string) ([]Gate, error)
	ListGatesForTenant(ctx context.Context, tenantID string) ([]Gate, error)

	CreateHold(ctx context.Context, h Hold) error
	GetHold(ctx context.Context, tenantID, holdHash string) (Hold, bool, error)
	PutHold(ctx context.Context, h Hold) error
	ListHolds(ctx context.Context, tenantID string) ([]Hold, error)
}

// AgentLifecycleSource reports an agent's current lifecycle status.
type AgentLifecycleSource interface {
	LifecycleStatus(ctx context.Context, tenantID, agentID string) (string, error)
}

// BindingSource answers internal/holdback's settlement binding-source
// existence check without holdback importing x402's store internals
// directly.
type BindingSource interface {
	RequestSHA256ForAgreement(ctx context.Context, tenantID, agreementHash string) (string, bool, error)
}
