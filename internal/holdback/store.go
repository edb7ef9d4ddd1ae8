package holdback

import (
	"context"

	"github.com/nooterra/substrate/internal/x402"
)

// HoldStore is the narrow slice of x402.Store the arbitration engine
// touches; lookup indirection rather than importing x402's full surface.
type HoldStore interface {
	GetHold(ctx context.Context, tenantID, holdHash string) (x402.Hold, bool, error)
	PutHold(ctx context.Context, h x402.Hold) error
	ListHolds(ctx context.Context, tenantID string) ([]x402.Hold, error)
}

// GateStore is the narrow slice of x402.Store used to flip a gate's state
// alongside its hold (held -> disputed -> closed).
type GateStore interface {
	GetGateByAgreementHash(ctx context.Context, tenantID, agreementHash string) (x402.Gate, bool, error)
	PutGate(ctx context.Context, g x402.Gate) error
}

// CaseStore persists arbitration cases.
type CaseStore interface {
	GetCaseByAgreement(ctx context.Context, tenantID, agreementHash string) (Case, bool, error)
	PutCase(ctx context.Context, c Case) error
	ListCases(ctx context.Context, tenantID string) ([]Case, error)
}

// AdjustmentStore persists settlement adjustments, keyed by their
// deterministic id so a retry is a no-op.
type AdjustmentStore interface {
	GetAdjustment(ctx context.Context, tenantID, adjustmentID string) (Adjustment, bool, error)
	PutAdjustment(ctx context.Context, a Adjustment) error
	ListAdjustmentsForTenant(ctx context.Context, tenantID string) ([]Adjustment, error)
}

// ArbiterLifecycleSource reports an arbiter agent's current standing.
type ArbiterLifecycleSource interface {
	LifecycleStatus(ctx context.Context, tenantID, agentID string) (string, error)
}

