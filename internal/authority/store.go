package authority

import "context"

// Store persists grants.
type Store interface {
	GetGrant(ctx context.Context, tenantID, grantID string) (Grant, bool, error)
	PutGrant(ctx context.Context, g Grant) error
	ListGrants(ctx context.Context, tenantID string) ([]Grant, error)
}

// RunningTotalSource reports the sum already drawn against a grant (its
// x402 implementation counts executed, released, held, disputed and closed
// gates). internal/authority never imports internal/x402
// directly; cross-references stay opaque IDs resolved through this
// injected accessor.
type RunningTotalSource interface {
	RunningTotalForGrant(ctx context.Context, tenantID, grantID string) (int64, error)
}
