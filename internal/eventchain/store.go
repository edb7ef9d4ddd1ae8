package eventchain

import "context"

// Store persists events for a stream. Implementations live in
// internal/store/memstore and internal/store/pgstore; both present
// identical append/list semantics.
type Store interface {
	Append(ctx context.Context, tenantID, streamID string, ev Event) error
	Last(ctx context.Context, tenantID, streamID string) (*Event, bool, error)
	List(ctx context.Context, tenantID, streamID string) ([]Event, error)
}
