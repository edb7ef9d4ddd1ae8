// Package lock provides the advisory locks background maintenance
// contends on: contenders fail with MAINTENANCE_ALREADY_RUNNING rather
// than queuing. Two implementations share one interface: an in-process
// lock for the in-memory store, and a Redis-backed one (SET NX PX + Lua
// compare-and-delete release) for the Postgres deployment.
package lock

import "context"

// AdvisoryLock is a process-wide named mutex with a caller-chosen TTL.
type AdvisoryLock interface {
	// TryAcquire attempts to take the lock keyed by name, holding it for ttl.
	// It returns a release token and true on success, or false if another
	// holder currently owns it.
	TryAcquire(ctx context.Context, name string, ttlMillis int64) (token string, acquired bool, err error)
	// Release gives up the lock if token still matches the current holder.
	Release(ctx context.Context, name, token string) error
}
