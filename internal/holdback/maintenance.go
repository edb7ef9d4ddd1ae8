package holdback

import (
	"context"

	"github.com/nooterra/substrate/internal/lock"
	"github.com/nooterra/substrate/internal/substraterr"
)

// MaintenanceLockName is the advisory-lock key the holdback sweep
// contends on; one sweep runs at a time across the whole deployment.
const MaintenanceLockName = "maintenance:tool-call-holdback"

// MaintenanceLockTTLMillis bounds how long a sweep may hold the lock
// before another worker is allowed to take over from a crashed holder.
const MaintenanceLockTTLMillis = 30_000

// RunMaintenance acquires the process-wide advisory lock and, on success,
// runs one pass of AutoReleaseExpired for tenantID. A concurrent caller
// that cannot acquire the lock fails with MAINTENANCE_ALREADY_RUNNING
// rather than queuing.
func (e *Engine) RunMaintenance(ctx context.Context, locks lock.AdvisoryLock, tenantID string) (released []string, blocked []string, err error) {
	token, acquired, err := locks.TryAcquire(ctx, MaintenanceLockName, MaintenanceLockTTLMillis)
	if err != nil {
		return nil, nil, err
	}
	if !acquired {
		return nil, nil, substraterr.New("MAINTENANCE_ALREADY_RUNNING", "tool-call holdback maintenance is already running")
	}
	defer func() { _ = locks.Release(ctx, MaintenanceLockName, token) }()

	return e.AutoReleaseExpired(ctx, tenantID, e.clock.Now())
}
