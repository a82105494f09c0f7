package driven

import (
	"context"
	"time"
)

// RunLock provides mutual exclusion for reconciliation runs across
// instances. At most one run per entity type may execute at a time; the
// lock is held for the run's duration and extended while long runs are in
// flight.
type RunLock interface {
	// Acquire attempts to take a named lock with the given TTL.
	// Returns true if acquired, false if already held elsewhere.
	Acquire(ctx context.Context, name string, ttl time.Duration) (acquired bool, err error)

	// Release releases a named lock. Best-effort: TTL-based implementations
	// expire the lock anyway. Safe to call when the lock is not held.
	Release(ctx context.Context, name string) error

	// Extend pushes out the TTL of a held lock. Implementations without TTL
	// semantics (e.g. advisory locks) may treat this as a no-op.
	Extend(ctx context.Context, name string, ttl time.Duration) error

	// Ping checks that the lock backend is healthy.
	Ping(ctx context.Context) error
}
