package driving

import (
	"context"

	"github.com/keystone-labs/propsync-core/internal/core/domain"
)

// Reconciler is the engine's driving surface, consumed by the trigger layer
// (HTTP routes, scheduler, startup hook). RunFullSync is synchronous from
// the caller's perspective; the caller decides whether to await it.
type Reconciler interface {
	// RunFullSync executes Addition, Update and Deletion in order over a
	// fresh source snapshot. Returns domain.ErrRunInProgress when a run for
	// the same entity type is already executing.
	RunFullSync(ctx context.Context, entityType domain.EntityType, trigger domain.Trigger) (*domain.SyncRun, error)

	// RunAdditionsOnly re-runs just the addition phase. Used by operational
	// tooling to recover from a partial failure without redoing completed
	// work.
	RunAdditionsOnly(ctx context.Context, entityType domain.EntityType) (*domain.SyncRun, error)

	// RunUpdatesOnly re-runs just the update phase. A non-empty keys slice
	// restricts the phase to those business keys.
	RunUpdatesOnly(ctx context.Context, entityType domain.EntityType, keys []string) (*domain.SyncRun, error)

	// RunDeletionsOnly re-runs just the deletion phase.
	RunDeletionsOnly(ctx context.Context, entityType domain.EntityType) (*domain.SyncRun, error)
}

// HealthReporter exposes the derived health signal and run history for
// polling and alerting.
type HealthReporter interface {
	// CurrentHealth derives the health state from recent ledger entries.
	CurrentHealth(ctx context.Context, entityType domain.EntityType) (*domain.HealthState, error)

	// RunHistory returns up to limit runs, most recent first.
	RunHistory(ctx context.Context, entityType domain.EntityType, limit int) ([]*domain.SyncRun, error)
}
