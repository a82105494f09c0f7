package driven

import (
	"context"

	"github.com/keystone-labs/propsync-core/internal/core/domain"
)

// LedgerStore is the durable run history (sync_runs / sync_errors).
// All writes are append-style: a run that crashes mid-phase still has the
// counters of its completed phases visible because the runner records each
// phase as it finishes, not only at the very end.
type LedgerStore interface {
	// BeginRun opens a run in the running state and returns it.
	BeginRun(ctx context.Context, entityType domain.EntityType, trigger domain.Trigger) (*domain.SyncRun, error)

	// RecordPhaseResult accumulates one phase's counters onto the run.
	// Called after each phase completes. Returns domain.ErrRunFinished when
	// the run is already closed.
	RecordPhaseResult(ctx context.Context, runID string, phase domain.Phase, stats domain.SyncStats) error

	// RecordError appends one per-record failure or warning to the run.
	RecordError(ctx context.Context, runID string, syncErr domain.SyncError) error

	// FinishRun closes the run with its terminal status, final counters, a
	// health snapshot and an optional run-level error message. A finished
	// run is never mutated again.
	FinishRun(ctx context.Context, runID string, status domain.RunStatus, stats domain.SyncStats, health domain.HealthStatus, errMsg string) error

	// GetRun fetches one run with its error list.
	GetRun(ctx context.Context, runID string) (*domain.SyncRun, error)

	// ListRuns returns up to limit runs for the entity type, most recent
	// first, each with its error list.
	ListRuns(ctx context.Context, entityType domain.EntityType, limit int) ([]*domain.SyncRun, error)
}
