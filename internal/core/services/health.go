package services

import (
	"context"
	"log/slog"

	"github.com/keystone-labs/propsync-core/internal/core/domain"
	"github.com/keystone-labs/propsync-core/internal/core/ports/driven"
	"github.com/keystone-labs/propsync-core/internal/core/ports/driving"
)

// Verify interface compliance
var _ driving.HealthReporter = (*HealthMonitor)(nil)

const (
	defaultHealthWindow    = 5
	failingStreakLength    = 3
	defaultFailureRateCeil = 0.1
)

// HealthMonitor derives the coarse health signal from recent ledger
// entries. It is purely a read-side projection: recomputed on every call,
// never cached, never a source of truth.
type HealthMonitor struct {
	ledger driven.LedgerStore
	logger *slog.Logger

	window          int
	failureRateCeil float64
}

// HealthMonitorConfig holds dependencies for HealthMonitor.
type HealthMonitorConfig struct {
	Ledger driven.LedgerStore
	Logger *slog.Logger

	// Window is how many recent runs the projection inspects (default 5).
	Window int
	// FailureRateCeil is the per-run failure rate above which a run counts
	// toward the failing streak (default 0.1).
	FailureRateCeil float64
}

// NewHealthMonitor creates a new HealthMonitor.
func NewHealthMonitor(cfg HealthMonitorConfig) *HealthMonitor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	window := cfg.Window
	if window <= 0 {
		window = defaultHealthWindow
	}
	ceil := cfg.FailureRateCeil
	if ceil <= 0 {
		ceil = defaultFailureRateCeil
	}
	return &HealthMonitor{
		ledger:          cfg.Ledger,
		logger:          logger,
		window:          window,
		failureRateCeil: ceil,
	}
}

// CurrentHealth computes the health state for an entity type from its most
// recent runs.
func (m *HealthMonitor) CurrentHealth(ctx context.Context, entityType domain.EntityType) (*domain.HealthState, error) {
	runs, err := m.ledger.ListRuns(ctx, entityType, m.window)
	if err != nil {
		return nil, err
	}
	state := EvaluateHealth(entityType, runs, m.failureRateCeil)
	return &state, nil
}

// RunHistory returns up to limit runs, most recent first.
func (m *HealthMonitor) RunHistory(ctx context.Context, entityType domain.EntityType, limit int) ([]*domain.SyncRun, error) {
	return m.ledger.ListRuns(ctx, entityType, limit)
}

// EvaluateHealth derives a health state from runs ordered most recent
// first. Derivation:
//   - failing: the last run failed outright, or each of the last three runs
//     had a failure rate above failureRateCeil;
//   - degraded: the most recent run had failures below the ceiling;
//   - healthy: otherwise (including no history at all).
//
// Runs still in flight are ignored: an open run is not evidence either way
// until it finishes.
func EvaluateHealth(entityType domain.EntityType, runs []*domain.SyncRun, failureRateCeil float64) domain.HealthState {
	state := domain.HealthState{
		EntityType: entityType,
		Status:     domain.HealthHealthy,
	}

	finished := make([]*domain.SyncRun, 0, len(runs))
	for _, run := range runs {
		if run.Finished() {
			finished = append(finished, run)
		}
	}
	runs = finished
	if len(runs) == 0 {
		return state
	}

	for _, run := range runs {
		if runSucceeded(run) {
			if run.FinishedAt != nil {
				state.LastSuccessAt = run.FinishedAt
			}
			break
		}
		state.ConsecutiveFailures++
	}
	if state.LastSuccessAt == nil {
		for _, run := range runs {
			if runSucceeded(run) && run.FinishedAt != nil {
				state.LastSuccessAt = run.FinishedAt
				break
			}
		}
	}

	latest := runs[0]
	switch {
	case latest.Status == domain.RunStatusFailed:
		state.Status = domain.HealthFailing
	case failingStreak(runs, failureRateCeil):
		state.Status = domain.HealthFailing
	case latest.Stats.Failed > 0:
		state.Status = domain.HealthDegraded
	}
	return state
}

// runSucceeded reports whether a run completed without per-record failures.
func runSucceeded(run *domain.SyncRun) bool {
	return run.Status == domain.RunStatusCompleted && run.Stats.Failed == 0
}

// failingStreak reports whether the last failingStreakLength runs each had
// a failure rate above the ceiling.
func failingStreak(runs []*domain.SyncRun, ceil float64) bool {
	if len(runs) < failingStreakLength {
		return false
	}
	for _, run := range runs[:failingStreakLength] {
		if failureRate(run) <= ceil {
			return false
		}
	}
	return true
}

func failureRate(run *domain.SyncRun) float64 {
	processed := run.Stats.Added + run.Stats.Updated + run.Stats.Removed +
		run.Stats.Unchanged + run.Stats.Failed
	if processed == 0 {
		if run.Stats.Failed > 0 || run.Status == domain.RunStatusFailed {
			return 1
		}
		return 0
	}
	return float64(run.Stats.Failed) / float64(processed)
}
