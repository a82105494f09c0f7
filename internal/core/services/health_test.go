package services

import (
	"context"
	"testing"
	"time"

	"github.com/keystone-labs/propsync-core/internal/core/domain"
	"github.com/keystone-labs/propsync-core/internal/core/ports/driven/mocks"
)

// finishedRun builds a terminal run; age orders runs (smaller = more recent).
func finishedRun(entityType domain.EntityType, age time.Duration, status domain.RunStatus, stats domain.SyncStats) *domain.SyncRun {
	started := time.Now().Add(-age - time.Minute)
	finished := time.Now().Add(-age)
	return &domain.SyncRun{
		ID:         domain.NewRunID(),
		EntityType: entityType,
		Trigger:    domain.TriggerScheduled,
		Status:     status,
		StartedAt:  started,
		FinishedAt: &finished,
		Stats:      stats,
	}
}

func TestEvaluateHealth_NoHistoryIsHealthy(t *testing.T) {
	state := EvaluateHealth(domain.EntitySellers, nil, defaultFailureRateCeil)
	if state.Status != domain.HealthHealthy {
		t.Errorf("status = %s, want healthy", state.Status)
	}
	if state.ConsecutiveFailures != 0 || state.LastSuccessAt != nil {
		t.Errorf("empty history should be a zero state: %+v", state)
	}
}

func TestEvaluateHealth_CleanRunIsHealthy(t *testing.T) {
	runs := []*domain.SyncRun{
		finishedRun(domain.EntitySellers, time.Hour, domain.RunStatusCompleted, domain.SyncStats{Added: 5, Unchanged: 95}),
	}
	state := EvaluateHealth(domain.EntitySellers, runs, defaultFailureRateCeil)
	if state.Status != domain.HealthHealthy {
		t.Errorf("status = %s, want healthy", state.Status)
	}
	if state.LastSuccessAt == nil {
		t.Error("LastSuccessAt should point at the clean run")
	}
}

func TestEvaluateHealth_RecordFailuresAreDegraded(t *testing.T) {
	runs := []*domain.SyncRun{
		finishedRun(domain.EntitySellers, time.Hour, domain.RunStatusCompleted, domain.SyncStats{Added: 3, Unchanged: 90, Failed: 2}),
	}
	state := EvaluateHealth(domain.EntitySellers, runs, defaultFailureRateCeil)
	if state.Status != domain.HealthDegraded {
		t.Errorf("status = %s, want degraded", state.Status)
	}
}

func TestEvaluateHealth_InFlightRunIsIgnored(t *testing.T) {
	// Polling CurrentHealth while a run is executing must not count the open
	// run as a failure.
	runs := []*domain.SyncRun{
		{
			ID:         domain.NewRunID(),
			EntityType: domain.EntitySellers,
			Trigger:    domain.TriggerManual,
			Status:     domain.RunStatusRunning,
			StartedAt:  time.Now(),
		},
		finishedRun(domain.EntitySellers, time.Hour, domain.RunStatusCompleted, domain.SyncStats{Added: 3}),
	}
	state := EvaluateHealth(domain.EntitySellers, runs, defaultFailureRateCeil)
	if state.Status != domain.HealthHealthy {
		t.Errorf("status = %s, want healthy while a run is still executing", state.Status)
	}
	if state.ConsecutiveFailures != 0 {
		t.Errorf("consecutive failures = %d, want 0", state.ConsecutiveFailures)
	}
	if state.LastSuccessAt == nil {
		t.Error("LastSuccessAt should still point at the finished clean run")
	}
}

func TestEvaluateHealth_FailedRunIsFailing(t *testing.T) {
	runs := []*domain.SyncRun{
		finishedRun(domain.EntitySellers, time.Hour, domain.RunStatusFailed, domain.SyncStats{}),
		finishedRun(domain.EntitySellers, 2*time.Hour, domain.RunStatusCompleted, domain.SyncStats{Unchanged: 50}),
	}
	state := EvaluateHealth(domain.EntitySellers, runs, defaultFailureRateCeil)
	if state.Status != domain.HealthFailing {
		t.Errorf("status = %s, want failing", state.Status)
	}
	if state.ConsecutiveFailures != 1 {
		t.Errorf("consecutive failures = %d, want 1", state.ConsecutiveFailures)
	}
	if state.LastSuccessAt == nil {
		t.Error("LastSuccessAt should survive a later failure")
	}
}

func TestEvaluateHealth_SustainedFailureRateIsFailing(t *testing.T) {
	// Three completed runs in a row, each with >10% of records failing.
	lossy := domain.SyncStats{Updated: 8, Failed: 2}
	runs := []*domain.SyncRun{
		finishedRun(domain.EntitySellers, time.Hour, domain.RunStatusCompleted, lossy),
		finishedRun(domain.EntitySellers, 2*time.Hour, domain.RunStatusCompleted, lossy),
		finishedRun(domain.EntitySellers, 3*time.Hour, domain.RunStatusCompleted, lossy),
	}
	state := EvaluateHealth(domain.EntitySellers, runs, defaultFailureRateCeil)
	if state.Status != domain.HealthFailing {
		t.Errorf("status = %s, want failing on a sustained high failure rate", state.Status)
	}
}

func TestEvaluateHealth_ShortStreakIsOnlyDegraded(t *testing.T) {
	lossy := domain.SyncStats{Updated: 8, Failed: 2}
	runs := []*domain.SyncRun{
		finishedRun(domain.EntitySellers, time.Hour, domain.RunStatusCompleted, lossy),
		finishedRun(domain.EntitySellers, 2*time.Hour, domain.RunStatusCompleted, lossy),
		finishedRun(domain.EntitySellers, 3*time.Hour, domain.RunStatusCompleted, domain.SyncStats{Unchanged: 100}),
	}
	state := EvaluateHealth(domain.EntitySellers, runs, defaultFailureRateCeil)
	if state.Status != domain.HealthDegraded {
		t.Errorf("status = %s, want degraded (streak not long enough)", state.Status)
	}
}

func TestEvaluateHealth_LowFailureRateDoesNotStreak(t *testing.T) {
	// Failures present but under the 10% ceiling every run: degraded, never
	// failing, regardless of how long it lasts.
	mild := domain.SyncStats{Updated: 95, Failed: 2}
	runs := []*domain.SyncRun{
		finishedRun(domain.EntitySellers, time.Hour, domain.RunStatusCompleted, mild),
		finishedRun(domain.EntitySellers, 2*time.Hour, domain.RunStatusCompleted, mild),
		finishedRun(domain.EntitySellers, 3*time.Hour, domain.RunStatusCompleted, mild),
		finishedRun(domain.EntitySellers, 4*time.Hour, domain.RunStatusCompleted, mild),
	}
	state := EvaluateHealth(domain.EntitySellers, runs, defaultFailureRateCeil)
	if state.Status != domain.HealthDegraded {
		t.Errorf("status = %s, want degraded", state.Status)
	}
}

func TestEvaluateHealth_ConsecutiveFailureCount(t *testing.T) {
	runs := []*domain.SyncRun{
		finishedRun(domain.EntitySellers, 1*time.Hour, domain.RunStatusFailed, domain.SyncStats{}),
		finishedRun(domain.EntitySellers, 2*time.Hour, domain.RunStatusCompleted, domain.SyncStats{Failed: 1}),
		finishedRun(domain.EntitySellers, 3*time.Hour, domain.RunStatusFailed, domain.SyncStats{}),
		finishedRun(domain.EntitySellers, 4*time.Hour, domain.RunStatusCompleted, domain.SyncStats{Unchanged: 10}),
	}
	state := EvaluateHealth(domain.EntitySellers, runs, defaultFailureRateCeil)
	if state.ConsecutiveFailures != 3 {
		t.Errorf("consecutive failures = %d, want 3 (clean run breaks the streak)", state.ConsecutiveFailures)
	}
	if state.LastSuccessAt == nil {
		t.Fatal("LastSuccessAt missing")
	}
}

func TestHealthMonitor_CurrentHealth(t *testing.T) {
	ledger := mocks.NewMockLedgerStore()
	ledger.SeedRun(finishedRun(domain.EntitySellers, time.Hour, domain.RunStatusFailed, domain.SyncStats{}))
	ledger.SeedRun(finishedRun(domain.EntityBuyers, time.Hour, domain.RunStatusCompleted, domain.SyncStats{Unchanged: 5}))

	monitor := NewHealthMonitor(HealthMonitorConfig{Ledger: ledger})

	sellers, err := monitor.CurrentHealth(context.Background(), domain.EntitySellers)
	if err != nil {
		t.Fatalf("sellers health: %v", err)
	}
	if sellers.Status != domain.HealthFailing {
		t.Errorf("sellers status = %s, want failing", sellers.Status)
	}

	// Health is tracked per entity type; buyers are unaffected.
	buyers, err := monitor.CurrentHealth(context.Background(), domain.EntityBuyers)
	if err != nil {
		t.Fatalf("buyers health: %v", err)
	}
	if buyers.Status != domain.HealthHealthy {
		t.Errorf("buyers status = %s, want healthy", buyers.Status)
	}
}

func TestHealthMonitor_RunHistoryOrderAndLimit(t *testing.T) {
	ledger := mocks.NewMockLedgerStore()
	for i := 1; i <= 4; i++ {
		ledger.SeedRun(finishedRun(domain.EntitySellers, time.Duration(i)*time.Hour, domain.RunStatusCompleted, domain.SyncStats{Unchanged: i}))
	}
	monitor := NewHealthMonitor(HealthMonitorConfig{Ledger: ledger})

	runs, err := monitor.RunHistory(context.Background(), domain.EntitySellers, 2)
	if err != nil {
		t.Fatalf("run history: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if !runs[0].StartedAt.After(runs[1].StartedAt) {
		t.Error("history must be most recent first")
	}
}
