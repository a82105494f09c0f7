package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/keystone-labs/propsync-core/internal/core/domain"
)

// MockLedgerStore is a mock implementation of LedgerStore for testing
type MockLedgerStore struct {
	mu   sync.RWMutex
	runs map[string]*domain.SyncRun
	seq  int
}

// NewMockLedgerStore creates a new MockLedgerStore
func NewMockLedgerStore() *MockLedgerStore {
	return &MockLedgerStore{
		runs: make(map[string]*domain.SyncRun),
	}
}

func (m *MockLedgerStore) BeginRun(ctx context.Context, entityType domain.EntityType, trigger domain.Trigger) (*domain.SyncRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	run := &domain.SyncRun{
		ID:         domain.NewRunID(),
		EntityType: entityType,
		Trigger:    trigger,
		Status:     domain.RunStatusRunning,
		// Monotonic start times so ListRuns ordering is deterministic even
		// when runs begin within the same wall-clock tick.
		StartedAt: time.Now().Add(time.Duration(m.seq) * time.Microsecond),
	}
	m.runs[run.ID] = run
	out := *run
	return &out, nil
}

func (m *MockLedgerStore) RecordPhaseResult(ctx context.Context, runID string, phase domain.Phase, stats domain.SyncStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return domain.ErrNotFound
	}
	if run.Finished() {
		return domain.ErrRunFinished
	}
	run.Stats.Add(stats)
	return nil
}

func (m *MockLedgerStore) RecordError(ctx context.Context, runID string, syncErr domain.SyncError) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return domain.ErrNotFound
	}
	if syncErr.CreatedAt.IsZero() {
		syncErr.CreatedAt = time.Now()
	}
	run.Errors = append(run.Errors, syncErr)
	return nil
}

func (m *MockLedgerStore) FinishRun(ctx context.Context, runID string, status domain.RunStatus, stats domain.SyncStats, health domain.HealthStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return domain.ErrNotFound
	}
	if run.Finished() {
		return domain.ErrRunFinished
	}
	now := time.Now()
	run.Status = status
	run.Stats = stats
	run.Health = health
	run.Error = errMsg
	run.FinishedAt = &now
	return nil
}

func (m *MockLedgerStore) GetRun(ctx context.Context, runID string) (*domain.SyncRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[runID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := cloneRun(run)
	return out, nil
}

func (m *MockLedgerStore) ListRuns(ctx context.Context, entityType domain.EntityType, limit int) ([]*domain.SyncRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var runs []*domain.SyncRun
	for _, run := range m.runs {
		if run.EntityType == entityType {
			runs = append(runs, cloneRun(run))
		}
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// Helper methods for testing

// SeedRun inserts a finished run directly.
func (m *MockLedgerStore) SeedRun(run *domain.SyncRun) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = cloneRun(run)
}

// Count returns the number of stored runs.
func (m *MockLedgerStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.runs)
}

func cloneRun(run *domain.SyncRun) *domain.SyncRun {
	out := *run
	out.Errors = make([]domain.SyncError, len(run.Errors))
	copy(out.Errors, run.Errors)
	if run.FinishedAt != nil {
		t := *run.FinishedAt
		out.FinishedAt = &t
	}
	return &out
}
