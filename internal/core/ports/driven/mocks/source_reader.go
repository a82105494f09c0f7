package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/keystone-labs/propsync-core/internal/core/domain"
)

// MockSourceReader is a mock implementation of SourceReader for testing
type MockSourceReader struct {
	mu        sync.RWMutex
	rows      map[domain.EntityType][]domain.SourceRow
	skipped   map[domain.EntityType]int
	readErr   error
	readCount int
}

// NewMockSourceReader creates a new MockSourceReader
func NewMockSourceReader() *MockSourceReader {
	return &MockSourceReader{
		rows:    make(map[domain.EntityType][]domain.SourceRow),
		skipped: make(map[domain.EntityType]int),
	}
}

func (m *MockSourceReader) ReadAll(ctx context.Context, entityType domain.EntityType) (*domain.SourceSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readCount++
	if m.readErr != nil {
		return nil, m.readErr
	}
	rows := make([]domain.SourceRow, len(m.rows[entityType]))
	copy(rows, m.rows[entityType])
	return &domain.SourceSnapshot{
		EntityType:  entityType,
		Rows:        rows,
		SkippedRows: m.skipped[entityType],
		ReadAt:      time.Now(),
	}, nil
}

// Helper methods for testing

// SetRows replaces the snapshot rows for an entity type.
func (m *MockSourceReader) SetRows(entityType domain.EntityType, rows []domain.SourceRow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[entityType] = rows
}

// SetSkipped sets the skipped-row count returned with the snapshot.
func (m *MockSourceReader) SetSkipped(entityType domain.EntityType, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skipped[entityType] = n
}

// SetError makes every ReadAll fail with err.
func (m *MockSourceReader) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
}

// ReadCount returns how many times ReadAll was called.
func (m *MockSourceReader) ReadCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.readCount
}
