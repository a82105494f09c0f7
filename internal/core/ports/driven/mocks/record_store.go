package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/keystone-labs/propsync-core/internal/core/domain"
)

// MockRecordStore is a mock implementation of RecordStore for testing.
// Per-key failure injection lets tests exercise partial-failure isolation.
type MockRecordStore struct {
	mu      sync.RWMutex
	records map[domain.EntityType]map[string]*domain.StoreRecord

	upsertErrs map[string]error // key -> error to return from Upsert
	deleteErrs map[string]error // key -> error to return from SoftDelete
	listErr    error

	upsertCalls map[string]int
}

// NewMockRecordStore creates a new MockRecordStore
func NewMockRecordStore() *MockRecordStore {
	return &MockRecordStore{
		records:     make(map[domain.EntityType]map[string]*domain.StoreRecord),
		upsertErrs:  make(map[string]error),
		deleteErrs:  make(map[string]error),
		upsertCalls: make(map[string]int),
	}
}

func (m *MockRecordStore) ListActiveKeys(ctx context.Context, entityType domain.EntityType) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	index := make(map[string]string)
	for key, rec := range m.records[entityType] {
		if rec.Deleted() {
			continue
		}
		index[key] = rec.Fingerprint
	}
	return index, nil
}

func (m *MockRecordStore) Get(ctx context.Context, entityType domain.EntityType, key string) (*domain.StoreRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[entityType][key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (m *MockRecordStore) GetByKeys(ctx context.Context, entityType domain.EntityType, keys []string) (map[string]*domain.StoreRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string]*domain.StoreRecord)
	for _, key := range keys {
		if rec, ok := m.records[entityType][key]; ok && !rec.Deleted() {
			result[key] = cloneRecord(rec)
		}
	}
	return result, nil
}

func (m *MockRecordStore) Upsert(ctx context.Context, record *domain.StoreRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertCalls[record.Key]++
	if err, ok := m.upsertErrs[record.Key]; ok {
		return err
	}
	if m.records[record.EntityType] == nil {
		m.records[record.EntityType] = make(map[string]*domain.StoreRecord)
	}
	stored := cloneRecord(record)
	stored.UpdatedAt = time.Now()
	stored.DeletedAt = nil
	m.records[record.EntityType][record.Key] = stored
	return nil
}

func (m *MockRecordStore) SoftDelete(ctx context.Context, entityType domain.EntityType, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.deleteErrs[key]; ok {
		return err
	}
	rec, ok := m.records[entityType][key]
	if !ok || rec.Deleted() {
		// Already satisfied.
		return nil
	}
	now := time.Now()
	rec.DeletedAt = &now
	rec.UpdatedAt = now
	return nil
}

// Helper methods for testing

// Seed inserts a record directly, bypassing failure injection.
func (m *MockRecordStore) Seed(record *domain.StoreRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records[record.EntityType] == nil {
		m.records[record.EntityType] = make(map[string]*domain.StoreRecord)
	}
	m.records[record.EntityType][record.Key] = cloneRecord(record)
}

// FailUpsert makes Upsert for the given key return err.
func (m *MockRecordStore) FailUpsert(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertErrs[key] = err
}

// FailSoftDelete makes SoftDelete for the given key return err.
func (m *MockRecordStore) FailSoftDelete(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteErrs[key] = err
}

// FailListActiveKeys makes ListActiveKeys return err.
func (m *MockRecordStore) FailListActiveKeys(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listErr = err
}

// UpsertCalls returns how many times Upsert was called for a key.
func (m *MockRecordStore) UpsertCalls(key string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.upsertCalls[key]
}

// ActiveCount returns the number of non-deleted records for an entity type.
func (m *MockRecordStore) ActiveCount(entityType domain.EntityType) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, rec := range m.records[entityType] {
		if !rec.Deleted() {
			n++
		}
	}
	return n
}

func cloneRecord(rec *domain.StoreRecord) *domain.StoreRecord {
	clone := *rec
	clone.Fields = make(map[string]string, len(rec.Fields))
	for k, v := range rec.Fields {
		clone.Fields[k] = v
	}
	if rec.DeletedAt != nil {
		t := *rec.DeletedAt
		clone.DeletedAt = &t
	}
	return &clone
}
