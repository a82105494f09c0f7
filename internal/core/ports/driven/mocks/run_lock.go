package mocks

import (
	"context"
	"sync"
	"time"
)

// MockRunLock is a mock implementation of RunLock for testing
type MockRunLock struct {
	mu         sync.Mutex
	held       map[string]bool
	acquireErr error
	denyAll    bool
}

// NewMockRunLock creates a new MockRunLock
func NewMockRunLock() *MockRunLock {
	return &MockRunLock{
		held: make(map[string]bool),
	}
}

func (m *MockRunLock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.acquireErr != nil {
		return false, m.acquireErr
	}
	if m.denyAll || m.held[name] {
		return false, nil
	}
	m.held[name] = true
	return true, nil
}

func (m *MockRunLock) Release(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.held, name)
	return nil
}

func (m *MockRunLock) Extend(ctx context.Context, name string, ttl time.Duration) error {
	return nil
}

func (m *MockRunLock) Ping(ctx context.Context) error {
	return nil
}

// Helper methods for testing

// Hold marks a lock as already held by another instance.
func (m *MockRunLock) Hold(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.held[name] = true
}

// DenyAll makes every Acquire return false.
func (m *MockRunLock) DenyAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.denyAll = true
}

// FailAcquire makes Acquire return err.
func (m *MockRunLock) FailAcquire(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acquireErr = err
}

// Held reports whether the named lock is currently held.
func (m *MockRunLock) Held(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held[name]
}
