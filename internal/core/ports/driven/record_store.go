package driven

import (
	"context"

	"github.com/keystone-labs/propsync-core/internal/core/domain"
)

// RecordStore is the relational persistence layer for business entities.
// All operations are single-record from the contract's point of view; any
// batching inside an implementation is an optimization and the reconciliation
// algorithm stays correct at batch size 1. The store serializes concurrent
// writes through its own transaction semantics, not through callers.
type RecordStore interface {
	// ListActiveKeys returns key -> fingerprint for every non-deleted record
	// of the entity type. Soft-deleted records are excluded, which is what
	// makes a reappearing deleted key classify as a fresh addition.
	ListActiveKeys(ctx context.Context, entityType domain.EntityType) (map[string]string, error)

	// Get fetches one record by business key, deleted or not.
	// Returns domain.ErrNotFound if the key has never existed.
	Get(ctx context.Context, entityType domain.EntityType, key string) (*domain.StoreRecord, error)

	// GetByKeys bulk-fetches active records. Missing keys are simply absent
	// from the result map, never an error.
	GetByKeys(ctx context.Context, entityType domain.EntityType, keys []string) (map[string]*domain.StoreRecord, error)

	// Upsert writes a record, creating or replacing by (entity type, key).
	// Idempotent: a second call with the same input is a no-op update, not a
	// duplicate. An upsert over a soft-deleted row reactivates it with the
	// given fields. Fails with domain.ErrWriteConflict or
	// domain.ErrValidationFailed.
	Upsert(ctx context.Context, record *domain.StoreRecord) error

	// SoftDelete marks a record deleted. Idempotent; deleting a missing or
	// already-deleted key is treated as already satisfied.
	SoftDelete(ctx context.Context, entityType domain.EntityType, key string) error
}
