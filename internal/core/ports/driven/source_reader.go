package driven

import (
	"context"

	"github.com/keystone-labs/propsync-core/internal/core/domain"
)

// SourceReader reads the external system of record (the human-edited sheet).
// Implementations are strictly read-only against the source.
type SourceReader interface {
	// ReadAll returns the complete current snapshot for an entity type.
	// Pagination and partial reads are the reader's internal concern and are
	// never leaked to callers. Rows with a blank or malformed business key
	// are dropped and counted in the snapshot, not raised as errors.
	// Returns domain.ErrSourceUnavailable (wrapped) when the source cannot
	// be read at all.
	ReadAll(ctx context.Context, entityType domain.EntityType) (*domain.SourceSnapshot, error)
}
