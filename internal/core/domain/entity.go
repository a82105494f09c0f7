package domain

import (
	"fmt"
	"time"
)

// EntityType identifies one reconciled record family. Each entity type has
// its own sheet tab, its own store rows and its own run history.
type EntityType string

const (
	EntitySellers  EntityType = "sellers"
	EntityBuyers   EntityType = "buyers"
	EntityListings EntityType = "listings"
)

// AllEntityTypes lists every reconcilable entity type in a stable order.
func AllEntityTypes() []EntityType {
	return []EntityType{EntitySellers, EntityBuyers, EntityListings}
}

// ParseEntityType validates a string from an untrusted boundary (HTTP path,
// environment) against the known entity types.
func ParseEntityType(s string) (EntityType, error) {
	switch EntityType(s) {
	case EntitySellers, EntityBuyers, EntityListings:
		return EntityType(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEntityType, s)
}

// SourceRow is one business entity as read from the external sheet.
// Columns maps column name to the raw cell value; a column absent from the
// map was not present in the row at all, which is distinct from a column
// mapped to the empty string (a blank cell).
type SourceRow struct {
	Key      string
	Columns  map[string]string
	RowIndex int // 1-based sheet row, used only for error reporting
}

// Cell returns the raw cell value and whether the column was present.
func (r SourceRow) Cell(column string) (string, bool) {
	v, ok := r.Columns[column]
	return v, ok
}

// SourceSnapshot is one complete read of the sheet for an entity type.
// Rows preserve sheet order. SkippedRows counts rows dropped for a blank or
// malformed business key; stray blank rows are expected in a human-edited
// sheet and are never fatal.
type SourceSnapshot struct {
	EntityType  EntityType
	Rows        []SourceRow
	SkippedRows int
	ReadAt      time.Time
}
