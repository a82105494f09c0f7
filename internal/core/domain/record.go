package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"
)

// StoreRecord is the persisted form of a business entity. Fields holds the
// coerced field values after merge; Fingerprint summarizes Fields for cheap
// change detection on the next run.
//
// At most one non-deleted StoreRecord exists per (EntityType, Key). A key
// that reappears in the sheet after a soft-delete becomes a fresh addition:
// its prior field values are not resurrected.
type StoreRecord struct {
	EntityType  EntityType
	Key         string
	Fields      map[string]string
	Fingerprint string
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}

// Deleted reports whether the record is soft-deleted.
func (r *StoreRecord) Deleted() bool {
	return r.DeletedAt != nil
}

// ComputeFingerprint derives a stable content hash from a field map.
// Keys are hashed in sorted order with NUL separators so the result does not
// depend on map iteration order or re-serialization, and a value cannot
// collide with a neighboring key.
func ComputeFingerprint(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(fields[k]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
