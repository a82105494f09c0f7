package services

import (
	"github.com/keystone-labs/propsync-core/internal/core/domain"
)

// ComputeDiff partitions the union of source and store keys into the three
// phase work sets. Single pass over the source rows plus one over the store
// index; O(n) in the combined key count, no pairwise comparison.
//
// candidateFingerprint derives a change-detection fingerprint from a source
// row alone. It is compared against the stored fingerprint from the index;
// a mismatch nominates the key for the update phase, where the exact merged
// fingerprint decides whether a write actually happens.
//
// Duplicate business keys in the source (a known defect of human-maintained
// sheets) resolve last-occurrence-wins; every earlier occurrence becomes a
// DuplicateKeyWarning.
func ComputeDiff(rows []domain.SourceRow, storeIndex map[string]string, candidateFingerprint func(domain.SourceRow) string) *domain.DiffResult {
	result := &domain.DiffResult{}

	// Resolve duplicates first so classification sees one row per key.
	winner := make(map[string]int, len(rows)) // key -> index into rows
	for i, row := range rows {
		winner[row.Key] = i
	}
	for i, row := range rows {
		if winner[row.Key] != i {
			result.Warnings = append(result.Warnings, domain.DuplicateKeyWarning{
				Key:         row.Key,
				RowIndex:    row.RowIndex,
				WinnerIndex: rows[winner[row.Key]].RowIndex,
			})
		}
	}

	seen := make(map[string]struct{}, len(winner))
	for i, row := range rows {
		if winner[row.Key] != i {
			continue // superseded by a later occurrence
		}
		seen[row.Key] = struct{}{}

		stored, ok := storeIndex[row.Key]
		switch {
		case !ok:
			result.ToAdd = append(result.ToAdd, row)
		case stored != candidateFingerprint(row):
			result.ToUpdate = append(result.ToUpdate, domain.UpdateCandidate{
				Row:               row,
				StoredFingerprint: stored,
			})
		default:
			result.Unchanged++
		}
	}

	for key := range storeIndex {
		if _, ok := seen[key]; !ok {
			result.ToRemove = append(result.ToRemove, key)
		}
	}

	return result
}
