package domain

import "fmt"

// UpdateCandidate pairs a source row with the fingerprint of the active
// store record it would replace. The full record is fetched lazily by the
// update phase; the diff works from the fingerprint index alone.
type UpdateCandidate struct {
	Row               SourceRow
	StoredFingerprint string
}

// DuplicateKeyWarning records a non-winning occurrence of a duplicated
// business key in the source snapshot. The last occurrence in read order
// wins; earlier ones are reported, not silently dropped.
type DuplicateKeyWarning struct {
	Key         string
	RowIndex    int // sheet row of the losing occurrence
	WinnerIndex int
}

// Message renders the warning for the ledger.
func (w DuplicateKeyWarning) Message() string {
	return fmt.Sprintf("duplicate key %q at row %d superseded by row %d", w.Key, w.RowIndex, w.WinnerIndex)
}

// DiffResult partitions the union of source and store keys into three
// disjoint work sets plus an unchanged count. ToAdd and ToUpdate preserve
// source read order; ToRemove order is unspecified.
type DiffResult struct {
	ToAdd     []SourceRow
	ToUpdate  []UpdateCandidate
	ToRemove  []string
	Unchanged int
	Warnings  []DuplicateKeyWarning
}

// Empty reports whether the diff contains no work in any phase.
func (d *DiffResult) Empty() bool {
	return len(d.ToAdd) == 0 && len(d.ToUpdate) == 0 && len(d.ToRemove) == 0
}
