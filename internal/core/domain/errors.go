package domain

import (
	"errors"
	"fmt"
)

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrUnknownEntityType indicates an entity type outside the known set
	ErrUnknownEntityType = errors.New("unknown entity type")

	// ErrSourceUnavailable indicates the external snapshot could not be read
	// at all. Fatal to a run: no phase executes and the store is untouched.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrStoreUnavailable indicates the record store cannot be reached at
	// all, as opposed to rejecting one record. Aborts the current run.
	ErrStoreUnavailable = errors.New("record store unavailable")

	// ErrWriteConflict indicates the store rejected a write due to a
	// concurrent writer. Classified transient and retried.
	ErrWriteConflict = errors.New("write conflict")

	// ErrValidationFailed indicates the store rejected a write as invalid.
	// Never retried.
	ErrValidationFailed = errors.New("validation failed")

	// ErrRateLimited indicates an external API signalled quota exhaustion.
	ErrRateLimited = errors.New("rate limited")

	// ErrRunInProgress indicates a reconciliation run is already executing
	// for the same entity type.
	ErrRunInProgress = errors.New("reconciliation already in progress")

	// ErrRunFinished indicates an attempt to append to a closed run.
	ErrRunFinished = errors.New("run already finished")
)

// MappingError reports that a single source row could not be converted into
// a store write. It is caught per record, logged and counted; it never
// aborts a phase and is never retried.
type MappingError struct {
	Key    string
	Field  string
	Reason string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("mapping %s field %q: %s", e.Key, e.Field, e.Reason)
}

// NewMappingError builds a MappingError for the given row field.
func NewMappingError(key, field, reason string) *MappingError {
	return &MappingError{Key: key, Field: field, Reason: reason}
}
