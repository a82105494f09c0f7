package domain

import (
	"crypto/rand"
	"encoding/base64"
	"time"
)

// Trigger records what started a reconciliation run.
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
	TriggerStartup   Trigger = "startup"
)

// Phase is one stage of a reconciliation run. Phases execute in a fixed
// order (addition, then update, then deletion) so that a key eligible for
// re-addition after a prior soft-delete resolves deterministically.
type Phase string

const (
	PhaseDiff     Phase = "diff" // not a write phase; used for diff-time warnings
	PhaseAddition Phase = "addition"
	PhaseUpdate   Phase = "update"
	PhaseDeletion Phase = "deletion"
)

// RunStatus is the lifecycle state of a SyncRun.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	// RunStatusPartial marks a run that stopped admitting work before the
	// diff was exhausted (wall-clock budget expiry or cancellation) but
	// finalized its counters normally.
	RunStatusPartial RunStatus = "partial"
	RunStatusFailed  RunStatus = "failed"
)

// SyncStats holds the counters for a run or a single phase.
type SyncStats struct {
	Added       int `json:"added"`
	Updated     int `json:"updated"`
	Removed     int `json:"removed"`
	Unchanged   int `json:"unchanged"`
	Failed      int `json:"failed"`
	SkippedRows int `json:"skipped_rows"`
}

// Add accumulates another stats value into s.
func (s *SyncStats) Add(o SyncStats) {
	s.Added += o.Added
	s.Updated += o.Updated
	s.Removed += o.Removed
	s.Unchanged += o.Unchanged
	s.Failed += o.Failed
	s.SkippedRows += o.SkippedRows
}

// ErrorKind distinguishes real per-record failures from informational
// warnings. Warnings never increment the failed counter.
type ErrorKind string

const (
	ErrorKindError   ErrorKind = "error"
	ErrorKindWarning ErrorKind = "warning"
)

// SyncError is one per-record failure or warning within a run, with enough
// context to act on without re-running.
type SyncError struct {
	Key       string    `json:"key"`
	Phase     Phase     `json:"phase"`
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// SyncRun is one reconciliation invocation. A run is created when the
// invocation starts and closed when it ends regardless of outcome; a fatal
// abort still persists a run with whatever phases completed. Once finished
// a run is append-only history and never mutated.
type SyncRun struct {
	ID         string       `json:"id"`
	EntityType EntityType   `json:"entity_type"`
	Trigger    Trigger      `json:"trigger"`
	Status     RunStatus    `json:"status"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
	Stats      SyncStats    `json:"stats"`
	Health     HealthStatus `json:"health,omitempty"`
	Error      string       `json:"error,omitempty"`
	Errors     []SyncError  `json:"errors,omitempty"`
}

// Finished reports whether the run has been closed.
func (r *SyncRun) Finished() bool {
	return r.FinishedAt != nil
}

// NewRunID generates a random run identifier.
func NewRunID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
