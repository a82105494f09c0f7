package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/keystone-labs/propsync-core/internal/core/domain"
	"github.com/keystone-labs/propsync-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.LedgerStore = (*LedgerStore)(nil)

// LedgerStore implements driven.LedgerStore using PostgreSQL. Runs are
// append-only: counters accumulate while a run is open and a finished run is
// never mutated again.
type LedgerStore struct {
	db *DB
}

// NewLedgerStore creates a new LedgerStore
func NewLedgerStore(db *DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// BeginRun opens a new run in the running state.
func (s *LedgerStore) BeginRun(ctx context.Context, entityType domain.EntityType, trigger domain.Trigger) (*domain.SyncRun, error) {
	run := &domain.SyncRun{
		ID:         domain.NewRunID(),
		EntityType: entityType,
		Trigger:    trigger,
		Status:     domain.RunStatusRunning,
		StartedAt:  time.Now(),
	}

	query := `
		INSERT INTO sync_runs (run_id, entity_type, trigger_by, status, started_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		string(run.EntityType),
		string(run.Trigger),
		string(run.Status),
		run.StartedAt,
	)
	if err != nil {
		return nil, classifyError(err)
	}
	return run, nil
}

// RecordPhaseResult accumulates phase counters onto an open run, so a run
// that dies mid-phase still has every completed phase's numbers visible.
func (s *LedgerStore) RecordPhaseResult(ctx context.Context, runID string, phase domain.Phase, stats domain.SyncStats) error {
	query := `
		UPDATE sync_runs SET
			added = added + $2,
			updated = updated + $3,
			removed = removed + $4,
			unchanged = unchanged + $5,
			failed = failed + $6,
			skipped_rows = skipped_rows + $7
		WHERE run_id = $1 AND finished_at IS NULL
	`

	result, err := s.db.ExecContext(ctx, query, runID,
		stats.Added, stats.Updated, stats.Removed,
		stats.Unchanged, stats.Failed, stats.SkippedRows,
	)
	if err != nil {
		return classifyError(err)
	}
	return s.checkRunWritable(ctx, runID, result)
}

// RecordError appends one error or warning to a run.
func (s *LedgerStore) RecordError(ctx context.Context, runID string, syncErr domain.SyncError) error {
	createdAt := syncErr.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO sync_errors (run_id, key, phase, kind, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.db.ExecContext(ctx, query,
		runID,
		syncErr.Key,
		string(syncErr.Phase),
		string(syncErr.Kind),
		syncErr.Message,
		createdAt,
	)
	if err != nil {
		var pqErr *pq.Error
		// FK violation: the run does not exist.
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return domain.ErrNotFound
		}
		return classifyError(err)
	}
	return nil
}

// FinishRun closes a run with its final counters and health snapshot.
// Closing an already-finished run is rejected, preserving append-only
// semantics.
func (s *LedgerStore) FinishRun(ctx context.Context, runID string, status domain.RunStatus, stats domain.SyncStats, health domain.HealthStatus, errMsg string) error {
	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		var finishedAt sql.NullTime
		err := tx.QueryRowContext(ctx,
			`SELECT finished_at FROM sync_runs WHERE run_id = $1 FOR UPDATE`, runID,
		).Scan(&finishedAt)
		if err == sql.ErrNoRows {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		if finishedAt.Valid {
			return domain.ErrRunFinished
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE sync_runs SET
				status = $2,
				added = $3, updated = $4, removed = $5,
				unchanged = $6, failed = $7, skipped_rows = $8,
				health = $9, error = $10,
				finished_at = now()
			WHERE run_id = $1
		`, runID, string(status),
			stats.Added, stats.Updated, stats.Removed,
			stats.Unchanged, stats.Failed, stats.SkippedRows,
			string(health), errMsg,
		)
		return err
	})
	return classifyError(err)
}

// GetRun retrieves one run with its full error list.
func (s *LedgerStore) GetRun(ctx context.Context, runID string) (*domain.SyncRun, error) {
	query := runSelect + ` WHERE run_id = $1`

	run, err := scanRun(s.db.QueryRowContext(ctx, query, runID))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, classifyError(err)
	}

	errsByRun, err := s.loadErrors(ctx, []string{runID})
	if err != nil {
		return nil, err
	}
	run.Errors = errsByRun[runID]
	return run, nil
}

// ListRuns returns up to limit runs for an entity type, most recent first.
func (s *LedgerStore) ListRuns(ctx context.Context, entityType domain.EntityType, limit int) ([]*domain.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}

	query := runSelect + `
		WHERE entity_type = $1
		ORDER BY started_at DESC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, string(entityType), limit)
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	var runs []*domain.SyncRun
	var ids []string
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
		ids = append(ids, run.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyError(err)
	}

	if len(ids) > 0 {
		errsByRun, err := s.loadErrors(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, run := range runs {
			run.Errors = errsByRun[run.ID]
		}
	}
	return runs, nil
}

const runSelect = `
	SELECT run_id, entity_type, trigger_by, status, started_at, finished_at,
	       added, updated, removed, unchanged, failed, skipped_rows,
	       health, error
	FROM sync_runs
`

func scanRun(row rowScanner) (*domain.SyncRun, error) {
	var run domain.SyncRun
	var entityType, trigger, status, health string
	var finishedAt sql.NullTime

	err := row.Scan(
		&run.ID, &entityType, &trigger, &status, &run.StartedAt, &finishedAt,
		&run.Stats.Added, &run.Stats.Updated, &run.Stats.Removed,
		&run.Stats.Unchanged, &run.Stats.Failed, &run.Stats.SkippedRows,
		&health, &run.Error,
	)
	if err != nil {
		return nil, err
	}

	run.EntityType = domain.EntityType(entityType)
	run.Trigger = domain.Trigger(trigger)
	run.Status = domain.RunStatus(status)
	run.Health = domain.HealthStatus(health)
	run.FinishedAt = TimePtr(finishedAt)
	return &run, nil
}

func (s *LedgerStore) loadErrors(ctx context.Context, runIDs []string) (map[string][]domain.SyncError, error) {
	query := `
		SELECT run_id, key, phase, kind, message, created_at
		FROM sync_errors
		WHERE run_id = ANY($1)
		ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(runIDs))
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	result := make(map[string][]domain.SyncError)
	for rows.Next() {
		var runID, phase, kind string
		var syncErr domain.SyncError
		if err := rows.Scan(&runID, &syncErr.Key, &phase, &kind, &syncErr.Message, &syncErr.CreatedAt); err != nil {
			return nil, err
		}
		syncErr.Phase = domain.Phase(phase)
		syncErr.Kind = domain.ErrorKind(kind)
		result[runID] = append(result[runID], syncErr)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyError(err)
	}
	return result, nil
}

// checkRunWritable distinguishes a missing run from a finished one when an
// open-run update matched no rows.
func (s *LedgerStore) checkRunWritable(ctx context.Context, runID string, result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	var finishedAt sql.NullTime
	err = s.db.QueryRowContext(ctx,
		`SELECT finished_at FROM sync_runs WHERE run_id = $1`, runID,
	).Scan(&finishedAt)
	if err == sql.ErrNoRows {
		return domain.ErrNotFound
	}
	if err != nil {
		return classifyError(err)
	}
	if finishedAt.Valid {
		return domain.ErrRunFinished
	}
	return fmt.Errorf("run %s not updated", runID)
}
