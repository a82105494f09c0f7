package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/keystone-labs/propsync-core/internal/core/domain"
	"github.com/keystone-labs/propsync-core/internal/core/ports/driven"
	"github.com/keystone-labs/propsync-core/internal/core/ports/driving"
	"github.com/keystone-labs/propsync-core/internal/ratelimit"
	"github.com/keystone-labs/propsync-core/internal/retry"
)

// Verify interface compliance
var _ driving.Reconciler = (*Runner)(nil)

const lockNamePrefix = "reconcile:"

// Runner orchestrates one reconciliation pass:
//  1. Acquire the per-entity run lock
//  2. Open a ledger run
//  3. Read the full source snapshot
//  4. Read the store's active key/fingerprint index
//  5. Diff the two
//  6. Execute Addition, Update, Deletion phases in order
//  7. Close the ledger run with counters and a health snapshot
//
// Within a phase every key is processed independently across a bounded
// worker pool: one bad row never aborts the batch. Only whole-run-blocking
// failures (source unreadable, store unreachable) abort.
type Runner struct {
	source  driven.SourceReader
	store   driven.RecordStore
	ledger  driven.LedgerStore
	lock    driven.RunLock
	mapper  *Mapper
	limiter *ratelimit.Limiter
	logger  *slog.Logger

	workers         int
	runBudget       time.Duration
	lockTTL         time.Duration
	retryCfg        retry.Config
	failureRateCeil float64
	healthWindow    int
}

// RunnerConfig holds dependencies for Runner.
type RunnerConfig struct {
	Source  driven.SourceReader
	Store   driven.RecordStore
	Ledger  driven.LedgerStore
	Lock    driven.RunLock
	Mapper  *Mapper
	Limiter *ratelimit.Limiter
	Logger  *slog.Logger

	// Workers bounds the per-phase worker pool (default 4). The cap exists
	// to respect external API rate limits, not to speed up bookkeeping.
	Workers int
	// RunBudget is the wall-clock budget for a whole run; on expiry the
	// runner stops admitting work, lets in-flight writes finish and
	// finalizes the run as partial. 0 means no budget.
	RunBudget time.Duration
	// LockTTL is the run lock's TTL; the lock is extended while the run is
	// in flight (default 5m).
	LockTTL time.Duration
	// Retry bounds per-record write retries (default retry.DefaultConfig).
	Retry retry.Config
	// FailureRateCeil and HealthWindow mirror the HealthMonitor settings so
	// the health snapshot recorded at run completion matches what polling
	// reports.
	FailureRateCeil float64
	HealthWindow    int
}

// NewRunner creates a new reconciliation runner.
func NewRunner(cfg RunnerConfig) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = 5 * time.Minute
	}
	retryCfg := cfg.Retry
	if retryCfg.MaxAttempts <= 0 {
		retryCfg = retry.DefaultConfig()
	}
	mapper := cfg.Mapper
	if mapper == nil {
		mapper = NewMapper(nil)
	}
	ceil := cfg.FailureRateCeil
	if ceil <= 0 {
		ceil = defaultFailureRateCeil
	}
	window := cfg.HealthWindow
	if window <= 0 {
		window = defaultHealthWindow
	}
	return &Runner{
		source:          cfg.Source,
		store:           cfg.Store,
		ledger:          cfg.Ledger,
		lock:            cfg.Lock,
		mapper:          mapper,
		limiter:         cfg.Limiter,
		logger:          logger,
		workers:         workers,
		runBudget:       cfg.RunBudget,
		lockTTL:         lockTTL,
		retryCfg:        retryCfg,
		failureRateCeil: ceil,
		healthWindow:    window,
	}
}

// phaseSelection picks which phases a run executes. Full syncs run all
// three; the narrower entry points run one.
type phaseSelection struct {
	additions bool
	updates   bool
	deletions bool
}

var allPhases = phaseSelection{additions: true, updates: true, deletions: true}

// RunFullSync executes all three phases over a fresh snapshot.
func (r *Runner) RunFullSync(ctx context.Context, entityType domain.EntityType, trigger domain.Trigger) (*domain.SyncRun, error) {
	return r.run(ctx, entityType, trigger, allPhases, nil)
}

// RunAdditionsOnly re-runs just the addition phase.
func (r *Runner) RunAdditionsOnly(ctx context.Context, entityType domain.EntityType) (*domain.SyncRun, error) {
	return r.run(ctx, entityType, domain.TriggerManual, phaseSelection{additions: true}, nil)
}

// RunUpdatesOnly re-runs just the update phase, optionally restricted to
// the given business keys.
func (r *Runner) RunUpdatesOnly(ctx context.Context, entityType domain.EntityType, keys []string) (*domain.SyncRun, error) {
	return r.run(ctx, entityType, domain.TriggerManual, phaseSelection{updates: true}, keys)
}

// RunDeletionsOnly re-runs just the deletion phase.
func (r *Runner) RunDeletionsOnly(ctx context.Context, entityType domain.EntityType) (*domain.SyncRun, error) {
	return r.run(ctx, entityType, domain.TriggerManual, phaseSelection{deletions: true}, nil)
}

func (r *Runner) run(ctx context.Context, entityType domain.EntityType, trigger domain.Trigger, phases phaseSelection, onlyKeys []string) (*domain.SyncRun, error) {
	if _, err := domain.ParseEntityType(string(entityType)); err != nil {
		return nil, err
	}

	lockName := lockNamePrefix + string(entityType)
	acquired, err := r.lock.Acquire(ctx, lockName, r.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !acquired {
		return nil, domain.ErrRunInProgress
	}
	defer func() {
		if relErr := r.lock.Release(context.WithoutCancel(ctx), lockName); relErr != nil {
			r.logger.Warn("failed to release run lock", "lock", lockName, "error", relErr)
		}
	}()

	run, err := r.ledger.BeginRun(ctx, entityType, trigger)
	if err != nil {
		return nil, fmt.Errorf("begin run: %w", err)
	}
	logger := r.logger.With("entity_type", entityType, "run_id", run.ID, "trigger", trigger)
	logger.Info("reconciliation started")
	startTime := time.Now()

	runCtx := ctx
	if r.runBudget > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.runBudget)
		defer cancel()
	}
	stopKeepalive := r.keepLockAlive(runCtx, lockName)
	defer stopKeepalive()

	// Full source snapshot; fatal when unreadable, with zero store side
	// effects.
	snapshot, err := retry.DoValue(runCtx, r.retryCfg, func(ctx context.Context) (*domain.SourceSnapshot, error) {
		if waitErr := r.limiter.Wait(ctx, string(entityType)); waitErr != nil {
			return nil, waitErr
		}
		return r.source.ReadAll(ctx, entityType)
	})
	if err != nil {
		if !errors.Is(err, domain.ErrSourceUnavailable) {
			err = fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
		}
		return r.failRun(ctx, run, err, domain.SyncStats{}, logger)
	}

	index, err := r.store.ListActiveKeys(runCtx, entityType)
	if err != nil {
		return r.failRun(ctx, run, fmt.Errorf("list active keys: %w", err), domain.SyncStats{}, logger)
	}

	diff := ComputeDiff(snapshot.Rows, index, func(row domain.SourceRow) string {
		return r.mapper.RowFingerprint(entityType, row)
	})
	for _, w := range diff.Warnings {
		r.recordError(ctx, run.ID, domain.SyncError{
			Key:     w.Key,
			Phase:   domain.PhaseDiff,
			Kind:    domain.ErrorKindWarning,
			Message: w.Message(),
		}, logger)
	}

	total := domain.SyncStats{Unchanged: diff.Unchanged, SkippedRows: snapshot.SkippedRows}
	if err := r.ledger.RecordPhaseResult(ctx, run.ID, domain.PhaseDiff, total); err != nil {
		logger.Warn("failed to record diff result", "error", err)
	}
	logger.Info("diff computed",
		"to_add", len(diff.ToAdd),
		"to_update", len(diff.ToUpdate),
		"to_remove", len(diff.ToRemove),
		"unchanged", diff.Unchanged,
		"skipped_rows", snapshot.SkippedRows,
		"duplicate_warnings", len(diff.Warnings),
	)

	var fatal error
	partial := false

	if phases.additions && fatal == nil {
		stats, stopped, phaseErr := r.additionPhase(runCtx, run.ID, entityType, diff.ToAdd, logger)
		total.Add(stats)
		partial = partial || stopped
		fatal = phaseErr
		if err := r.ledger.RecordPhaseResult(ctx, run.ID, domain.PhaseAddition, stats); err != nil {
			logger.Warn("failed to record phase result", "phase", domain.PhaseAddition, "error", err)
		}
	}
	if phases.updates && fatal == nil {
		// A budget that expired in an earlier phase stops the run here; the
		// store is not touched again.
		if runCtx.Err() != nil {
			partial = true
		} else {
			candidates := filterCandidates(diff.ToUpdate, onlyKeys)
			stats, stopped, phaseErr := r.updatePhase(runCtx, run.ID, entityType, candidates, logger)
			total.Add(stats)
			partial = partial || stopped
			fatal = phaseErr
			if err := r.ledger.RecordPhaseResult(ctx, run.ID, domain.PhaseUpdate, stats); err != nil {
				logger.Warn("failed to record phase result", "phase", domain.PhaseUpdate, "error", err)
			}
		}
	}
	if phases.deletions && fatal == nil {
		if runCtx.Err() != nil {
			partial = true
		} else {
			stats, stopped, phaseErr := r.deletionPhase(runCtx, run.ID, entityType, diff.ToRemove, logger)
			total.Add(stats)
			partial = partial || stopped
			fatal = phaseErr
			if err := r.ledger.RecordPhaseResult(ctx, run.ID, domain.PhaseDeletion, stats); err != nil {
				logger.Warn("failed to record phase result", "phase", domain.PhaseDeletion, "error", err)
			}
		}
	}

	status := domain.RunStatusCompleted
	var errMsg string
	switch {
	case fatal != nil:
		status = domain.RunStatusFailed
		errMsg = fatal.Error()
	case partial:
		// Budget expiry or cancellation: finalized with whatever counters
		// were accumulated, never silently vanished.
		status = domain.RunStatusPartial
		if ctxErr := runCtx.Err(); ctxErr != nil {
			errMsg = fmt.Sprintf("run stopped early: %v", ctxErr)
		}
	}

	r.finalize(ctx, run, status, total, errMsg, logger)
	logger.Info("reconciliation finished",
		"status", status,
		"duration", time.Since(startTime),
		"added", total.Added,
		"updated", total.Updated,
		"removed", total.Removed,
		"unchanged", total.Unchanged,
		"failed", total.Failed,
	)

	if fatal != nil {
		return run, fatal
	}
	return run, nil
}

// additionPhase upserts every row the store has never seen (or whose key
// was previously soft-deleted; those come back as fresh additions).
func (r *Runner) additionPhase(ctx context.Context, runID string, entityType domain.EntityType, rows []domain.SourceRow, logger *slog.Logger) (domain.SyncStats, bool, error) {
	items := make([]workItem, 0, len(rows))
	for _, row := range rows {
		row := row
		items = append(items, workItem{
			key: row.Key,
			do: func(ctx context.Context) (phaseOutcome, error) {
				record, err := r.mapper.ToStoreRecord(entityType, row, nil)
				if err != nil {
					return outcomeApplied, err
				}
				return outcomeApplied, r.writeRecord(ctx, entityType, record)
			},
		})
	}
	applied, _, failed, stopped, fatal := r.runPhase(ctx, runID, domain.PhaseAddition, items, logger)
	return domain.SyncStats{Added: applied, Failed: failed}, stopped, fatal
}

// updatePhase merges each changed row over its stored record. Candidates
// whose merged fingerprint matches the stored one are no-ops: the sheet
// only blanked cells the merge policy retains. They count as unchanged.
func (r *Runner) updatePhase(ctx context.Context, runID string, entityType domain.EntityType, candidates []domain.UpdateCandidate, logger *slog.Logger) (domain.SyncStats, bool, error) {
	if len(candidates) == 0 {
		return domain.SyncStats{}, false, nil
	}

	keys := make([]string, 0, len(candidates))
	for _, c := range candidates {
		keys = append(keys, c.Row.Key)
	}
	existing, err := r.store.GetByKeys(ctx, entityType, keys)
	if err != nil {
		// Budget expiry during the fetch is a stop, not a store failure.
		if ctx.Err() != nil {
			return domain.SyncStats{}, true, nil
		}
		return domain.SyncStats{}, false, fmt.Errorf("fetch update targets: %w", err)
	}

	items := make([]workItem, 0, len(candidates))
	for _, c := range candidates {
		c := c
		items = append(items, workItem{
			key: c.Row.Key,
			do: func(ctx context.Context) (phaseOutcome, error) {
				prior := existing[c.Row.Key]
				record, err := r.mapper.ToStoreRecord(entityType, c.Row, prior)
				if err != nil {
					return outcomeApplied, err
				}
				if prior != nil && record.Fingerprint == prior.Fingerprint {
					return outcomeNoop, nil
				}
				return outcomeApplied, r.writeRecord(ctx, entityType, record)
			},
		})
	}
	applied, noops, failed, stopped, fatal := r.runPhase(ctx, runID, domain.PhaseUpdate, items, logger)
	return domain.SyncStats{Updated: applied, Unchanged: noops, Failed: failed}, stopped, fatal
}

// deletionPhase soft-deletes keys that vanished from the source.
func (r *Runner) deletionPhase(ctx context.Context, runID string, entityType domain.EntityType, keys []string, logger *slog.Logger) (domain.SyncStats, bool, error) {
	items := make([]workItem, 0, len(keys))
	for _, key := range keys {
		key := key
		items = append(items, workItem{
			key: key,
			do: func(ctx context.Context) (phaseOutcome, error) {
				err := retry.Do(ctx, r.retryCfg, func(ctx context.Context) error {
					if waitErr := r.limiter.Wait(ctx, string(entityType)); waitErr != nil {
						return waitErr
					}
					return r.store.SoftDelete(ctx, entityType, key)
				})
				return outcomeApplied, err
			},
		})
	}
	applied, _, failed, stopped, fatal := r.runPhase(ctx, runID, domain.PhaseDeletion, items, logger)
	return domain.SyncStats{Removed: applied, Failed: failed}, stopped, fatal
}

// writeRecord performs one rate-limited, retried upsert.
func (r *Runner) writeRecord(ctx context.Context, entityType domain.EntityType, record *domain.StoreRecord) error {
	return retry.Do(ctx, r.retryCfg, func(ctx context.Context) error {
		if waitErr := r.limiter.Wait(ctx, string(entityType)); waitErr != nil {
			return waitErr
		}
		return r.store.Upsert(ctx, record)
	})
}

// phaseOutcome distinguishes an applied write from a merge no-op.
type phaseOutcome int

const (
	outcomeApplied phaseOutcome = iota
	outcomeNoop
)

// workItem is one per-record unit of work within a phase.
type workItem struct {
	key string
	do  func(ctx context.Context) (phaseOutcome, error)
}

// runPhase dispatches items across the bounded worker pool. Per-record
// failures are recorded and counted, never propagated; a store-unreachable
// error is the one fatal case. When the context ends, admission stops and
// in-flight work is allowed to finish rather than being aborted mid-write.
func (r *Runner) runPhase(ctx context.Context, runID string, phase domain.Phase, items []workItem, logger *slog.Logger) (applied, noops, failed int, stopped bool, fatal error) {
	if len(items) == 0 {
		return 0, 0, 0, false, nil
	}

	sem := make(chan struct{}, r.workers)
	var wg sync.WaitGroup
	var mu sync.Mutex

	// Once admitted, a write runs to completion on a context that survives
	// budget expiry; only admission itself observes the deadline.
	writeCtx := context.WithoutCancel(ctx)

admit:
	for _, item := range items {
		// Cooperative stop check at the top of each unit of work.
		select {
		case <-ctx.Done():
			stopped = true
			break admit
		default:
		}
		mu.Lock()
		abort := fatal != nil
		mu.Unlock()
		if abort {
			break
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			stopped = true
			break admit
		}

		wg.Add(1)
		go func(item workItem) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome, err := item.do(writeCtx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if errors.Is(err, domain.ErrStoreUnavailable) {
					if fatal == nil {
						fatal = fmt.Errorf("%s phase: %w", phase, err)
					}
					return
				}
				failed++
				logger.Warn("record failed",
					"phase", phase,
					"key", item.key,
					"error", err,
				)
				r.recordError(ctx, runID, domain.SyncError{
					Key:     item.key,
					Phase:   phase,
					Kind:    domain.ErrorKindError,
					Message: err.Error(),
				}, logger)
				return
			}
			if outcome == outcomeNoop {
				noops++
			} else {
				applied++
			}
		}(item)
	}

	wg.Wait()
	return applied, noops, failed, stopped, fatal
}

// recordError appends to the ledger, surviving a cancelled run context so
// partial runs keep their error lists.
func (r *Runner) recordError(ctx context.Context, runID string, syncErr domain.SyncError, logger *slog.Logger) {
	if syncErr.CreatedAt.IsZero() {
		syncErr.CreatedAt = time.Now()
	}
	if err := r.ledger.RecordError(context.WithoutCancel(ctx), runID, syncErr); err != nil {
		logger.Warn("failed to record sync error", "key", syncErr.Key, "error", err)
	}
}

// failRun closes a run as failed and returns the cause.
func (r *Runner) failRun(ctx context.Context, run *domain.SyncRun, cause error, stats domain.SyncStats, logger *slog.Logger) (*domain.SyncRun, error) {
	logger.Error("reconciliation failed", "error", cause)
	r.finalize(ctx, run, domain.RunStatusFailed, stats, cause.Error(), logger)
	return run, cause
}

// finalize closes the ledger run with a health snapshot and mirrors the
// terminal state onto the in-memory run. Uses a non-cancellable context:
// even an aborted or timed-out run must persist its partial history.
func (r *Runner) finalize(ctx context.Context, run *domain.SyncRun, status domain.RunStatus, stats domain.SyncStats, errMsg string, logger *slog.Logger) {
	finishCtx := context.WithoutCancel(ctx)

	now := time.Now()
	run.Status = status
	run.Stats = stats
	run.Error = errMsg
	run.FinishedAt = &now

	health := r.healthSnapshot(finishCtx, run)
	run.Health = health

	if err := r.ledger.FinishRun(finishCtx, run.ID, status, stats, health, errMsg); err != nil {
		logger.Error("failed to finalize run", "error", err)
	}
}

// healthSnapshot evaluates health as of this run's completion, folding the
// just-finished run into the recent history.
func (r *Runner) healthSnapshot(ctx context.Context, run *domain.SyncRun) domain.HealthStatus {
	recent, err := r.ledger.ListRuns(ctx, run.EntityType, r.healthWindow)
	if err != nil {
		r.logger.Warn("failed to load run history for health snapshot", "error", err)
		recent = nil
	}
	window := make([]*domain.SyncRun, 0, len(recent)+1)
	window = append(window, run)
	for _, prev := range recent {
		if prev.ID == run.ID {
			continue
		}
		window = append(window, prev)
	}
	if len(window) > r.healthWindow {
		window = window[:r.healthWindow]
	}
	return EvaluateHealth(run.EntityType, window, r.failureRateCeil).Status
}

// keepLockAlive extends the run lock at half-TTL intervals until stopped.
func (r *Runner) keepLockAlive(ctx context.Context, lockName string) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(r.lockTTL / 2)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.lock.Extend(ctx, lockName, r.lockTTL); err != nil {
					r.logger.Warn("failed to extend run lock", "lock", lockName, "error", err)
				}
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// filterCandidates restricts update candidates to the given keys; an empty
// filter keeps everything.
func filterCandidates(candidates []domain.UpdateCandidate, keys []string) []domain.UpdateCandidate {
	if len(keys) == 0 {
		return candidates
	}
	allow := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		allow[k] = struct{}{}
	}
	var out []domain.UpdateCandidate
	for _, c := range candidates {
		if _, ok := allow[c.Row.Key]; ok {
			out = append(out, c)
		}
	}
	return out
}
