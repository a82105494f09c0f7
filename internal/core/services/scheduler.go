package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/keystone-labs/propsync-core/internal/core/domain"
	"github.com/keystone-labs/propsync-core/internal/core/ports/driving"
)

// Scheduler kicks off periodic full syncs for each entity type.
// Overlap protection lives in the runner's per-entity lock, so a tick that
// lands while the previous run is still in flight is simply skipped.
type Scheduler struct {
	reconciler driving.Reconciler
	logger     *slog.Logger

	entityTypes []domain.EntityType
	interval    time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// SchedulerConfig holds configuration for the scheduler.
type SchedulerConfig struct {
	Reconciler driving.Reconciler
	Logger     *slog.Logger

	// EntityTypes to sync each tick (default: all).
	EntityTypes []domain.EntityType
	// Interval between full syncs (default: 15m).
	Interval time.Duration
}

// NewScheduler creates a new scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	entityTypes := cfg.EntityTypes
	if len(entityTypes) == 0 {
		entityTypes = domain.AllEntityTypes()
	}
	return &Scheduler{
		reconciler:  cfg.Reconciler,
		logger:      logger,
		entityTypes: entityTypes,
		interval:    interval,
	}
}

// Start begins the scheduling loop. It runs until Stop is called or the
// context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("scheduler starting", "interval", s.interval, "entity_types", len(s.entityTypes))

	go s.run(ctx)

	return nil
}

// Stop gracefully stops the scheduler, waiting for an in-flight cycle.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.mu.Unlock()

	<-s.doneCh

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler context cancelled")
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.syncAll(ctx)
		}
	}
}

// syncAll runs one full sync per entity type, sequentially. Sequential on
// purpose: the source backend rate-limits per credential, not per tab.
func (s *Scheduler) syncAll(ctx context.Context) {
	for _, entityType := range s.entityTypes {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		run, err := s.reconciler.RunFullSync(ctx, entityType, domain.TriggerScheduled)
		switch {
		case errors.Is(err, domain.ErrRunInProgress):
			s.logger.Debug("sync already in flight, skipping tick", "entity_type", entityType)
		case err != nil:
			s.logger.Error("scheduled sync failed", "entity_type", entityType, "error", err)
		default:
			s.logger.Info("scheduled sync finished",
				"entity_type", entityType,
				"run_id", run.ID,
				"status", run.Status,
			)
		}
	}
}
