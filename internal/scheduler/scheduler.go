// Package scheduler turns recurrence rules into dispatch jobs. Each tick
// expands every recurring notification over the window since the previous
// tick and enqueues one job per occurrence. Delivery-side deduplication makes
// overlapping windows harmless.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"notification-workers/internal/dispatch"
	"notification-workers/internal/models"
	"notification-workers/internal/recurrence"
)

// RecurringLister loads every notification governed by a recurrence rule.
type RecurringLister interface {
	ListRecurring(ctx context.Context) ([]*models.Notification, error)
}

// Scheduler drives the recurrence tick loop.
type Scheduler struct {
	store    RecurringLister
	queue    dispatch.Enqueuer
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func New(store RecurringLister, queue dispatch.Enqueuer, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		queue:    queue,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Run ticks until the context is cancelled. Occurrences are collected over
// the half-open window (lastTick, now]; an occurrence falling exactly on a
// tick boundary is picked up by exactly one window.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	last := s.now().UTC()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			now := s.now().UTC()
			s.Tick(ctx, last, now)
			last = now
		}
	}
}

// Tick expands and enqueues every occurrence in (after, until].
func (s *Scheduler) Tick(ctx context.Context, after, until time.Time) {
	notifications, err := s.store.ListRecurring(ctx)
	if err != nil {
		s.logger.Error("failed to list recurring notifications", zap.Error(err))
		return
	}

	enqueued := 0
	for _, n := range notifications {
		if n.Recurrence == nil {
			continue
		}
		for _, occ := range recurrence.Between(n.Recurrence, after, until) {
			payload := dispatch.NewDispatchPayload(n.ID, occ)
			if err := s.queue.Enqueue(ctx, dispatch.JobDispatch, payload); err != nil {
				// The next tick will not revisit this window; log loudly.
				s.logger.Error("failed to enqueue occurrence",
					zap.String("notification_id", n.ID.String()),
					zap.Time("occurrence", occ),
					zap.Error(err))
				continue
			}
			enqueued++
		}
	}
	if enqueued > 0 {
		s.logger.Info("scheduler tick enqueued occurrences",
			zap.Int("count", enqueued),
			zap.Time("window_start", after),
			zap.Time("window_end", until))
	}
}
