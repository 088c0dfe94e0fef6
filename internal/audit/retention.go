package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Retention prunes request logs older than a fixed age on a cron schedule
type Retention struct {
	pruner   Pruner
	maxAge   time.Duration
	schedule string
	cron     *cron.Cron
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	running bool
}

// NewRetention creates a retention scheduler. A zero maxAge or an empty
// schedule disables pruning.
func NewRetention(pruner Pruner, maxAge time.Duration, schedule string, logger *slog.Logger) *Retention {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retention{
		pruner:   pruner,
		maxAge:   maxAge,
		schedule: schedule,
		cron:     cron.New(),
		logger:   logger.With("component", "audit.retention"),
		now:      time.Now,
	}
}

// Start schedules pruning until ctx is cancelled or Stop is called
func (r *Retention) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.schedule == "" || r.maxAge <= 0 {
		r.logger.Info("log retention not configured, skipping scheduler")
		return nil
	}

	if _, err := cron.ParseStandard(r.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", r.schedule, err)
	}

	if _, err := r.cron.AddFunc(r.schedule, func() {
		r.runPruning(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule pruning: %w", err)
	}

	r.cron.Start()
	r.running = true

	r.logger.Info("log retention started",
		"schedule", r.schedule,
		"max_age", r.maxAge.String(),
	)

	go func() {
		<-ctx.Done()
		r.Stop()
	}()

	return nil
}

// Prune deletes logs older than the configured age
func (r *Retention) Prune(ctx context.Context) (int64, error) {
	return r.pruner.PruneBefore(ctx, r.now().Add(-r.maxAge))
}

func (r *Retention) runPruning(ctx context.Context) {
	deleted, err := r.Prune(ctx)
	if err != nil {
		r.logger.Error("scheduled pruning failed", "error", err)
		return
	}

	if deleted > 0 {
		r.logger.Info("scheduled pruning completed", "deleted_count", deleted)
	} else {
		r.logger.Debug("scheduled pruning completed, no logs deleted")
	}
}

// Stop stops the scheduler and waits for a running prune to finish
func (r *Retention) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		<-r.cron.Stop().Done()
		r.running = false
		r.logger.Info("log retention stopped")
	}
}

// IsRunning reports whether pruning is scheduled
func (r *Retention) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// NextRun returns the next scheduled prune, or nil when not running
func (r *Retention) NextRun() *time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return nil
	}
	entries := r.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
