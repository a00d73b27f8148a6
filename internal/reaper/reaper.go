// Package reaper sweeps runs stuck in running state and force-fails them
// so overlap guards release and operators see the timeout.
package reaper

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/ingestion-orchestrator/internal/ingest"
	"github.com/JakeFAU/ingestion-orchestrator/internal/metrics"
)

// Config controls the sweep loop.
type Config struct {
	// Interval is how often the sweep runs.
	Interval time.Duration
	// StuckTimeout is how long a run may stay in running state before it
	// is considered abandoned.
	StuckTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 15 * time.Minute
	}
	if c.StuckTimeout <= 0 {
		c.StuckTimeout = time.Hour
	}
}

// Reaper owns the stuck-run sweep.
type Reaper struct {
	runs   ingest.RunStore
	clock  ingest.Clock
	logger *zap.Logger
	cfg    Config
}

// NewReaper constructs a Reaper.
func NewReaper(runs ingest.RunStore, clock ingest.Clock, cfg Config, logger *zap.Logger) *Reaper {
	cfg.applyDefaults()
	return &Reaper{runs: runs, clock: clock, logger: logger, cfg: cfg}
}

// Run sweeps on the configured interval until the context is cancelled.
// Sweep errors are logged and the loop keeps going.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.logger.Info("reaper started",
		zap.Duration("interval", r.cfg.Interval),
		zap.Duration("stuck_timeout", r.cfg.StuckTimeout),
	)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper stopped")
			return
		case <-ticker.C:
			if _, err := r.CleanupStuckRuns(ctx); err != nil {
				r.logger.Error("stuck run sweep failed", zap.Error(err))
			}
		}
	}
}

// CleanupStuckRuns force-fails every run that has been in running state
// longer than the stuck timeout and returns how many were transitioned.
// Runs that turn terminal between the list and the update are not counted.
func (r *Reaper) CleanupStuckRuns(ctx context.Context) (int, error) {
	now := r.clock.Now()
	cutoff := now.Add(-r.cfg.StuckTimeout)

	stuck, err := r.runs.ListStuckRuns(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list stuck runs: %w", err)
	}

	reaped := 0
	for _, run := range stuck {
		elapsed := int(now.Sub(run.StartedAt) / time.Minute)
		outcome := ingest.RunOutcome{
			Status:       ingest.RunStatusFailed,
			CompletedAt:  now,
			Counters:     run.Counters,
			ErrorMessage: fmt.Sprintf("Timeout cleanup - run was stuck for %d minutes", elapsed),
		}

		applied, err := r.runs.CompleteRun(ctx, run.ID, outcome)
		if err != nil {
			r.logger.Error("failed to reap run",
				zap.Int64("run_id", run.ID),
				zap.String("source_id", run.SourceID),
				zap.Error(err),
			)
			continue
		}
		if !applied {
			continue
		}

		reaped++
		r.logger.Warn("reaped stuck run",
			zap.Int64("run_id", run.ID),
			zap.String("source_id", run.SourceID),
			zap.Int("stuck_minutes", elapsed),
		)
	}

	if reaped > 0 {
		metrics.AddReaped(reaped)
		r.logger.Info("stuck run sweep finished", zap.Int("reaped", reaped))
	}
	return reaped, nil
}
