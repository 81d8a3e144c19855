package core

// scheduler.go runs background maintenance for run statistics.
//
// Stores that cannot expire records on their own implement StatsPurger.
// The sweeper purges once at startup, then on the configured cron schedule,
// and stops when its context is cancelled. A failed sweep is logged and
// retried on the next tick.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// StartStatsSweeper blocks until ctx is done, purging expired run records
// on schedule (standard cron syntax or descriptors such as "@every 1h").
func StartStatsSweeper(ctx context.Context, purger StatsPurger, schedule string) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { runStatsSweep(ctx, purger) }); err != nil {
		return fmt.Errorf("stats sweep schedule %q: %w", schedule, err)
	}

	slog.Info("stats sweeper started", "schedule", schedule)
	runStatsSweep(ctx, purger)

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()

	slog.Info("stats sweeper stopped")
	return nil
}

func runStatsSweep(ctx context.Context, purger StatsPurger) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	purged, err := purger.PurgeExpired(ctx)
	if err != nil {
		slog.Error("stats sweep failed", "error", err)
		return
	}
	slog.Info("stats sweep completed",
		"records_purged", purged,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
