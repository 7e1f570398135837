package collector

import (
	"context"
	"time"
)

// cleanupHourUTC is when the daily retention sweep runs.
const cleanupHourUTC = 2

// Run is the in-process stand-in for an external scheduler: it collects every
// interval and sweeps expired snapshots daily at 02:00 UTC. It blocks until
// the context is cancelled; callers run it in its own goroutine.
func (c *Collector) Run(ctx context.Context, interval time.Duration, retentionDays int) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	cleanup := time.NewTimer(untilNextCleanup(time.Now().UTC()))
	defer cleanup.Stop()

	c.logger.Info("collector started", "interval", interval, "retention_days", retentionDays)
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("collector stopped")
			return
		case <-ticker.C:
			c.CollectAll(ctx)
		case <-cleanup.C:
			c.CleanupAll(ctx, retentionDays)
			cleanup.Reset(untilNextCleanup(time.Now().UTC()))
		}
	}
}

func untilNextCleanup(now time.Time) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), cleanupHourUTC, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}
