// Package reporter runs a periodic job that logs aggregate observation
// counts — how many distinct entities this probe has ever recorded, and how
// many total observations they represent — at a configurable schedule.
package reporter

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"go-polyglot-persistence/internal/store"
)

// Start registers the stats report on the given cron schedule and starts
// the scheduler. Returns an error if the schedule string is invalid so the
// caller can fail fast instead of silently never reporting.
//
// The returned *cron.Cron must be stopped on shutdown:
//
//	c, err := reporter.Start(cfg.StatsSchedule, s)
//	<-c.Stop().Done() // Stop returns at once; Done closes when any running report finishes
func Start(schedule string, s *store.Store) (*cron.Cron, error) {
	c := cron.New()

	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		distinct, total, err := s.EntityCounts(ctx)
		if err != nil {
			slog.Error("stats report failed", "component", "reporter", "error", err)
			return
		}
		slog.Info("stats report",
			"component", "reporter",
			"distinct_entities", distinct,
			"total_observations", total,
		)
	})
	if err != nil {
		return nil, err
	}

	c.Start()
	slog.Info("stats reporter started", "component", "reporter", "schedule", schedule)
	return c, nil
}
