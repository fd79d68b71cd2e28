package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper periodically purges expired overrides on a cron schedule.
type Sweeper struct {
	store  OverrideStore
	spec   string
	now    func() time.Time
	logger *slog.Logger
}

// NewSweeper creates a sweeper running on spec (standard 5-field cron).
func NewSweeper(store OverrideStore, spec string, now func() time.Time, logger *slog.Logger) *Sweeper {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{store: store, spec: spec, now: now, logger: logger}
}

// Run schedules the sweep and blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(s.spec, func() { s.Sweep(ctx) }); err != nil {
		return fmt.Errorf("add sweep job %q: %w", s.spec, err)
	}

	c.Start()
	s.logger.Info("override sweeper started", "spec", s.spec)

	<-ctx.Done()

	<-c.Stop().Done()
	s.logger.Info("override sweeper stopped")
	return nil
}

// Sweep deletes every override that is no longer active and returns how many
// were removed.
func (s *Sweeper) Sweep(ctx context.Context) int {
	removed, err := s.store.DeleteExpired(ctx, s.now())
	if err != nil {
		s.logger.Error("override sweep failed", "error", err)
		return 0
	}
	if removed > 0 {
		s.logger.Info("expired overrides purged", "count", removed)
	}
	return removed
}
