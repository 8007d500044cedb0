package dedup

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule evicts expired entries once a minute.
const DefaultSweepSchedule = "@every 1m"

// Sweeper periodically evicts expired entries from a group of sets so
// memory stays bounded by traffic within the window.
type Sweeper struct {
	cron *cron.Cron
	sets []*Set
}

// NewSweeper schedules Sweep on every set. schedule accepts standard
// 5-field cron expressions and descriptors such as "@every 30s".
func NewSweeper(schedule string, sets ...*Set) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	s := &Sweeper{
		cron: cron.New(),
		sets: sets,
	}
	if _, err := s.cron.AddFunc(schedule, s.sweepAll); err != nil {
		return nil, fmt.Errorf("dedup: sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start begins running sweeps in the background.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish or ctx
// to be done.
func (s *Sweeper) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

func (s *Sweeper) sweepAll() {
	for _, set := range s.sets {
		if removed := set.Sweep(); removed > 0 {
			slog.Debug("dedup entries evicted", "set", set.Name(), "removed", removed, "live", set.Len())
		}
	}
}
