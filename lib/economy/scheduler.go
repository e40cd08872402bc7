// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package economy

import (
	"context"
	"errors"
	"log/slog"

	"github.com/factionkeep/factionkeep/lib/clock"
	"github.com/factionkeep/factionkeep/lib/cron"
)

// Resetter is the operation the scheduler runs. *Economy implements it.
type Resetter interface {
	WeeklyReset(ctx context.Context) (int, error)
}

// SchedulerConfig holds the scheduler's collaborators.
type SchedulerConfig struct {
	Resetter Resetter

	// Schedule decides when resets happen, in its own location.
	Schedule cron.Schedule

	Clock  clock.Clock
	Logger *slog.Logger
}

// Scheduler runs the weekly reset on a cron schedule.
type Scheduler struct {
	resetter Resetter
	schedule cron.Schedule
	clock    clock.Clock
	logger   *slog.Logger
}

// NewScheduler creates a Scheduler.
func NewScheduler(config SchedulerConfig) (*Scheduler, error) {
	if config.Resetter == nil {
		return nil, errors.New("economy: Resetter is required")
	}
	if config.Clock == nil {
		return nil, errors.New("economy: Clock is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		resetter: config.Resetter,
		schedule: config.Schedule,
		clock:    config.Clock,
		logger:   logger,
	}, nil
}

// Run waits for each scheduled time and resets points, until ctx is
// cancelled. A failed reset is logged and the next occurrence is still
// honored. Occurrences missed while the process was down are not
// replayed.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		now := s.clock.Now()
		next, err := s.schedule.Next(now)
		if err != nil {
			return err
		}
		s.logger.Debug("next points reset scheduled", "at", next)

		select {
		case <-ctx.Done():
			return nil
		case <-s.clock.After(next.Sub(now)):
		}

		count, err := s.resetter.WeeklyReset(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Error("scheduled points reset failed", "scheduled_for", next, "error", err)
			continue
		}
		s.logger.Info("scheduled points reset", "scheduled_for", next, "factions", count)
	}
}
