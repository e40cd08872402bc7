// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

// Package economy runs the engagement points system: daily check-ins
// that credit the member's faction, the leaderboard, and the weekly
// reset.
//
// A "day" is a calendar date in the community timezone. The check-in
// guard and the credit are written in one immediate transaction, guard
// first, so concurrent check-ins by the same user credit once.
package economy

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/factionkeep/factionkeep/lib/clock"
	"github.com/factionkeep/factionkeep/lib/faction"
	"github.com/factionkeep/factionkeep/lib/factionstore"
	"github.com/factionkeep/factionkeep/lib/ref"
)

// DayLayout formats check-in days.
const DayLayout = "2006-01-02"

// Config holds the economy's collaborators and settings.
type Config struct {
	Store *factionstore.Store
	Clock clock.Clock

	// Location is the community timezone; nil means UTC.
	Location *time.Location

	// CheckinPoints is credited per check-in.
	CheckinPoints int64

	Logger *slog.Logger
}

// Economy is safe for concurrent use.
type Economy struct {
	store    *factionstore.Store
	clock    clock.Clock
	location *time.Location
	points   int64
	logger   *slog.Logger
}

// New creates an Economy.
func New(config Config) (*Economy, error) {
	if config.Store == nil {
		return nil, errors.New("economy: Store is required")
	}
	if config.Clock == nil {
		return nil, errors.New("economy: Clock is required")
	}
	if config.CheckinPoints <= 0 {
		return nil, errors.New("economy: CheckinPoints must be positive")
	}
	location := config.Location
	if location == nil {
		location = time.UTC
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Economy{
		store:    config.Store,
		clock:    config.Clock,
		location: location,
		points:   config.CheckinPoints,
		logger:   logger,
	}, nil
}

// CheckinResult reports a credited check-in.
type CheckinResult struct {
	Faction  string `json:"faction"`
	Day      string `json:"day"`
	Credited int64  `json:"credited"`

	// Total is the faction's points after the credit.
	Total int64 `json:"total"`
}

// Today is the current check-in day.
func (e *Economy) Today() string {
	return e.clock.Now().In(e.location).Format(DayLayout)
}

// Checkin credits the user's faction once per day.
// faction.ErrNotAffiliated when the user has no faction;
// faction.ErrAlreadyCheckedIn on a second check-in the same day.
func (e *Economy) Checkin(ctx context.Context, user ref.UserID) (CheckinResult, error) {
	day := e.Today()
	result, err := e.store.Checkin(ctx, user, day, e.points)
	if err != nil {
		return CheckinResult{}, err
	}
	e.logger.Info("checked in", "user", user, "faction", result.Faction, "day", day, "total", result.Points)
	return CheckinResult{Faction: result.Faction, Day: day, Credited: e.points, Total: result.Points}, nil
}

// WeeklyReset sets every faction's points to zero and returns how many
// factions were reset.
func (e *Economy) WeeklyReset(ctx context.Context) (int, error) {
	count, err := e.store.ResetPoints(ctx)
	if err != nil {
		return 0, err
	}
	e.logger.Info("points reset", "factions", count)
	return count, nil
}

// Leaderboard returns up to limit factions by points descending, then
// name. A limit of zero or less returns all of them.
func (e *Economy) Leaderboard(ctx context.Context, limit int) ([]faction.Faction, error) {
	return e.store.ListFactions(ctx, limit)
}
