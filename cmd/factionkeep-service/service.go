// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/factionkeep/factionkeep/lib/authorization"
	"github.com/factionkeep/factionkeep/lib/clock"
	"github.com/factionkeep/factionkeep/lib/command"
	"github.com/factionkeep/factionkeep/lib/config"
	"github.com/factionkeep/factionkeep/lib/conflict"
	"github.com/factionkeep/factionkeep/lib/cron"
	"github.com/factionkeep/factionkeep/lib/economy"
	"github.com/factionkeep/factionkeep/lib/factionstore"
	"github.com/factionkeep/factionkeep/lib/membership"
	"github.com/factionkeep/factionkeep/lib/provision"
	"github.com/factionkeep/factionkeep/lib/ref"
	"github.com/factionkeep/factionkeep/lib/registry"
	"github.com/factionkeep/factionkeep/messaging"
)

// FactionService is the running daemon: the domain services, the
// command dispatcher fed by /sync, and the admin socket handlers.
type FactionService struct {
	session messaging.Session
	store   *factionstore.Store
	clock   clock.Clock

	registry   *registry.Registry
	membership *membership.Manager
	economy    *economy.Economy
	gate       *authorization.Gate
	dispatcher *command.Dispatcher
	scheduler  *economy.Scheduler
	schedule   cron.Schedule

	// commandRooms limits dispatch; empty means every joined room.
	commandRooms map[ref.RoomID]bool

	// slots bounds concurrently running commands.
	slots    chan struct{}
	inflight sync.WaitGroup

	startedAt time.Time
	logger    *slog.Logger
}

func newFactionService(cfg *config.Config, session messaging.Session, store *factionstore.Store, clk clock.Clock, logger *slog.Logger) (*FactionService, error) {
	location, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	schedule, err := cfg.ResetSchedule()
	if err != nil {
		return nil, err
	}

	provisioner, err := provision.New(provision.Config{
		Session:     session,
		ParentSpace: cfg.ParentSpace(),
		RoomVersion: cfg.Community.RoomVersion,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	registryService, err := registry.New(registry.Config{Store: store, Provisioner: provisioner, Logger: logger})
	if err != nil {
		return nil, err
	}
	membershipService, err := membership.New(membership.Config{Store: store, Provisioner: provisioner, Clock: clk, Logger: logger})
	if err != nil {
		return nil, err
	}
	economyService, err := economy.New(economy.Config{
		Store:         store,
		Clock:         clk,
		Location:      location,
		CheckinPoints: int64(cfg.Economy.CheckinPoints),
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}
	scheduler, err := economy.NewScheduler(economy.SchedulerConfig{
		Resetter: economyService,
		Schedule: schedule,
		Clock:    clk,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	graph, err := conflict.New(conflict.Config{Store: store, Logger: logger})
	if err != nil {
		return nil, err
	}
	gate, err := authorization.New(authorization.Config{
		Store:           store,
		Directory:       authorization.MatrixDirectory{Session: session},
		AdminPowerLevel: cfg.Community.AdminPowerLevel,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}
	dispatcher, err := command.New(command.Config{
		Session:    session,
		Registry:   registryService,
		Membership: membershipService,
		Economy:    economyService,
		Conflicts:  graph,
		Gate:       gate,
		Prefix:     cfg.Community.CommandPrefix,
		Timeout:    cfg.Service.CommandTimeout,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating command dispatcher: %w", err)
	}

	commandRooms := make(map[ref.RoomID]bool)
	for _, room := range cfg.CommandRooms() {
		commandRooms[room] = true
	}

	return &FactionService{
		session:      session,
		store:        store,
		clock:        clk,
		registry:     registryService,
		membership:   membershipService,
		economy:      economyService,
		gate:         gate,
		dispatcher:   dispatcher,
		scheduler:    scheduler,
		schedule:     schedule,
		commandRooms: commandRooms,
		slots:        make(chan struct{}, cfg.Service.MaxConcurrentCommands),
		startedAt:    clk.Now(),
		logger:       logger,
	}, nil
}

// wait blocks until every dispatched command has replied.
func (s *FactionService) wait() {
	s.inflight.Wait()
}
