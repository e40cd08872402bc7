// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/factionkeep/factionkeep/lib/clock"
	"github.com/factionkeep/factionkeep/lib/config"
	"github.com/factionkeep/factionkeep/lib/factionstore"
	"github.com/factionkeep/factionkeep/lib/service"
	"github.com/factionkeep/factionkeep/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		showVersion bool
	)
	flags := pflag.NewFlagSet("factionkeep-service", pflag.ContinueOnError)
	flags.StringVarP(&configPath, "config", "c", "", "path to the YAML config file (default: $FACTIONKEEP_CONFIG)")
	flags.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	if showVersion {
		fmt.Printf("factionkeep-service %s\n", version.Info())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	credentials, err := config.LoadCredentials()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.Real()

	store, err := factionstore.Open(factionstore.Config{
		Path:     cfg.Store.Path,
		PoolSize: cfg.Store.PoolSize,
		Clock:    clk,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	// Load and validate the Matrix session.
	_, session, err := service.OpenSession(cfg.Homeserver.URL, cfg.Homeserver.SessionFile, credentials, logger)
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}
	defer session.Close()

	userID, err := service.ValidateSession(ctx, session)
	if err != nil {
		return err
	}
	if userID != session.UserID() {
		return fmt.Errorf("access token belongs to %s, not %s", userID, session.UserID())
	}
	logger.Info("matrix session valid", "user_id", userID)

	factionService, err := newFactionService(cfg, session, store, clk, logger)
	if err != nil {
		return err
	}

	// The backlog from before startup is not replayed: only invites
	// are acted on.
	sinceToken, err := factionService.initialSync(ctx)
	if err != nil {
		return err
	}

	socketServer := service.NewSocketServer(cfg.Service.SocketPath, logger)
	socketServer.ActionTimeout = cfg.Service.CommandTimeout
	factionService.registerActions(socketServer)

	socketDone := make(chan error, 1)
	go func() {
		socketDone <- socketServer.Serve(ctx)
	}()

	schedulerDone := make(chan error, 1)
	go func() {
		schedulerDone <- factionService.scheduler.Run(ctx)
	}()

	go service.RunSyncLoop(ctx, session, service.SyncConfig{
		Filter: syncFilter,
	}, sinceToken, factionService.handleSync, clk, logger)

	logger.Info("factionkeep service running",
		"version", version.Info(),
		"environment", cfg.Environment,
		"socket", cfg.Service.SocketPath,
		"prefix", cfg.Community.CommandPrefix,
	)

	select {
	case <-ctx.Done():
	case err := <-schedulerDone:
		// Only an unsatisfiable schedule ends the scheduler early.
		logger.Error("reset scheduler stopped", "error", err)
		stop()
	}
	logger.Info("shutting down")

	if err := <-socketDone; err != nil {
		logger.Error("socket server error", "error", err)
	}
	factionService.wait()
	return nil
}

// loadConfig reads the file named by --config, or falls back to
// config.Load for $FACTIONKEEP_CONFIG.
func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
