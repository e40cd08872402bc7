// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"io"
	"time"

	"github.com/spf13/pflag"

	"github.com/factionkeep/factionkeep/cmd/factionkeep/cli"
	"github.com/factionkeep/factionkeep/lib/config"
	"github.com/factionkeep/factionkeep/lib/service"
)

// Root builds the factionkeep command tree. Command output goes to
// stdout; help and logs go to stderr.
func Root(stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "factionkeep",
		Summary: "Operate a factionkeep community bot",
		Description: `factionkeep talks to a running factionkeep-service over its admin
socket. Every action runs with operator authority; the socket is
readable only by the user the service runs as.`,
		Subcommands: []*cli.Command{
			loginCommand(),
			statusCommand(stdout),
			leaderboardCommand(stdout),
			resetCommand(stdout),
			trustedCommand(stdout),
			repairCommand(stdout),
			auditCommand(stdout),
			versionCommand(stdout),
		},
	}
}

// connection holds the flags every socket command shares.
type connection struct {
	configPath string
	socketPath string
	timeout    time.Duration
	json       bool
}

func (c *connection) register(flagSet *pflag.FlagSet) {
	flagSet.StringVarP(&c.configPath, "config", "c", "", "config file (default: $FACTIONKEEP_CONFIG)")
	flagSet.StringVar(&c.socketPath, "socket", "", "admin socket path (overrides service.socket_path)")
	flagSet.DurationVar(&c.timeout, "timeout", time.Minute, "how long to wait for the service")
	flagSet.BoolVar(&c.json, "json", false, "output as JSON")
}

// flags returns a Flags function that registers the shared flags
// plus any extra ones.
func (c *connection) flags(name string, extra func(*pflag.FlagSet)) func() *pflag.FlagSet {
	return func() *pflag.FlagSet {
		flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
		c.register(flagSet)
		if extra != nil {
			extra(flagSet)
		}
		return flagSet
	}
}

// socket resolves the admin socket: --socket, then the config file,
// then the default path.
func (c *connection) socket() (string, error) {
	if c.socketPath != "" {
		return c.socketPath, nil
	}
	cfg, err := loadConfig(c.configPath)
	if err != nil {
		return "", err
	}
	return cfg.Service.SocketPath, nil
}

// call runs one admin action.
func (c *connection) call(action string, fields, result any) error {
	socketPath, err := c.socket()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if err := service.NewClient(socketPath).Call(ctx, action, fields, result); err != nil {
		return cli.Categorize(err)
	}
	return nil
}

// loadConfig reads path, or $FACTIONKEEP_CONFIG, or falls back to
// the built-in defaults when neither is set. The CLI only needs paths,
// so the file is not validated.
func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	switch {
	case path != "":
		cfg, err = config.LoadFile(path)
	case config.PathFromEnvironment() != "":
		cfg, err = config.Load()
	default:
		cfg, err = config.Parse(nil)
	}
	if err != nil {
		return nil, cli.Validation("%w", err)
	}
	return cfg, nil
}
