// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/factionkeep/factionkeep/cmd/factionkeep/cli"
	"github.com/factionkeep/factionkeep/lib/secret"
	"github.com/factionkeep/factionkeep/lib/service"
	"github.com/factionkeep/factionkeep/messaging"
)

func loginCommand() *cli.Command {
	var (
		configPath    string
		homeserverURL string
		passwordFile  string
		sessionFile   string
	)
	return &cli.Command{
		Name:    "login",
		Summary: "Log the bot account in and save its session",
		Description: `Log in to the homeserver as the bot account and save the access token
to homeserver.session_file, where factionkeep-service reads it at
startup. The file is written with mode 0600.

The password is read from --password-file, or prompted for when the
flag is omitted or "-".`,
		Usage: "factionkeep login <username> [flags]",
		Examples: []cli.Example{
			{Description: "Log in interactively", Command: "factionkeep login factionkeep"},
			{Description: "Log in with the password in a file", Command: "factionkeep login factionkeep --password-file /run/secrets/bot-password"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("login", pflag.ContinueOnError)
			flagSet.StringVarP(&configPath, "config", "c", "", "config file (default: $FACTIONKEEP_CONFIG)")
			flagSet.StringVar(&homeserverURL, "homeserver", "", "homeserver URL (overrides homeserver.url)")
			flagSet.StringVar(&sessionFile, "session-file", "", "where to save the session (overrides homeserver.session_file)")
			flagSet.StringVar(&passwordFile, "password-file", "", "file containing the password, or - to prompt")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return cli.Validation("expected exactly one username\n\nUsage: factionkeep login <username>")
			}
			username := args[0]

			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if homeserverURL == "" {
				homeserverURL = cfg.Homeserver.URL
			}
			if sessionFile == "" {
				sessionFile = cfg.Homeserver.SessionFile
			}
			if homeserverURL == "" {
				return cli.Validation("no homeserver URL: set homeserver.url or pass --homeserver")
			}

			password, err := readPassword(passwordFile)
			if err != nil {
				return err
			}
			defer password.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			logger := cli.NewCommandLogger(slog.LevelWarn)

			userID, err := login(ctx, homeserverURL, username, password, sessionFile, logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Logged in as %s\n", userID)
			fmt.Fprintf(os.Stderr, "Session saved to %s\n", sessionFile)
			return nil
		},
	}
}

// login authenticates, verifies the token with WhoAmI, and saves the
// session.
func login(ctx context.Context, homeserverURL, username string, password *secret.Buffer, sessionFile string, logger *slog.Logger) (string, error) {
	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: homeserverURL,
		Logger:        logger,
	})
	if err != nil {
		return "", cli.Validation("homeserver: %w", err)
	}
	session, err := client.Login(ctx, username, password)
	if err != nil {
		if messaging.IsMatrixError(err, messaging.ErrCodeForbidden) {
			return "", &cli.CommandError{Category: cli.CategoryForbidden, Err: fmt.Errorf("login rejected: %w", err)}
		}
		return "", cli.Unavailable("login failed: %w", err)
	}
	defer session.Close()

	userID, err := service.ValidateSession(ctx, session)
	if err != nil {
		return "", cli.Unavailable("%w", err)
	}
	if err := service.SaveSession(sessionFile, homeserverURL, session); err != nil {
		return "", cli.Internal("%w", err)
	}
	return userID.String(), nil
}

// readPassword reads the password from a file, stripping trailing
// newlines, or prompts on the terminal with echo disabled.
func readPassword(passwordFile string) (*secret.Buffer, error) {
	var data []byte
	if passwordFile != "" && passwordFile != "-" {
		raw, err := os.ReadFile(passwordFile)
		if err != nil {
			return nil, cli.Validation("reading password: %w", err)
		}
		data = raw
		for len(data) > 0 && (data[len(data)-1] == '\n' || data[len(data)-1] == '\r') {
			data = data[:len(data)-1]
		}
	} else {
		stdin := int(os.Stdin.Fd())
		if !term.IsTerminal(stdin) {
			return nil, cli.Validation("no terminal for the password prompt (use --password-file)")
		}
		fmt.Fprint(os.Stderr, "Password: ")
		raw, err := term.ReadPassword(stdin)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, cli.Internal("reading password: %w", err)
		}
		data = raw
	}

	if len(data) == 0 {
		secret.Zero(data)
		return nil, cli.Validation("password is empty")
	}
	buffer, err := secret.NewFromBytes(data)
	if err != nil {
		secret.Zero(data)
		return nil, cli.Internal("%w", err)
	}
	return buffer, nil
}
