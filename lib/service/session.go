// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/factionkeep/factionkeep/lib/config"
	"github.com/factionkeep/factionkeep/lib/ref"
	"github.com/factionkeep/factionkeep/lib/secret"
	"github.com/factionkeep/factionkeep/messaging"
)

// SessionData is the JSON structure of the session file written by
// "factionkeep login".
type SessionData struct {
	HomeserverURL string `json:"homeserver_url"`
	UserID        string `json:"user_id"`
	AccessToken   string `json:"access_token"`
}

// LoadSession reads the Matrix session from sessionPath and returns an
// authenticated client and session. A non-empty homeserverURL
// overrides the URL stored in the file.
//
// The access token is moved into mmap-backed guarded memory by the
// messaging library and the raw JSON bytes are zeroed after parsing.
// The caller must call Session.Close to release the guarded memory.
func LoadSession(sessionPath, homeserverURL string, logger *slog.Logger) (*messaging.Client, *messaging.DirectSession, error) {
	jsonData, err := os.ReadFile(sessionPath)
	if err != nil {
		return nil, nil, fmt.Errorf("reading session from %s: %w", sessionPath, err)
	}

	var data SessionData
	if err := json.Unmarshal(jsonData, &data); err != nil {
		secret.Zero(jsonData)
		return nil, nil, fmt.Errorf("parsing session from %s: %w", sessionPath, err)
	}
	secret.Zero(jsonData)

	if data.AccessToken == "" {
		return nil, nil, fmt.Errorf("session file %s has empty access token", sessionPath)
	}

	serverURL := homeserverURL
	if serverURL == "" {
		serverURL = data.HomeserverURL
	}
	client, session, err := sessionFromToken(serverURL, data.UserID, data.AccessToken, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("session file %s: %w", sessionPath, err)
	}
	return client, session, nil
}

// SessionFromCredentials builds a session from credentials supplied
// through the environment.
func SessionFromCredentials(homeserverURL string, credentials config.Credentials, logger *slog.Logger) (*messaging.Client, *messaging.DirectSession, error) {
	if !credentials.Present() {
		return nil, nil, fmt.Errorf("no credentials in the environment")
	}
	return sessionFromToken(homeserverURL, credentials.UserID, credentials.AccessToken, logger)
}

// OpenSession prefers environment credentials and falls back to the
// session file.
func OpenSession(homeserverURL, sessionPath string, credentials config.Credentials, logger *slog.Logger) (*messaging.Client, *messaging.DirectSession, error) {
	if credentials.Present() {
		logger.Info("using matrix credentials from the environment")
		return SessionFromCredentials(homeserverURL, credentials, logger)
	}
	return LoadSession(sessionPath, homeserverURL, logger)
}

func sessionFromToken(homeserverURL, rawUserID, accessToken string, logger *slog.Logger) (*messaging.Client, *messaging.DirectSession, error) {
	if homeserverURL == "" {
		return nil, nil, fmt.Errorf("no homeserver URL")
	}
	userID, err := ref.ParseUserID(rawUserID)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid user_id: %w", err)
	}
	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: homeserverURL,
		Logger:        logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating matrix client: %w", err)
	}
	session, err := client.SessionFromToken(userID, accessToken)
	if err != nil {
		return nil, nil, err
	}
	return client, session, nil
}

// SaveSession writes a Matrix session to sessionPath with mode 0600,
// creating the parent directory if needed.
//
// The JSON bytes are zeroed after writing to limit the window during
// which the access token exists in process memory as cleartext.
func SaveSession(sessionPath, homeserverURL string, session *messaging.DirectSession) error {
	data := SessionData{
		HomeserverURL: homeserverURL,
		UserID:        session.UserID().String(),
		AccessToken:   session.AccessToken(),
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	defer secret.Zero(jsonData)

	if err := os.MkdirAll(filepath.Dir(sessionPath), 0o700); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}
	if err := os.WriteFile(sessionPath, jsonData, 0o600); err != nil {
		return fmt.Errorf("writing session to %s: %w", sessionPath, err)
	}
	return nil
}

// ValidateSession calls WhoAmI to verify the session's access token
// is still valid and returns the authenticated user ID. The daemon
// calls it once at startup.
func ValidateSession(ctx context.Context, session interface {
	WhoAmI(context.Context) (ref.UserID, error)
}) (ref.UserID, error) {
	userID, err := session.WhoAmI(ctx)
	if err != nil {
		return ref.UserID{}, fmt.Errorf("validating matrix session: %w", err)
	}
	return userID, nil
}
