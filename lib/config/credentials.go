// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Credentials are Matrix credentials supplied through the environment,
// typically by a systemd credential or a container secret. When both
// are empty the daemon falls back to the session file.
type Credentials struct {
	AccessToken string `env:"FACTIONKEEP_ACCESS_TOKEN"`
	UserID      string `env:"FACTIONKEEP_USER_ID"`
}

// LoadCredentials reads Credentials from the environment. Setting only
// one of the two variables is an error.
func LoadCredentials() (Credentials, error) {
	var credentials Credentials
	if err := env.Parse(&credentials); err != nil {
		return Credentials{}, fmt.Errorf("config: parsing credentials: %w", err)
	}
	if (credentials.AccessToken == "") != (credentials.UserID == "") {
		return Credentials{}, fmt.Errorf("config: FACTIONKEEP_ACCESS_TOKEN and FACTIONKEEP_USER_ID must be set together")
	}
	return credentials, nil
}

// Present reports whether the environment supplied credentials.
func (c Credentials) Present() bool {
	return c.AccessToken != ""
}
