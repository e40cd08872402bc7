// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging is factionkeep's Matrix client-server API client.
//
// [Client] holds the homeserver URL and HTTP transport. [Client.Login]
// and [Client.SessionFromToken] produce a [DirectSession], which wraps
// an access token held in a secret.Buffer and implements [Session]:
// the room, state, membership, alias and sync operations the faction
// provisioner, the access gate and the daemon's sync loop need.
//
// Non-2xx responses are returned as *[MatrixError]; use
// [IsMatrixError] to test for a specific errcode such as
// [ErrCodeNotFound].
package messaging
