// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the daemon scaffolding factionkeep-service
// is assembled from:
//
//   - Session loading: read the session file written by
//     "factionkeep login", or take credentials from the environment,
//     and create an authenticated Matrix session.
//   - Sync loop: incremental Matrix /sync long-poll with backoff,
//     delivering responses to a caller-provided handler, plus invite
//     acceptance.
//   - Socket server: a CBOR request-response protocol on a Unix
//     socket with action dispatch, connection timeouts, and graceful
//     shutdown. The operator CLI talks to the daemon through it.
//
// The daemon composes these in its own main function. The package
// provides building blocks, not a runtime.
//
// # Authentication
//
// The admin socket has no caller authentication. It is created with
// mode 0600, so only the daemon's own user can connect, and every
// action runs as the system actor.
package service
