// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

// Package authorization decides who may run which faction operation.
//
// Operations fall into three tiers:
//
//   - Public: anyone.
//   - Privileged: administrators of the room the command came from,
//     then joined members of any group trusted for that room.
//   - AdminOnly: administrators only. Managing the trusted groups
//     themselves is AdminOnly, so trust cannot be used to extend trust.
//
// An administrator is a user whose power level in the workspace room
// meets the configured threshold. The System actor (the operator
// socket and the reset scheduler) passes every check.
//
// Lookups against the homeserver fail closed: when the gate cannot
// establish that the actor is allowed, the answer is no, reported as
// faction.ErrExternalUnavailable so the user knows to retry.
package authorization
