// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the Matrix event types and content structs
// factionkeep reads and writes: the standard room state it manages
// (names, join rules, space hierarchy, membership, power levels) and
// its own org.factionkeep.faction marker event that tags every room
// provisioned for a faction.
package schema
