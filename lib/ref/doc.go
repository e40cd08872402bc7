// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides validated value types for Matrix identifiers:
// user IDs, room IDs, room aliases, event IDs, event types and server
// names. Values are parsed once at the API boundary (configuration,
// command arguments, homeserver responses) and passed around typed, so
// a room ID can never be handed to a parameter expecting a user ID.
//
// Every type is an immutable struct wrapping a string. The zero value
// is "unset"; check it with IsZero. All types implement
// encoding.TextMarshaler and TextUnmarshaler, so they round-trip through
// JSON, YAML and CBOR, and work as JSON map keys.
package ref
