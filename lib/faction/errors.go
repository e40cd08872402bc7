// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package faction

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyExists       = errors.New("faction already exists")
	ErrNotFound            = errors.New("not found")
	ErrAlreadyInFaction    = errors.New("already in a faction")
	ErrNotInFaction        = errors.New("not in a faction")
	ErrInvalidLeader       = errors.New("leader must be a member of the faction")
	ErrAlreadyCheckedIn    = errors.New("already checked in today")
	ErrNotAffiliated       = errors.New("not affiliated with a faction")
	ErrSelfConflict        = errors.New("a faction cannot be in conflict with itself")
	ErrAlreadyActive       = errors.New("conflict already active")
	ErrResourceConflict    = errors.New("platform resource belongs to something else")
	ErrExternalUnavailable = errors.New("platform unavailable")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrInvalidName         = errors.New("invalid faction name")
)

// codes gives every sentinel a stable wire name for the admin socket.
var codes = []struct {
	code string
	err  error
}{
	{"already_exists", ErrAlreadyExists},
	{"not_found", ErrNotFound},
	{"already_in_faction", ErrAlreadyInFaction},
	{"not_in_faction", ErrNotInFaction},
	{"invalid_leader", ErrInvalidLeader},
	{"already_checked_in", ErrAlreadyCheckedIn},
	{"not_affiliated", ErrNotAffiliated},
	{"self_conflict", ErrSelfConflict},
	{"already_active", ErrAlreadyActive},
	{"resource_conflict", ErrResourceConflict},
	{"external_unavailable", ErrExternalUnavailable},
	{"permission_denied", ErrPermissionDenied},
	{"invalid_name", ErrInvalidName},
}

// Code returns the wire name of the first sentinel err matches, or
// "internal" for anything else. A partial failure reports "partial".
func Code(err error) string {
	if err == nil {
		return ""
	}
	var partial *PartialFailure
	if errors.As(err, &partial) {
		return "partial"
	}
	for _, entry := range codes {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}
	return "internal"
}

// FromCode rebuilds an error from a wire code and message so that
// errors.Is works on the client side of the admin socket.
func FromCode(code, message string) error {
	for _, entry := range codes {
		if entry.code == code {
			return &wireError{sentinel: entry.err, message: message}
		}
	}
	return errors.New(message)
}

type wireError struct {
	sentinel error
	message  string
}

func (e *wireError) Error() string { return e.message }
func (e *wireError) Unwrap() error { return e.sentinel }

// PartialFailure reports that the record store committed an operation
// but the platform side did not finish. The record is authoritative;
// `repair` retries the platform side.
type PartialFailure struct {
	Op      string
	Faction string
	Err     error
}

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("%s %q: record saved but platform resources are incomplete: %v", e.Op, e.Faction, e.Err)
}

func (e *PartialFailure) Unwrap() error { return e.Err }

// Retryable reports whether repeating the request could succeed.
// Permission is the one verdict that does not change on retry.
func Retryable(err error) bool {
	return err != nil && !errors.Is(err, ErrPermissionDenied)
}
