// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/factionkeep/factionkeep/lib/faction"
)

var errUnknownCommand = errors.New("unknown command")

// usageError reports malformed arguments. usage is filled in by the
// dispatcher from the command table.
type usageError struct {
	usage string
	err   error
}

func (e *usageError) Error() string {
	if e.err != nil {
		return "usage: " + e.err.Error()
	}
	return "usage: " + e.usage
}

func (e *usageError) Unwrap() error { return e.err }

// describe turns an error into the reply the sender sees. Internal
// details stay in the log; the reply carries the command ID so an
// operator can find them.
func (d *Dispatcher) describe(req *request, err error) string {
	self := req.command == "join" || req.command == "leave" || req.command == "checkin"

	var usage *usageError
	if errors.As(err, &usage) {
		if usage.usage == "" {
			return fmt.Sprintf("Could not read that command: %s. Try `%s help`.", usage.err, d.prefix)
		}
		return fmt.Sprintf("Usage: `%s %s`", d.prefix, usage.usage)
	}
	var partial *faction.PartialFailure
	if errors.As(err, &partial) {
		return fmt.Sprintf("%s was saved, but its rooms could not all be set up. Run `%s repair %s` to finish. (Reference: `%s`)",
			bold(partial.Faction), d.prefix, partial.Faction, req.id)
	}

	switch {
	case errors.Is(err, errUnknownCommand):
		return fmt.Sprintf("Unknown command `%s`. Try `%s help`.", req.command, d.prefix)
	case errors.Is(err, faction.ErrPermissionDenied):
		return fmt.Sprintf("You are not allowed to run `%s` here.", req.command)
	case errors.Is(err, faction.ErrInvalidName):
		return fmt.Sprintf("That is not a valid faction name. Names have up to %d characters, at least one letter or digit, and no double quotes.", faction.MaxNameLength)
	case errors.Is(err, faction.ErrAlreadyExists):
		return "A faction with that name already exists."
	case errors.Is(err, faction.ErrNotFound):
		if req.command == "peace" {
			return "Those factions are not at war."
		}
		return "There is no faction with that name."
	case errors.Is(err, faction.ErrAlreadyInFaction):
		if self {
			return fmt.Sprintf("You are already in a faction. Use `%s leave` first.", d.prefix)
		}
		return "That user is already in a faction."
	case errors.Is(err, faction.ErrNotInFaction):
		if self {
			return "You are not in a faction."
		}
		return "That user is not in a faction."
	case errors.Is(err, faction.ErrInvalidLeader):
		return "The leader must be a member of the faction."
	case errors.Is(err, faction.ErrAlreadyCheckedIn):
		return "You already checked in today. Come back tomorrow."
	case errors.Is(err, faction.ErrNotAffiliated):
		return fmt.Sprintf("Join a faction before checking in: `%s join <faction>`.", d.prefix)
	case errors.Is(err, faction.ErrSelfConflict):
		return "A faction cannot go to war with itself."
	case errors.Is(err, faction.ErrAlreadyActive):
		return "Those factions are already at war."
	case errors.Is(err, faction.ErrResourceConflict):
		return fmt.Sprintf("A room this faction needs belongs to something else. An administrator has to free it up. (Reference: `%s`)", req.id)
	case errors.Is(err, faction.ErrExternalUnavailable):
		return fmt.Sprintf("The chat server did not respond. Try again shortly. (Reference: `%s`)", req.id)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("That took too long and was abandoned. (Reference: `%s`)", req.id)
	default:
		return fmt.Sprintf("Something went wrong. (Reference: `%s`)", req.id)
	}
}
