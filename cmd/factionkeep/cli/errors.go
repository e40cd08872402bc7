// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"

	"github.com/factionkeep/factionkeep/lib/faction"
	"github.com/factionkeep/factionkeep/lib/service"
)

// ErrorCategory classifies command failures. Each category has its own
// exit code so scripts can tell bad input from a daemon that is down.
type ErrorCategory string

const (
	CategoryValidation  ErrorCategory = "validation"
	CategoryNotFound    ErrorCategory = "not_found"
	CategoryForbidden   ErrorCategory = "forbidden"
	CategoryConflict    ErrorCategory = "conflict"
	CategoryUnavailable ErrorCategory = "unavailable"
	CategoryPartial     ErrorCategory = "partial"
	CategoryInternal    ErrorCategory = "internal"
)

var exitCodes = map[ErrorCategory]int{
	CategoryInternal:    1,
	CategoryValidation:  2,
	CategoryNotFound:    3,
	CategoryForbidden:   4,
	CategoryConflict:    5,
	CategoryUnavailable: 6,
	CategoryPartial:     7,
}

// ExitCode returns the process exit code for category.
func (c ErrorCategory) ExitCode() int {
	if code, ok := exitCodes[c]; ok {
		return code
	}
	return 1
}

// CommandError is a categorized error returned by a command.
type CommandError struct {
	Category ErrorCategory
	Err      error
}

func (e *CommandError) Error() string { return e.Err.Error() }
func (e *CommandError) Unwrap() error { return e.Err }

// ExitCode satisfies the interface main checks for.
func (e *CommandError) ExitCode() int { return e.Category.ExitCode() }

func newError(category ErrorCategory, format string, args ...any) *CommandError {
	return &CommandError{Category: category, Err: fmt.Errorf(format, args...)}
}

// Validation reports bad input: missing arguments, malformed values.
func Validation(format string, args ...any) *CommandError {
	return newError(CategoryValidation, format, args...)
}

// NotFound reports a faction, room, or trusted group that does not exist.
func NotFound(format string, args ...any) *CommandError {
	return newError(CategoryNotFound, format, args...)
}

// Unavailable reports a daemon or homeserver that could not be reached.
func Unavailable(format string, args ...any) *CommandError {
	return newError(CategoryUnavailable, format, args...)
}

// Internal reports an unexpected failure.
func Internal(format string, args ...any) *CommandError {
	return newError(CategoryInternal, format, args...)
}

// Categorize classifies err from the admin socket or the homeserver.
// An error that is already a *CommandError keeps its category.
func Categorize(err error) *CommandError {
	if err == nil {
		return nil
	}
	var commandErr *CommandError
	if errors.As(err, &commandErr) {
		return commandErr
	}

	var serviceErr *service.ServiceError
	if errors.As(err, &serviceErr) && serviceErr.Code == "partial" {
		return &CommandError{Category: CategoryPartial, Err: err}
	}

	category := CategoryInternal
	switch {
	case errors.Is(err, faction.ErrInvalidName):
		category = CategoryValidation
	case errors.Is(err, faction.ErrNotFound):
		category = CategoryNotFound
	case errors.Is(err, faction.ErrPermissionDenied):
		category = CategoryForbidden
	case errors.Is(err, faction.ErrExternalUnavailable):
		category = CategoryUnavailable
	case errors.Is(err, faction.ErrAlreadyExists),
		errors.Is(err, faction.ErrAlreadyInFaction),
		errors.Is(err, faction.ErrNotInFaction),
		errors.Is(err, faction.ErrInvalidLeader),
		errors.Is(err, faction.ErrAlreadyCheckedIn),
		errors.Is(err, faction.ErrNotAffiliated),
		errors.Is(err, faction.ErrSelfConflict),
		errors.Is(err, faction.ErrAlreadyActive),
		errors.Is(err, faction.ErrResourceConflict):
		category = CategoryConflict
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, fs.ErrNotExist):
		return &CommandError{
			Category: CategoryUnavailable,
			Err:      fmt.Errorf("%w\n\nIs factionkeep-service running? Check service.socket_path in the config.", err),
		}
	}
	return &CommandError{Category: category, Err: err}
}
