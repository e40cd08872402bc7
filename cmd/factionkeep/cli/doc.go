// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the small command framework behind the factionkeep
// operator CLI: a tree of [Command] values with pflag flag sets,
// generated help, typo suggestions for unknown commands and flags, and
// categorized errors that map to process exit codes.
//
// Commands return errors built with the category constructors
// ([Validation], [NotFound], [Unavailable], ...) or let [Categorize]
// classify errors that arrive from the admin socket.
package cli
