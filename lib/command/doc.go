// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

// Package command is the chat surface of factionkeep.
//
// Members type commands into Matrix rooms ("!faction join Red Team").
// The service receives them through /sync and hands each message to
// [Dispatcher.Handle], which parses it, authorizes privileged commands
// against the room the message was sent in, runs exactly one
// operation, and posts exactly one threaded reply once every store and
// platform call has returned.
//
// Arguments are separated by whitespace. Double quotes group words, so
// two-name commands can take multi-word names:
//
//	!faction rename "Red Team" Crimson
//
// Commands that take a single name use the rest of the line, quoted or
// not.
package command
