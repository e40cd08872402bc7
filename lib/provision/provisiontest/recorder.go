// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

// Package provisiontest provides an in-memory provisioner that records
// every call, for testing the packages layered on lib/provision without
// a homeserver.
package provisiontest

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/factionkeep/factionkeep/lib/faction"
	"github.com/factionkeep/factionkeep/lib/provision"
	"github.com/factionkeep/factionkeep/lib/ref"
)

// Call is one recorded provisioner call.
type Call struct {
	Op      string
	Faction string
	// Arg is the user for grant and revoke and the new name for rename.
	Arg string
}

func (c Call) String() string {
	if c.Arg == "" {
		return c.Op + " " + c.Faction
	}
	return c.Op + " " + c.Faction + " " + c.Arg
}

// Recorder keeps a set of provisioned factions and their token holders.
// Safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	calls    []Call
	factions map[string]map[ref.UserID]bool
	failures map[string]error
}

// New returns an empty Recorder.
func New() *Recorder {
	return &Recorder{
		factions: make(map[string]map[ref.UserID]bool),
		failures: make(map[string]error),
	}
}

// FailNext makes the next call of op ("provision", "deprovision",
// "rename", "grant", "revoke", "holders") fail with err. A nil err
// uses faction.ErrExternalUnavailable.
func (r *Recorder) FailNext(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		err = fmt.Errorf("provisiontest: injected %s failure: %w", op, faction.ErrExternalUnavailable)
	}
	r.failures[op] = err
}

// Calls returns every call made so far, failed ones included.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

// Ops returns the calls as strings, in order.
func (r *Recorder) Ops() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ops := make([]string, len(r.calls))
	for i, call := range r.calls {
		ops[i] = call.String()
	}
	return ops
}

// Provisioned reports whether name currently has rooms.
func (r *Recorder) Provisioned(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.factions[name]
	return ok
}

// HasToken reports whether user holds name's token.
func (r *Recorder) HasToken(user ref.UserID, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.factions[name][user]
}

// SetToken sets token state directly, for audit drift tests.
func (r *Recorder) SetToken(user ref.UserID, name string, held bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.factions[name] == nil {
		r.factions[name] = make(map[ref.UserID]bool)
	}
	if held {
		r.factions[name][user] = true
	} else {
		delete(r.factions[name], user)
	}
}

// record appends the call and returns the injected failure, if any.
func (r *Recorder) record(op, name, arg string) error {
	r.calls = append(r.calls, Call{Op: op, Faction: name, Arg: arg})
	if err, ok := r.failures[op]; ok {
		delete(r.failures, op)
		return err
	}
	return nil
}

func (r *Recorder) Provision(_ context.Context, name string) (provision.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record("provision", name, ""); err != nil {
		return provision.Handle{}, err
	}
	if r.factions[name] == nil {
		r.factions[name] = make(map[ref.UserID]bool)
	}
	slug := faction.Slug(name)
	return provision.Handle{
		Role:    ref.MustParseRoomID("!" + slug + ":test"),
		Space:   ref.MustParseRoomID("!" + slug + ".space:test"),
		Channel: ref.MustParseRoomID("!" + slug + ".chat:test"),
	}, nil
}

func (r *Recorder) Deprovision(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record("deprovision", name, ""); err != nil {
		return err
	}
	delete(r.factions, name)
	return nil
}

func (r *Recorder) Rename(_ context.Context, oldName, newName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record("rename", oldName, newName); err != nil {
		return err
	}
	if holders, ok := r.factions[oldName]; ok {
		delete(r.factions, oldName)
		r.factions[newName] = holders
	}
	return nil
}

func (r *Recorder) Grant(_ context.Context, user ref.UserID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record("grant", name, user.String()); err != nil {
		return err
	}
	holders, ok := r.factions[name]
	if !ok {
		return fmt.Errorf("provisiontest: %q has no role room: %w", name, faction.ErrExternalUnavailable)
	}
	holders[user] = true
	return nil
}

func (r *Recorder) Revoke(_ context.Context, user ref.UserID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record("revoke", name, user.String()); err != nil {
		return err
	}
	delete(r.factions[name], user)
	return nil
}

func (r *Recorder) TokenHolders(_ context.Context, name string) ([]ref.UserID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record("holders", name, ""); err != nil {
		return nil, err
	}
	holders, ok := r.factions[name]
	if !ok {
		return nil, fmt.Errorf("provisiontest: %q has no role room: %w", name, faction.ErrExternalUnavailable)
	}
	users := make([]ref.UserID, 0, len(holders))
	for user := range holders {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b ref.UserID) int { return strings.Compare(a.String(), b.String()) })
	return users, nil
}
