// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry owns the faction lifecycle: creating, deleting and
// renaming factions, appointing leaders, and reporting on them. The
// record store is authoritative. Platform rooms follow the record, and
// when they fail to follow the caller gets a *faction.PartialFailure
// and can run Repair later.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/factionkeep/factionkeep/lib/faction"
	"github.com/factionkeep/factionkeep/lib/factionstore"
	"github.com/factionkeep/factionkeep/lib/provision"
	"github.com/factionkeep/factionkeep/lib/ref"
)

// Provisioner is the platform side of the faction lifecycle.
// *provision.Provisioner implements it.
type Provisioner interface {
	Provision(ctx context.Context, name string) (provision.Handle, error)
	Deprovision(ctx context.Context, name string) error
	Rename(ctx context.Context, oldName, newName string) error
}

// Config holds the registry's collaborators.
type Config struct {
	Store       *factionstore.Store
	Provisioner Provisioner
	Logger      *slog.Logger
}

// Registry is safe for concurrent use; the store serializes conflicting
// writes.
type Registry struct {
	store       *factionstore.Store
	provisioner Provisioner
	logger      *slog.Logger
}

// New creates a Registry.
func New(config Config) (*Registry, error) {
	if config.Store == nil {
		return nil, errors.New("registry: Store is required")
	}
	if config.Provisioner == nil {
		return nil, errors.New("registry: Provisioner is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{store: config.Store, provisioner: config.Provisioner, logger: logger}, nil
}

// Create records a new faction with zero points and no leader, then
// provisions its rooms. When provisioning fails the record stays and
// the error is a *faction.PartialFailure.
func (r *Registry) Create(ctx context.Context, rawName string) (faction.Faction, error) {
	name, err := faction.ValidateName(rawName)
	if err != nil {
		return faction.Faction{}, err
	}
	record, err := r.store.InsertFaction(ctx, name, faction.Slug(name))
	if err != nil {
		return faction.Faction{}, err
	}

	handle, err := r.provisioner.Provision(ctx, name)
	if err != nil {
		r.logger.Warn("faction created without complete rooms", "faction", name, "error", err)
		return record, &faction.PartialFailure{Op: "create", Faction: name, Err: err}
	}
	r.logger.Info("faction created",
		"faction", name,
		"role_room", handle.Role,
		"space", handle.Space,
		"channel", handle.Channel,
	)
	return record, nil
}

// Delete tears down the faction's rooms and then removes the record,
// its memberships and its conflict edges. It returns how many members
// were released. When the platform teardown fails nothing is deleted.
func (r *Registry) Delete(ctx context.Context, rawName string) (int, error) {
	record, err := r.lookup(ctx, rawName)
	if err != nil {
		return 0, err
	}
	if record.RenamedFrom != "" {
		if err := r.finishRename(ctx, record); err != nil {
			return 0, err
		}
	}
	if err := r.provisioner.Deprovision(ctx, record.Name); err != nil {
		return 0, err
	}
	released, err := r.store.DeleteFaction(ctx, record.Name)
	if err != nil {
		return 0, err
	}
	r.logger.Info("faction deleted", "faction", record.Name, "released_members", released)
	return released, nil
}

// Rename moves the record, its members and its conflicts to newName,
// then renames the rooms. Points, leader and membership carry over. A
// platform failure after the store commit is a *faction.PartialFailure;
// the record remembers the old name until Repair finishes the job.
func (r *Registry) Rename(ctx context.Context, rawOld, rawNew string) (faction.Faction, error) {
	record, err := r.lookup(ctx, rawOld)
	if err != nil {
		return faction.Faction{}, err
	}
	newName, err := faction.ValidateName(rawNew)
	if err != nil {
		return faction.Faction{}, err
	}
	if newName == record.Name {
		return faction.Faction{}, fmt.Errorf("registry: %q: %w", newName, faction.ErrAlreadyExists)
	}

	// Stack a rename only on rooms that already carry the current name.
	if record.RenamedFrom != "" {
		if err := r.finishRename(ctx, record); err != nil {
			return faction.Faction{}, err
		}
	}

	renamed, err := r.store.RenameFaction(ctx, record.Name, newName, faction.Slug(newName))
	if err != nil {
		return faction.Faction{}, err
	}
	if err := r.finishRename(ctx, renamed); err != nil {
		r.logger.Warn("faction renamed without renaming rooms", "from", record.Name, "to", newName, "error", err)
		return renamed, &faction.PartialFailure{Op: "rename", Faction: newName, Err: err}
	}
	renamed.RenamedFrom = ""
	r.logger.Info("faction renamed", "from", record.Name, "to", newName)
	return renamed, nil
}

// finishRename brings the rooms of a record with a pending rename up
// to its current name and clears the mark.
func (r *Registry) finishRename(ctx context.Context, record faction.Faction) error {
	if err := r.provisioner.Rename(ctx, record.RenamedFrom, record.Name); err != nil {
		return err
	}
	return r.store.ClearRenamedFrom(ctx, record.Name)
}

// SetLeader appoints user, who must be a member of the faction.
func (r *Registry) SetLeader(ctx context.Context, rawName string, user ref.UserID) error {
	record, err := r.lookup(ctx, rawName)
	if err != nil {
		return err
	}
	if err := r.store.SetLeader(ctx, record.Name, user); err != nil {
		return err
	}
	r.logger.Info("faction leader set", "faction", record.Name, "leader", user)
	return nil
}

// Info reports points, leader and member count.
func (r *Registry) Info(ctx context.Context, rawName string) (faction.Info, error) {
	record, err := r.lookup(ctx, rawName)
	if err != nil {
		return faction.Info{}, err
	}
	count, err := r.store.CountMembers(ctx, record.Name)
	if err != nil {
		return faction.Info{}, err
	}
	return faction.Info{Faction: record, MemberCount: count}, nil
}

// Members lists the faction's members sorted by user ID.
func (r *Registry) Members(ctx context.Context, rawName string) ([]ref.UserID, error) {
	record, err := r.lookup(ctx, rawName)
	if err != nil {
		return nil, err
	}
	return r.store.FactionMembers(ctx, record.Name)
}

// List returns every faction by points descending, then name.
func (r *Registry) List(ctx context.Context) ([]faction.Faction, error) {
	return r.store.ListFactions(ctx, 0)
}

// Repair retries the platform side of an existing faction: it finishes
// a pending rename and then provisions any missing rooms.
func (r *Registry) Repair(ctx context.Context, rawName string) (provision.Handle, error) {
	record, err := r.lookup(ctx, rawName)
	if err != nil {
		return provision.Handle{}, err
	}
	if record.RenamedFrom != "" {
		if err := r.finishRename(ctx, record); err != nil {
			return provision.Handle{}, err
		}
	}
	handle, err := r.provisioner.Provision(ctx, record.Name)
	if err != nil {
		return provision.Handle{}, err
	}
	r.logger.Info("faction repaired", "faction", record.Name, "role_room", handle.Role)
	return handle, nil
}

// lookup finds a faction by name, ignoring case and spacing.
func (r *Registry) lookup(ctx context.Context, rawName string) (faction.Faction, error) {
	name, err := faction.ValidateName(rawName)
	if err != nil {
		return faction.Faction{}, err
	}
	return r.store.ResolveFaction(ctx, name)
}
