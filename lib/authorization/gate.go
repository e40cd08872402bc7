// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package authorization

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/factionkeep/factionkeep/lib/faction"
	"github.com/factionkeep/factionkeep/lib/factionstore"
	"github.com/factionkeep/factionkeep/lib/ref"
)

// Tier is the permission class of an operation.
type Tier int

const (
	Public Tier = iota
	Privileged
	AdminOnly
)

// String returns the tier name used in logs.
func (t Tier) String() string {
	switch t {
	case Public:
		return "public"
	case Privileged:
		return "privileged"
	case AdminOnly:
		return "admin-only"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Operation names an action and its tier.
type Operation struct {
	Name string
	Tier Tier
}

// Actor is who is asking, and from where.
type Actor struct {
	User ref.UserID

	// Workspace is the room the request came from. Administrator status
	// and trusted groups are scoped to it.
	Workspace ref.RoomID

	// System marks the local operator and the scheduler.
	System bool
}

// SystemActor returns the actor for operator and scheduled requests.
// workspace scopes trusted-group operations and may be zero otherwise.
func SystemActor(workspace ref.RoomID) Actor {
	return Actor{Workspace: workspace, System: true}
}

// String identifies the actor in logs.
func (a Actor) String() string {
	if a.System {
		return "system"
	}
	return a.User.String()
}

// Decision is the outcome of an authorization check.
type Decision int

const (
	Deny Decision = iota
	Allow
)

// String returns "allow" or "deny".
func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// Basis records which rule produced an Allow.
type Basis int

const (
	BasisNone Basis = iota
	BasisPublic
	BasisSystem
	BasisAdministrator
	BasisTrustedGroup
)

// String returns a short description of the basis.
func (b Basis) String() string {
	switch b {
	case BasisPublic:
		return "public operation"
	case BasisSystem:
		return "system actor"
	case BasisAdministrator:
		return "administrator"
	case BasisTrustedGroup:
		return "trusted group member"
	default:
		return "none"
	}
}

// Result is the decision plus the rule that made it.
type Result struct {
	Decision Decision
	Basis    Basis

	// Group is the trusted group that admitted the actor, when Basis is
	// BasisTrustedGroup.
	Group ref.RoomID
}

// Directory answers the homeserver questions the gate asks.
type Directory interface {
	// PowerLevel returns user's power level in room.
	PowerLevel(ctx context.Context, room ref.RoomID, user ref.UserID) (int, error)

	// IsMember reports whether user has joined room.
	IsMember(ctx context.Context, room ref.RoomID, user ref.UserID) (bool, error)
}

// Config holds the gate's collaborators.
type Config struct {
	Store     *factionstore.Store
	Directory Directory

	// AdminPowerLevel is the threshold for administrator status.
	AdminPowerLevel int

	Logger *slog.Logger
}

// Gate is safe for concurrent use.
type Gate struct {
	store      *factionstore.Store
	directory  Directory
	adminLevel int
	logger     *slog.Logger
}

// New creates a Gate.
func New(config Config) (*Gate, error) {
	if config.Store == nil {
		return nil, errors.New("authorization: Store is required")
	}
	if config.Directory == nil {
		return nil, errors.New("authorization: Directory is required")
	}
	if config.AdminPowerLevel <= 0 {
		return nil, errors.New("authorization: AdminPowerLevel must be positive")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		store:      config.Store,
		directory:  config.Directory,
		adminLevel: config.AdminPowerLevel,
		logger:     logger,
	}, nil
}

// Authorize checks whether actor may perform op. A denial returns the
// Deny result together with an error matching
// faction.ErrPermissionDenied; a failed lookup returns Deny with
// faction.ErrExternalUnavailable.
func (g *Gate) Authorize(ctx context.Context, actor Actor, op Operation) (Result, error) {
	if op.Tier == Public {
		return Result{Decision: Allow, Basis: BasisPublic}, nil
	}
	if actor.System {
		return Result{Decision: Allow, Basis: BasisSystem}, nil
	}
	if actor.User.IsZero() || actor.Workspace.IsZero() {
		return g.deny(actor, op)
	}

	level, err := g.directory.PowerLevel(ctx, actor.Workspace, actor.User)
	if err != nil {
		return Result{}, fmt.Errorf("authorization: power level of %s in %s: %w: %w",
			actor.User, actor.Workspace, faction.ErrExternalUnavailable, err)
	}
	if level >= g.adminLevel {
		return Result{Decision: Allow, Basis: BasisAdministrator}, nil
	}
	if op.Tier == AdminOnly {
		return g.deny(actor, op)
	}

	groups, err := g.store.TrustedGroups(ctx, actor.Workspace)
	if err != nil {
		return Result{}, err
	}
	var lookupErrs []error
	for _, group := range groups {
		member, err := g.directory.IsMember(ctx, group.Group, actor.User)
		if err != nil {
			lookupErrs = append(lookupErrs, err)
			continue
		}
		if member {
			return Result{Decision: Allow, Basis: BasisTrustedGroup, Group: group.Group}, nil
		}
	}
	if len(lookupErrs) > 0 {
		return Result{}, fmt.Errorf("authorization: trusted group lookup for %s: %w: %w",
			actor.User, faction.ErrExternalUnavailable, errors.Join(lookupErrs...))
	}
	return g.deny(actor, op)
}

func (g *Gate) deny(actor Actor, op Operation) (Result, error) {
	g.logger.Info("operation denied",
		"actor", actor,
		"workspace", actor.Workspace,
		"operation", op.Name,
		"tier", op.Tier,
	)
	return Result{Decision: Deny}, fmt.Errorf("authorization: %s may not %s: %w", actor, op.Name, faction.ErrPermissionDenied)
}

// Trusted-group management operations.
var (
	OpTrust   = Operation{Name: "trust", Tier: AdminOnly}
	OpUntrust = Operation{Name: "untrust", Tier: AdminOnly}
	OpTrusted = Operation{Name: "trusted", Tier: Public}
)

// AddTrustedGroup trusts group's members for privileged operations in
// actor's workspace. Only administrators may call it.
func (g *Gate) AddTrustedGroup(ctx context.Context, actor Actor, group ref.RoomID) (faction.TrustedGroup, error) {
	if _, err := g.Authorize(ctx, actor, OpTrust); err != nil {
		return faction.TrustedGroup{}, err
	}
	if actor.Workspace.IsZero() {
		return faction.TrustedGroup{}, errors.New("authorization: trusted groups need a workspace")
	}
	record, err := g.store.AddTrustedGroup(ctx, actor.Workspace, group, actor.User)
	if err != nil {
		return faction.TrustedGroup{}, err
	}
	g.logger.Info("trusted group added", "workspace", actor.Workspace, "group", group, "actor", actor)
	return record, nil
}

// RemoveTrustedGroup withdraws trust. Only administrators may call it.
func (g *Gate) RemoveTrustedGroup(ctx context.Context, actor Actor, group ref.RoomID) error {
	if _, err := g.Authorize(ctx, actor, OpUntrust); err != nil {
		return err
	}
	if actor.Workspace.IsZero() {
		return errors.New("authorization: trusted groups need a workspace")
	}
	if err := g.store.RemoveTrustedGroup(ctx, actor.Workspace, group); err != nil {
		return err
	}
	g.logger.Info("trusted group removed", "workspace", actor.Workspace, "group", group, "actor", actor)
	return nil
}

// TrustedGroups lists the groups trusted in workspace; a zero workspace
// lists all of them.
func (g *Gate) TrustedGroups(ctx context.Context, workspace ref.RoomID) ([]faction.TrustedGroup, error) {
	return g.store.TrustedGroups(ctx, workspace)
}
