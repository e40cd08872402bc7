// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

// Package membership moves users in and out of factions and keeps the
// platform access token in step with the record.
//
// The store row is the lock. Join claims the row as pending, grants the
// token, then confirms the claim; a failed grant abandons it. Leave
// only acts on a confirmed row, revokes the token, then releases the
// row. A pending claim older than ClaimTimeout is taken to belong to a
// join that died mid-grant, and Leave clears it.
package membership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/factionkeep/factionkeep/lib/clock"
	"github.com/factionkeep/factionkeep/lib/faction"
	"github.com/factionkeep/factionkeep/lib/factionstore"
	"github.com/factionkeep/factionkeep/lib/ref"
)

// DefaultClaimTimeout is how long a join may hold a pending claim
// before Leave treats it as abandoned.
const DefaultClaimTimeout = 2 * time.Minute

// Provisioner hands out and takes back faction access tokens.
// *provision.Provisioner implements it.
type Provisioner interface {
	Grant(ctx context.Context, user ref.UserID, name string) error
	Revoke(ctx context.Context, user ref.UserID, name string) error
	TokenHolders(ctx context.Context, name string) ([]ref.UserID, error)
}

// Config holds the manager's collaborators.
type Config struct {
	Store       *factionstore.Store
	Provisioner Provisioner
	Clock       clock.Clock
	Logger      *slog.Logger

	// ClaimTimeout defaults to DefaultClaimTimeout.
	ClaimTimeout time.Duration
}

// Manager is safe for concurrent use.
type Manager struct {
	store        *factionstore.Store
	provisioner  Provisioner
	clock        clock.Clock
	claimTimeout time.Duration
	logger       *slog.Logger
}

// New creates a Manager.
func New(config Config) (*Manager, error) {
	if config.Store == nil {
		return nil, errors.New("membership: Store is required")
	}
	if config.Provisioner == nil {
		return nil, errors.New("membership: Provisioner is required")
	}
	if config.Clock == nil {
		return nil, errors.New("membership: Clock is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	claimTimeout := config.ClaimTimeout
	if claimTimeout <= 0 {
		claimTimeout = DefaultClaimTimeout
	}
	return &Manager{
		store:        config.Store,
		provisioner:  config.Provisioner,
		clock:        config.Clock,
		claimTimeout: claimTimeout,
		logger:       logger,
	}, nil
}

// Join puts user into the named faction and returns its canonical
// name. A user already in any faction, this one included, or with a
// join still in progress, gets faction.ErrAlreadyInFaction.
func (m *Manager) Join(ctx context.Context, user ref.UserID, rawName string) (string, error) {
	current, err := m.store.GetMembership(ctx, user)
	if err != nil {
		return "", err
	}
	if current.Faction != "" {
		return "", fmt.Errorf("membership: %s is in %q: %w", user, current.Faction, faction.ErrAlreadyInFaction)
	}
	record, err := m.resolve(ctx, rawName)
	if err != nil {
		return "", err
	}

	if err := m.store.ClaimMembership(ctx, user, record.Name); err != nil {
		return "", err
	}
	if err := m.provisioner.Grant(ctx, user, record.PlatformName()); err != nil {
		grantErr := unavailable(fmt.Sprintf("granting %q to %s", record.Name, user), err)
		if _, abandonErr := m.store.AbandonClaim(ctx, user, record.Name); abandonErr != nil {
			m.logger.Error("could not abandon claim after failed grant",
				"user", user,
				"faction", record.Name,
				"error", abandonErr,
			)
			return "", errors.Join(grantErr, abandonErr)
		}
		return "", grantErr
	}

	confirmed, err := m.store.ConfirmMembership(ctx, user, record.Name)
	if err != nil {
		return "", err
	}
	if !confirmed {
		// A Leave cleared the claim as stale while the grant was in
		// flight. Its revoke may have run before the grant landed.
		lost := fmt.Errorf("membership: claim of %s on %q was cleared during the grant: %w",
			user, record.Name, faction.ErrNotInFaction)
		if err := m.revoke(ctx, user, record); err != nil {
			m.logger.Error("token left with user after lost claim",
				"user", user,
				"faction", record.Name,
				"error", err,
			)
			return "", errors.Join(lost, err)
		}
		return "", lost
	}
	m.logger.Info("joined faction", "user", user, "faction", record.Name)
	return record.Name, nil
}

// Leave removes user from their faction and returns its name.
// faction.ErrNotInFaction when the user has none, when their join is
// still granting, or when a concurrent Leave released the row first.
func (m *Manager) Leave(ctx context.Context, user ref.UserID) (string, error) {
	current, err := m.store.GetMembership(ctx, user)
	if err != nil {
		return "", err
	}
	stale := current.Pending && m.clock.Now().Sub(current.ClaimedAt) >= m.claimTimeout
	if !current.Affiliated() && !stale {
		return "", fmt.Errorf("membership: %s: %w", user, faction.ErrNotInFaction)
	}
	record, err := m.store.GetFaction(ctx, current.Faction)
	if errors.Is(err, faction.ErrNotFound) {
		return "", fmt.Errorf("membership: %q was deleted under %s: %w", current.Faction, user, faction.ErrNotInFaction)
	}
	if err != nil {
		return "", err
	}
	if stale {
		m.logger.Warn("clearing stale claim",
			"user", user,
			"faction", current.Faction,
			"claimed_at", current.ClaimedAt,
		)
	}

	if err := m.revoke(ctx, user, record); err != nil {
		return "", err
	}
	released, err := m.release(ctx, current)
	if err != nil {
		return "", err
	}
	if !released {
		return "", fmt.Errorf("membership: %s left %q concurrently: %w", user, current.Faction, faction.ErrNotInFaction)
	}
	m.logger.Info("left faction", "user", user, "faction", current.Faction)
	return current.Faction, nil
}

// revoke takes the token back under the name the rooms carry. While a
// rename is unfinished it also tries the new name, since the rename may
// complete between the read and the revoke.
func (m *Manager) revoke(ctx context.Context, user ref.UserID, record faction.Faction) error {
	names := []string{record.PlatformName()}
	if record.RenamedFrom != "" {
		names = append(names, record.Name)
	}
	for _, name := range names {
		if err := m.provisioner.Revoke(ctx, user, name); err != nil {
			return unavailable(fmt.Sprintf("revoking %q from %s", name, user), err)
		}
	}
	return nil
}

// release clears the row read by Leave. A stale claim whose join
// confirmed in the meantime is a membership by now and is released as
// one.
func (m *Manager) release(ctx context.Context, current factionstore.Membership) (bool, error) {
	if current.Pending {
		abandoned, err := m.store.AbandonClaim(ctx, current.User, current.Faction)
		if err != nil || abandoned {
			return abandoned, err
		}
	}
	return m.store.ReleaseMembership(ctx, current.User, current.Faction)
}

// AdminAssign is Join on behalf of target. Callers authorize it as a
// privileged operation.
func (m *Manager) AdminAssign(ctx context.Context, target ref.UserID, rawName string) (string, error) {
	return m.Join(ctx, target, rawName)
}

// AdminRemove is Leave on behalf of target.
func (m *Manager) AdminRemove(ctx context.Context, target ref.UserID) (string, error) {
	return m.Leave(ctx, target)
}

// Audit compares the faction's recorded members with the platform's
// token holders.
func (m *Manager) Audit(ctx context.Context, rawName string) (faction.AuditReport, error) {
	record, err := m.resolve(ctx, rawName)
	if err != nil {
		return faction.AuditReport{}, err
	}
	members, err := m.store.FactionMembers(ctx, record.Name)
	if err != nil {
		return faction.AuditReport{}, err
	}
	holders, err := m.provisioner.TokenHolders(ctx, record.PlatformName())
	if err != nil {
		return faction.AuditReport{}, unavailable("listing token holders", err)
	}

	report := faction.AuditReport{Faction: record.Name}
	holding := make(map[ref.UserID]bool, len(holders))
	for _, holder := range holders {
		holding[holder] = true
	}
	recorded := make(map[ref.UserID]bool, len(members))
	for _, member := range members {
		recorded[member] = true
		if !holding[member] {
			report.MissingToken = append(report.MissingToken, member)
		}
	}
	for _, holder := range holders {
		if !recorded[holder] {
			report.StrayToken = append(report.StrayToken, holder)
		}
	}
	if !report.Consistent() {
		m.logger.Warn("faction membership drift",
			"faction", record.Name,
			"missing_token", len(report.MissingToken),
			"stray_token", len(report.StrayToken),
		)
	}
	return report, nil
}

func (m *Manager) resolve(ctx context.Context, rawName string) (faction.Faction, error) {
	name, err := faction.ValidateName(rawName)
	if err != nil {
		return faction.Faction{}, err
	}
	return m.store.ResolveFaction(ctx, name)
}

// unavailable makes sure a platform failure matches
// faction.ErrExternalUnavailable.
func unavailable(action string, err error) error {
	if errors.Is(err, faction.ErrExternalUnavailable) {
		return fmt.Errorf("membership: %s: %w", action, err)
	}
	return fmt.Errorf("membership: %s: %w: %w", action, faction.ErrExternalUnavailable, err)
}
