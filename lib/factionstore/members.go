// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package factionstore

import (
	"context"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/factionkeep/factionkeep/lib/faction"
	"github.com/factionkeep/factionkeep/lib/ref"
)

// Membership is one user's row. Faction is empty when unaffiliated.
//
// Pending is set between ClaimMembership and ConfirmMembership, while
// the access token is being granted. A pending row blocks other claims
// but is not yet a membership.
type Membership struct {
	User        ref.UserID
	Faction     string
	Pending     bool
	ClaimedAt   time.Time
	LastCheckin string
}

// Affiliated reports whether the user currently belongs to a faction.
func (m Membership) Affiliated() bool { return m.Faction != "" && !m.Pending }

// GetMembership returns the user's row, or a zero Membership with only
// User set when the user has never joined.
func (s *Store) GetMembership(ctx context.Context, user ref.UserID) (Membership, error) {
	var membership Membership
	err := s.withConn(ctx, "get membership", func(conn *sqlite.Conn) error {
		var err error
		membership, err = getMembership(conn, user)
		return err
	})
	return membership, err
}

func getMembership(conn *sqlite.Conn, user ref.UserID) (Membership, error) {
	membership := Membership{User: user}
	err := sqlitex.Execute(conn, `SELECT faction, pending, claimed_at, last_checkin FROM members WHERE user_id = ?`, &sqlitex.ExecOptions{
		Args: []any{user.String()},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			membership.Faction = stmt.ColumnText(0)
			membership.Pending = stmt.ColumnInt64(1) != 0
			if claimed := stmt.ColumnInt64(2); claimed > 0 {
				membership.ClaimedAt = fromUnix(claimed)
			}
			membership.LastCheckin = stmt.ColumnText(3)
			return nil
		},
	})
	if err != nil {
		return Membership{}, fmt.Errorf("factionstore: reading membership of %s: %w", user, err)
	}
	return membership, nil
}

// ClaimMembership reserves name for the user only if the user has no
// faction, not even a pending one, and the faction exists, in a single
// statement. The row is created on first claim; an existing
// last_checkin is kept. The claim stays pending until
// ConfirmMembership.
//
// On failure it re-reads to classify: ErrAlreadyInFaction when the
// user already holds or is claiming any faction, ErrNotFound when name
// is unknown.
func (s *Store) ClaimMembership(ctx context.Context, user ref.UserID, name string) error {
	return s.withConn(ctx, "claim membership", func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `
INSERT INTO members (user_id, faction, pending, claimed_at)
SELECT ?1, name, 1, ?3 FROM factions WHERE name = ?2
ON CONFLICT (user_id) DO UPDATE SET faction = excluded.faction, pending = 1, claimed_at = excluded.claimed_at
WHERE members.faction IS NULL`,
			&sqlitex.ExecOptions{Args: []any{user.String(), name, s.now()}})
		if err != nil {
			return fmt.Errorf("factionstore: claiming %s for %q: %w", user, name, err)
		}
		if conn.Changes() > 0 {
			return nil
		}

		membership, err := getMembership(conn, user)
		if err != nil {
			return err
		}
		if membership.Faction != "" {
			return fmt.Errorf("factionstore: %s is in %q: %w", user, membership.Faction, faction.ErrAlreadyInFaction)
		}
		return fmt.Errorf("factionstore: faction %q: %w", name, faction.ErrNotFound)
	})
}

// ConfirmMembership turns the user's pending claim on name into a
// membership. It reports false when the claim is gone: abandoned, or
// released by a concurrent leave.
func (s *Store) ConfirmMembership(ctx context.Context, user ref.UserID, name string) (bool, error) {
	return s.compareAndClear(ctx, "confirm membership",
		`UPDATE members SET pending = 0 WHERE user_id = ? AND faction = ? AND pending = 1`, user, name)
}

// AbandonClaim clears the user's pending claim on name. It reports
// whether this call cleared it.
func (s *Store) AbandonClaim(ctx context.Context, user ref.UserID, name string) (bool, error) {
	return s.compareAndClear(ctx, "abandon claim",
		`UPDATE members SET faction = NULL, pending = 0 WHERE user_id = ? AND faction = ? AND pending = 1`, user, name)
}

// ReleaseMembership clears the user's faction only if it is still name
// and confirmed. It reports whether this call performed the release; a
// false result means another writer changed the row first, or the row
// is still a pending claim.
func (s *Store) ReleaseMembership(ctx context.Context, user ref.UserID, name string) (bool, error) {
	return s.compareAndClear(ctx, "release membership",
		`UPDATE members SET faction = NULL WHERE user_id = ? AND faction = ? AND pending = 0`, user, name)
}

func (s *Store) compareAndClear(ctx context.Context, op, query string, user ref.UserID, name string) (bool, error) {
	var changed bool
	err := s.withConn(ctx, op, func(conn *sqlite.Conn) error {
		if err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: []any{user.String(), name}}); err != nil {
			return fmt.Errorf("factionstore: %s of %s in %q: %w", op, user, name, err)
		}
		changed = conn.Changes() > 0
		return nil
	})
	return changed, err
}

// CheckinResult reports a successful check-in.
type CheckinResult struct {
	Faction string
	Points  int64
}

// Checkin records a check-in for day and credits points to the user's
// faction, in one IMMEDIATE transaction. The last_checkin guard is
// written before the credit. ErrNotAffiliated when the user has no
// faction or only a pending claim; ErrAlreadyCheckedIn when last_checkin already equals day.
func (s *Store) Checkin(ctx context.Context, user ref.UserID, day string, points int64) (CheckinResult, error) {
	var result CheckinResult
	err := s.withTx(ctx, "checkin", func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `
UPDATE members SET last_checkin = ?1
WHERE user_id = ?2
  AND faction IS NOT NULL
  AND pending = 0
  AND (last_checkin IS NULL OR last_checkin <> ?1)
RETURNING faction`,
			&sqlitex.ExecOptions{
				Args: []any{day, user.String()},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					result.Faction = stmt.ColumnText(0)
					return nil
				},
			})
		if err != nil {
			return fmt.Errorf("factionstore: checkin guard for %s: %w", user, err)
		}
		if result.Faction == "" {
			membership, err := getMembership(conn, user)
			if err != nil {
				return err
			}
			if !membership.Affiliated() {
				return fmt.Errorf("factionstore: %s: %w", user, faction.ErrNotAffiliated)
			}
			return fmt.Errorf("factionstore: %s on %s: %w", user, day, faction.ErrAlreadyCheckedIn)
		}

		found := false
		err = sqlitex.Execute(conn, `UPDATE factions SET points = points + ? WHERE name = ? RETURNING points`,
			&sqlitex.ExecOptions{
				Args: []any{points, result.Faction},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					found = true
					result.Points = stmt.ColumnInt64(0)
					return nil
				},
			})
		if err != nil {
			return fmt.Errorf("factionstore: crediting %q: %w", result.Faction, err)
		}
		if !found {
			return fmt.Errorf("factionstore: faction %q: %w", result.Faction, faction.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return CheckinResult{}, err
	}
	return result, nil
}
