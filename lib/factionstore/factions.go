// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package factionstore

import (
	"context"
	"errors"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/factionkeep/factionkeep/lib/faction"
	"github.com/factionkeep/factionkeep/lib/ref"
)

const factionColumns = `name, slug, points, leader, renamed_from, created_at`

func scanFaction(stmt *sqlite.Stmt) (faction.Faction, error) {
	record := faction.Faction{
		Name:        stmt.ColumnText(0),
		Slug:        stmt.ColumnText(1),
		Points:      stmt.ColumnInt64(2),
		RenamedFrom: stmt.ColumnText(4),
		CreatedAt:   fromUnix(stmt.ColumnInt64(5)),
	}
	if leader := stmt.ColumnText(3); leader != "" {
		parsed, err := ref.ParseUserID(leader)
		if err != nil {
			return faction.Faction{}, fmt.Errorf("faction %q has corrupt leader: %w", record.Name, err)
		}
		record.Leader = parsed
	}
	return record, nil
}

// InsertFaction stores a new faction with zero points and no leader.
// It fails with ErrAlreadyExists when the name or its slug is taken.
func (s *Store) InsertFaction(ctx context.Context, name, slug string) (faction.Faction, error) {
	var record faction.Faction
	err := s.withConn(ctx, "insert faction", func(conn *sqlite.Conn) error {
		var scanErr error
		err := sqlitex.Execute(conn,
			`INSERT INTO factions (name, slug, points, created_at) VALUES (?, ?, 0, ?)
			 ON CONFLICT DO NOTHING
			 RETURNING `+factionColumns,
			&sqlitex.ExecOptions{
				Args: []any{name, slug, s.now()},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					record, scanErr = scanFaction(stmt)
					return scanErr
				},
			})
		if err != nil {
			return err
		}
		if conn.Changes() == 0 {
			return fmt.Errorf("factionstore: %q: %w", name, faction.ErrAlreadyExists)
		}
		return nil
	})
	return record, err
}

// GetFaction fails with ErrNotFound for an unknown name.
func (s *Store) GetFaction(ctx context.Context, name string) (faction.Faction, error) {
	var record faction.Faction
	err := s.withConn(ctx, "get faction", func(conn *sqlite.Conn) error {
		var found bool
		var err error
		record, found, err = getFaction(conn, name)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("factionstore: faction %q: %w", name, faction.ErrNotFound)
		}
		return nil
	})
	return record, err
}

func getFaction(conn *sqlite.Conn, name string) (faction.Faction, bool, error) {
	var record faction.Faction
	var found bool
	var scanErr error
	err := sqlitex.Execute(conn, `SELECT `+factionColumns+` FROM factions WHERE name = ?`, &sqlitex.ExecOptions{
		Args: []any{name},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			found = true
			record, scanErr = scanFaction(stmt)
			return scanErr
		},
	})
	if err != nil {
		return faction.Faction{}, false, fmt.Errorf("factionstore: reading faction %q: %w", name, err)
	}
	return record, found, nil
}

// GetFactionBySlug finds the faction owning slug.
func (s *Store) GetFactionBySlug(ctx context.Context, slug string) (faction.Faction, error) {
	var record faction.Faction
	var found bool
	err := s.withConn(ctx, "get faction by slug", func(conn *sqlite.Conn) error {
		var scanErr error
		return sqlitex.Execute(conn, `SELECT `+factionColumns+` FROM factions WHERE slug = ?`, &sqlitex.ExecOptions{
			Args: []any{slug},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				record, scanErr = scanFaction(stmt)
				return scanErr
			},
		})
	})
	if err != nil {
		return faction.Faction{}, err
	}
	if !found {
		return faction.Faction{}, fmt.Errorf("factionstore: slug %q: %w", slug, faction.ErrNotFound)
	}
	return record, nil
}

// ResolveFaction finds a faction by exact name, falling back to the
// slug so that "red team" finds "Red Team".
func (s *Store) ResolveFaction(ctx context.Context, name string) (faction.Faction, error) {
	record, err := s.GetFaction(ctx, name)
	if !errors.Is(err, faction.ErrNotFound) {
		return record, err
	}
	record, slugErr := s.GetFactionBySlug(ctx, faction.Slug(name))
	if errors.Is(slugErr, faction.ErrNotFound) {
		return faction.Faction{}, err
	}
	return record, slugErr
}

// ListFactions returns factions by points descending, then name. A
// limit of zero or less returns all of them.
func (s *Store) ListFactions(ctx context.Context, limit int) ([]faction.Faction, error) {
	if limit <= 0 {
		limit = -1
	}
	var records []faction.Faction
	err := s.withConn(ctx, "list factions", func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT `+factionColumns+` FROM factions ORDER BY points DESC, name ASC LIMIT ?`,
			&sqlitex.ExecOptions{
				Args: []any{limit},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					record, err := scanFaction(stmt)
					if err != nil {
						return err
					}
					records = append(records, record)
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("factionstore: list factions: %w", err)
	}
	return records, nil
}

// CountMembers counts users whose faction is name.
func (s *Store) CountMembers(ctx context.Context, name string) (int, error) {
	var count int
	err := s.withConn(ctx, "count members", func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT COUNT(*) FROM members WHERE faction = ? AND pending = 0`, &sqlitex.ExecOptions{
			Args: []any{name},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				count = stmt.ColumnInt(0)
				return nil
			},
		})
	})
	if err != nil {
		return 0, fmt.Errorf("factionstore: count members of %q: %w", name, err)
	}
	return count, nil
}

// FactionMembers lists members of name sorted by user ID.
func (s *Store) FactionMembers(ctx context.Context, name string) ([]ref.UserID, error) {
	var users []ref.UserID
	err := s.withConn(ctx, "faction members", func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT user_id FROM members WHERE faction = ? AND pending = 0 ORDER BY user_id`, &sqlitex.ExecOptions{
			Args: []any{name},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				user, err := ref.ParseUserID(stmt.ColumnText(0))
				if err != nil {
					return err
				}
				users = append(users, user)
				return nil
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("factionstore: members of %q: %w", name, err)
	}
	return users, nil
}

// SetLeader installs user as leader of name in one conditional write.
// ErrNotFound for an unknown faction; ErrInvalidLeader when user is not
// a member of it at the moment of the write.
func (s *Store) SetLeader(ctx context.Context, name string, user ref.UserID) error {
	return s.withConn(ctx, "set leader", func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `
UPDATE factions SET leader = ?1
WHERE name = ?2
  AND EXISTS (SELECT 1 FROM members WHERE user_id = ?1 AND faction = ?2 AND pending = 0)`,
			&sqlitex.ExecOptions{Args: []any{user.String(), name}})
		if err != nil {
			return fmt.Errorf("factionstore: set leader of %q: %w", name, err)
		}
		if conn.Changes() > 0 {
			return nil
		}
		_, found, err := getFaction(conn, name)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("factionstore: faction %q: %w", name, faction.ErrNotFound)
		}
		return fmt.Errorf("factionstore: %s is not a member of %q: %w", user, name, faction.ErrInvalidLeader)
	})
}

// DeleteFaction removes name in one transaction: memberships are
// cleared, every conflict edge naming it is removed, then the record
// deleted. It returns the number of memberships cleared. Ended edges go
// too, so a later faction with the same name starts without history.
func (s *Store) DeleteFaction(ctx context.Context, name string) (int, error) {
	var cleared int
	err := s.withTx(ctx, "delete faction", func(conn *sqlite.Conn) error {
		_, found, err := getFaction(conn, name)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("factionstore: faction %q: %w", name, faction.ErrNotFound)
		}
		if err := sqlitex.Execute(conn, `UPDATE members SET faction = NULL, pending = 0 WHERE faction = ?`,
			&sqlitex.ExecOptions{Args: []any{name}}); err != nil {
			return fmt.Errorf("factionstore: clearing members of %q: %w", name, err)
		}
		cleared = conn.Changes()
		if err := sqlitex.Execute(conn, `DELETE FROM conflicts WHERE source = ?1 OR target = ?1`,
			&sqlitex.ExecOptions{Args: []any{name}}); err != nil {
			return fmt.Errorf("factionstore: removing conflicts of %q: %w", name, err)
		}
		if err := sqlitex.Execute(conn, `DELETE FROM factions WHERE name = ?`,
			&sqlitex.ExecOptions{Args: []any{name}}); err != nil {
			return fmt.Errorf("factionstore: deleting %q: %w", name, err)
		}
		return nil
	})
	return cleared, err
}

// RenameFaction moves the record, its memberships and its conflict
// edges from oldName to newName in one transaction and marks the
// faction with renamed_from = oldName until ClearRenamedFrom.
func (s *Store) RenameFaction(ctx context.Context, oldName, newName, newSlug string) (faction.Faction, error) {
	var record faction.Faction
	err := s.withTx(ctx, "rename faction", func(conn *sqlite.Conn) error {
		current, found, err := getFaction(conn, oldName)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("factionstore: faction %q: %w", oldName, faction.ErrNotFound)
		}
		// A rename chained onto an unfinished one keeps the original
		// platform name, which is what the aliases still carry.
		platformName := oldName
		if current.RenamedFrom != "" {
			platformName = current.RenamedFrom
		}

		var scanErr error
		err = sqlitex.Execute(conn, `
UPDATE OR IGNORE factions SET name = ?, slug = ?, renamed_from = ?
WHERE name = ?
RETURNING `+factionColumns,
			&sqlitex.ExecOptions{
				Args: []any{newName, newSlug, platformName, oldName},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					record, scanErr = scanFaction(stmt)
					return scanErr
				},
			})
		if err != nil {
			return fmt.Errorf("factionstore: renaming %q: %w", oldName, err)
		}
		if conn.Changes() == 0 {
			return fmt.Errorf("factionstore: %q: %w", newName, faction.ErrAlreadyExists)
		}

		if err := sqlitex.Execute(conn, `UPDATE members SET faction = ? WHERE faction = ?`,
			&sqlitex.ExecOptions{Args: []any{newName, oldName}}); err != nil {
			return fmt.Errorf("factionstore: moving members to %q: %w", newName, err)
		}
		if err := sqlitex.Execute(conn, `
UPDATE conflicts SET
    source = CASE WHEN source = ?1 THEN ?2 ELSE source END,
    target = CASE WHEN target = ?1 THEN ?2 ELSE target END
WHERE source = ?1 OR target = ?1`,
			&sqlitex.ExecOptions{Args: []any{oldName, newName}}); err != nil {
			return fmt.Errorf("factionstore: moving conflicts to %q: %w", newName, err)
		}
		if err := sqlitex.Execute(conn, `
UPDATE conflicts SET pair_low = min(source, target), pair_high = max(source, target)
WHERE source = ?1 OR target = ?1`,
			&sqlitex.ExecOptions{Args: []any{newName}}); err != nil {
			return fmt.Errorf("factionstore: re-pairing conflicts of %q: %w", newName, err)
		}
		return nil
	})
	return record, err
}

// ClearRenamedFrom marks a rename as finished on the platform.
func (s *Store) ClearRenamedFrom(ctx context.Context, name string) error {
	return s.withConn(ctx, "clear renamed_from", func(conn *sqlite.Conn) error {
		if err := sqlitex.Execute(conn, `UPDATE factions SET renamed_from = NULL WHERE name = ?`,
			&sqlitex.ExecOptions{Args: []any{name}}); err != nil {
			return fmt.Errorf("factionstore: clearing renamed_from of %q: %w", name, err)
		}
		return nil
	})
}

// ResetPoints sets every faction's points to zero and returns how many
// factions there were.
func (s *Store) ResetPoints(ctx context.Context) (int, error) {
	var count int
	err := s.withConn(ctx, "reset points", func(conn *sqlite.Conn) error {
		if err := sqlitex.Execute(conn, `UPDATE factions SET points = 0`, nil); err != nil {
			return fmt.Errorf("factionstore: reset points: %w", err)
		}
		count = conn.Changes()
		return nil
	})
	return count, err
}
