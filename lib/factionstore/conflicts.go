// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package factionstore

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/factionkeep/factionkeep/lib/faction"
)

func canonicalPair(a, b string) (low, high string) {
	if a < b {
		return a, b
	}
	return b, a
}

// DeclareConflict inserts an active edge (source, target). The partial
// unique index on the canonical pair rejects a second active edge in
// either order with ErrAlreadyActive. Both factions must exist.
func (s *Store) DeclareConflict(ctx context.Context, source, target string) (faction.Conflict, error) {
	if source == target {
		return faction.Conflict{}, fmt.Errorf("factionstore: %q: %w", source, faction.ErrSelfConflict)
	}
	low, high := canonicalPair(source, target)
	declared := s.now()

	var conflict faction.Conflict
	err := s.withTx(ctx, "declare conflict", func(conn *sqlite.Conn) error {
		for _, name := range []string{source, target} {
			_, found, err := getFaction(conn, name)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("factionstore: faction %q: %w", name, faction.ErrNotFound)
			}
		}
		err := sqlitex.Execute(conn, `
INSERT OR IGNORE INTO conflicts (source, target, pair_low, pair_high, active, declared_at)
VALUES (?, ?, ?, ?, 1, ?)`,
			&sqlitex.ExecOptions{Args: []any{source, target, low, high, declared}})
		if err != nil {
			return fmt.Errorf("factionstore: declaring %q vs %q: %w", source, target, err)
		}
		if conn.Changes() == 0 {
			return fmt.Errorf("factionstore: %q vs %q: %w", source, target, faction.ErrAlreadyActive)
		}
		conflict = faction.Conflict{
			ID:         conn.LastInsertRowID(),
			Source:     source,
			Target:     target,
			DeclaredAt: fromUnix(declared),
		}
		return nil
	})
	return conflict, err
}

// EndConflict deactivates the active edge between a and b in either
// order. ErrNotFound when there is none.
func (s *Store) EndConflict(ctx context.Context, a, b string) error {
	low, high := canonicalPair(a, b)
	return s.withConn(ctx, "end conflict", func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `
UPDATE conflicts SET active = 0, ended_at = ?
WHERE pair_low = ? AND pair_high = ? AND active = 1`,
			&sqlitex.ExecOptions{Args: []any{s.now(), low, high}})
		if err != nil {
			return fmt.Errorf("factionstore: ending %q vs %q: %w", a, b, err)
		}
		if conn.Changes() == 0 {
			return fmt.Errorf("factionstore: no active conflict between %q and %q: %w", a, b, faction.ErrNotFound)
		}
		return nil
	})
}

// ActiveConflicts lists active edges in declaration order, as declared.
func (s *Store) ActiveConflicts(ctx context.Context) ([]faction.Conflict, error) {
	var conflicts []faction.Conflict
	err := s.withConn(ctx, "active conflicts", func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT id, source, target, declared_at FROM conflicts WHERE active = 1 ORDER BY declared_at, id`,
			&sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					conflicts = append(conflicts, faction.Conflict{
						ID:         stmt.ColumnInt64(0),
						Source:     stmt.ColumnText(1),
						Target:     stmt.ColumnText(2),
						DeclaredAt: fromUnix(stmt.ColumnInt64(3)),
					})
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("factionstore: active conflicts: %w", err)
	}
	return conflicts, nil
}
