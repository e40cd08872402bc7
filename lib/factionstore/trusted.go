// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package factionstore

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/factionkeep/factionkeep/lib/faction"
	"github.com/factionkeep/factionkeep/lib/ref"
)

// AddTrustedGroup records group as trusted in workspace.
// ErrAlreadyExists when it already is.
func (s *Store) AddTrustedGroup(ctx context.Context, workspace, group ref.RoomID, addedBy ref.UserID) (faction.TrustedGroup, error) {
	record := faction.TrustedGroup{
		Workspace: workspace,
		Group:     group,
		AddedBy:   addedBy,
		AddedAt:   fromUnix(s.now()),
	}
	err := s.withConn(ctx, "add trusted group", func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `
INSERT INTO trusted_groups (workspace, group_id, added_by, added_at) VALUES (?, ?, ?, ?)
ON CONFLICT (workspace, group_id) DO NOTHING`,
			&sqlitex.ExecOptions{Args: []any{workspace.String(), group.String(), addedBy.String(), record.AddedAt.Unix()}})
		if err != nil {
			return fmt.Errorf("factionstore: adding trusted group %s: %w", group, err)
		}
		if conn.Changes() == 0 {
			return fmt.Errorf("factionstore: %s already trusted in %s: %w", group, workspace, faction.ErrAlreadyExists)
		}
		return nil
	})
	if err != nil {
		return faction.TrustedGroup{}, err
	}
	return record, nil
}

// RemoveTrustedGroup fails with ErrNotFound when group is not trusted
// in workspace.
func (s *Store) RemoveTrustedGroup(ctx context.Context, workspace, group ref.RoomID) error {
	return s.withConn(ctx, "remove trusted group", func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `DELETE FROM trusted_groups WHERE workspace = ? AND group_id = ?`,
			&sqlitex.ExecOptions{Args: []any{workspace.String(), group.String()}})
		if err != nil {
			return fmt.Errorf("factionstore: removing trusted group %s: %w", group, err)
		}
		if conn.Changes() == 0 {
			return fmt.Errorf("factionstore: %s not trusted in %s: %w", group, workspace, faction.ErrNotFound)
		}
		return nil
	})
}

// TrustedGroups lists the groups trusted in workspace, oldest first.
// A zero workspace lists every workspace.
func (s *Store) TrustedGroups(ctx context.Context, workspace ref.RoomID) ([]faction.TrustedGroup, error) {
	query := `SELECT workspace, group_id, added_by, added_at FROM trusted_groups`
	var args []any
	if !workspace.IsZero() {
		query += ` WHERE workspace = ?`
		args = append(args, workspace.String())
	}
	query += ` ORDER BY added_at, workspace, group_id`

	var groups []faction.TrustedGroup
	err := s.withConn(ctx, "trusted groups", func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				workspace, err := ref.ParseRoomID(stmt.ColumnText(0))
				if err != nil {
					return err
				}
				group, err := ref.ParseRoomID(stmt.ColumnText(1))
				if err != nil {
					return err
				}
				// The operator socket adds groups with no user.
				var addedBy ref.UserID
				if text := stmt.ColumnText(2); text != "" {
					if addedBy, err = ref.ParseUserID(text); err != nil {
						return err
					}
				}
				groups = append(groups, faction.TrustedGroup{
					Workspace: workspace,
					Group:     group,
					AddedBy:   addedBy,
					AddedAt:   fromUnix(stmt.ColumnInt64(3)),
				})
				return nil
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("factionstore: trusted groups: %w", err)
	}
	return groups, nil
}
