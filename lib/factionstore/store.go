// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

// Package factionstore is the durable record store: factions,
// memberships, trusted groups and conflict edges in one SQLite
// database.
//
// Every write that participates in a race is a single conditional
// statement (insert-if-absent, compare-and-set, or a unique index), so
// callers never need an application lock. Multi-row changes run inside
// one IMMEDIATE transaction.
package factionstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/factionkeep/factionkeep/lib/clock"
	"github.com/factionkeep/factionkeep/lib/sqlitepool"
)

// migrations are append-only.
var migrations = []string{
	`
CREATE TABLE factions (
    name         TEXT PRIMARY KEY,
    slug         TEXT NOT NULL UNIQUE,
    points       INTEGER NOT NULL DEFAULT 0 CHECK (points >= 0),
    leader       TEXT,
    renamed_from TEXT,
    created_at   INTEGER NOT NULL
);
CREATE TABLE members (
    user_id      TEXT PRIMARY KEY,
    faction      TEXT,
    last_checkin TEXT
);
CREATE INDEX members_by_faction ON members(faction);
CREATE TABLE trusted_groups (
    workspace TEXT NOT NULL,
    group_id  TEXT NOT NULL,
    added_by  TEXT NOT NULL,
    added_at  INTEGER NOT NULL,
    PRIMARY KEY (workspace, group_id)
);
CREATE TABLE conflicts (
    id          INTEGER PRIMARY KEY,
    source      TEXT NOT NULL,
    target      TEXT NOT NULL,
    pair_low    TEXT NOT NULL,
    pair_high   TEXT NOT NULL,
    active      INTEGER NOT NULL DEFAULT 1,
    declared_at INTEGER NOT NULL,
    ended_at    INTEGER
);
CREATE UNIQUE INDEX conflicts_active_pair ON conflicts(pair_low, pair_high) WHERE active = 1;
`,
	`
ALTER TABLE members ADD COLUMN pending INTEGER NOT NULL DEFAULT 0;
ALTER TABLE members ADD COLUMN claimed_at INTEGER;
`,
}

// Config holds the parameters for Open.
type Config struct {
	Path     string
	PoolSize int
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Store is safe for concurrent use.
type Store struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

// Open opens or creates the database and migrates it.
func Open(cfg Config) (*Store, error) {
	if cfg.Clock == nil {
		return nil, fmt.Errorf("factionstore: Clock is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("factionstore: Logger is required")
	}
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:       cfg.Path,
		PoolSize:   cfg.PoolSize,
		Migrations: migrations,
		Logger:     cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("factionstore: %w", err)
	}
	return &Store{pool: pool, clock: cfg.Clock, logger: cfg.Logger}, nil
}

// Close waits for in-flight operations and closes the database.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Stats is a point-in-time summary for the status endpoint.
type Stats struct {
	SchemaVersion  int `json:"schema_version"`
	Factions       int `json:"factions"`
	Members        int `json:"members"`
	ActiveConflict int `json:"active_conflicts"`
	PendingRenames int `json:"pending_renames"`
}

// Stats counts rows in each table.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("factionstore: stats: %w", err)
	}
	defer s.pool.Put(conn)

	var stats Stats
	err = sqlitex.Execute(conn, `
SELECT
    (SELECT COUNT(*) FROM factions),
    (SELECT COUNT(*) FROM members WHERE faction IS NOT NULL AND pending = 0),
    (SELECT COUNT(*) FROM conflicts WHERE active = 1),
    (SELECT COUNT(*) FROM factions WHERE renamed_from IS NOT NULL)`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				stats.Factions = stmt.ColumnInt(0)
				stats.Members = stmt.ColumnInt(1)
				stats.ActiveConflict = stmt.ColumnInt(2)
				stats.PendingRenames = stmt.ColumnInt(3)
				return nil
			},
		})
	if err != nil {
		return Stats{}, fmt.Errorf("factionstore: stats: %w", err)
	}
	stats.SchemaVersion = len(migrations)
	return stats, nil
}

// withConn runs fn on a pooled connection.
func (s *Store) withConn(ctx context.Context, op string, fn func(*sqlite.Conn) error) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("factionstore: %s: %w", op, err)
	}
	defer s.pool.Put(conn)
	return fn(conn)
}

// withTx runs fn inside an IMMEDIATE transaction, committing when fn
// returns nil.
func (s *Store) withTx(ctx context.Context, op string, fn func(*sqlite.Conn) error) (err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("factionstore: %s: %w", op, err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("factionstore: %s: begin: %w", op, err)
	}
	defer endTransaction(&err)
	return fn(conn)
}

func (s *Store) now() int64 {
	return s.clock.Now().Unix()
}

func fromUnix(seconds int64) time.Time {
	return time.Unix(seconds, 0).UTC()
}

// nullable binds "" as SQL NULL.
func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}
