// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package settings persists the shop's operating mode: the maintenance
// flag and the GrowID blacklist.
package settings

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/shopkeep/lib/clock"
	"github.com/bureau-foundation/shopkeep/lib/sqlitepool"
)

// Schema creates the settings tables. Idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS bot_settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS blacklist (
	growid   TEXT PRIMARY KEY COLLATE NOCASE,
	added_by TEXT NOT NULL,
	added_at INTEGER NOT NULL
);
`

const maintenanceKey = "maintenance_mode"

// Store reads and writes settings. Safe for concurrent use.
type Store struct {
	pool  *sqlitepool.Pool
	clock clock.Clock
}

// New returns a Store over pool. The pool must have been opened with
// Schema applied.
func New(pool *sqlitepool.Pool, clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.Real()
	}
	return &Store{pool: pool, clock: clk}
}

// Maintenance reports whether maintenance mode is on. Unset is off.
func (s *Store) Maintenance(ctx context.Context) (bool, error) {
	on := false
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT value FROM bot_settings WHERE key = ?", &sqlitex.ExecOptions{
			Args: []any{maintenanceKey},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				on = stmt.ColumnText(0) == "1"
				return nil
			},
		})
	})
	if err != nil {
		return false, fmt.Errorf("settings: reading maintenance mode: %w", err)
	}
	return on, nil
}

// SetMaintenance turns maintenance mode on or off.
func (s *Store) SetMaintenance(ctx context.Context, on bool) error {
	value := "0"
	if on {
		value = "1"
	}
	err := s.pool.Write(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "INSERT OR REPLACE INTO bot_settings (key, value) VALUES (?, ?)",
			&sqlitex.ExecOptions{Args: []any{maintenanceKey, value}})
	})
	if err != nil {
		return fmt.Errorf("settings: writing maintenance mode: %w", err)
	}
	return nil
}

// Blacklist adds growID. Re-adding refreshes the actor and timestamp.
func (s *Store) Blacklist(ctx context.Context, growID, actor string) error {
	now := s.clock.Now().UnixMilli()
	err := s.pool.Write(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "INSERT OR REPLACE INTO blacklist (growid, added_by, added_at) VALUES (?, ?, ?)",
			&sqlitex.ExecOptions{Args: []any{growID, actor, now}})
	})
	if err != nil {
		return fmt.Errorf("settings: blacklisting %s: %w", growID, err)
	}
	return nil
}

// Unblacklist removes growID and reports whether it was listed.
func (s *Store) Unblacklist(ctx context.Context, growID string) (bool, error) {
	removed := false
	err := s.pool.Write(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, "DELETE FROM blacklist WHERE growid = ?",
			&sqlitex.ExecOptions{Args: []any{growID}})
		removed = conn.Changes() > 0
		return err
	})
	if err != nil {
		return false, fmt.Errorf("settings: unblacklisting %s: %w", growID, err)
	}
	return removed, nil
}

// IsBlacklisted reports whether growID is on the blacklist.
func (s *Store) IsBlacklisted(ctx context.Context, growID string) (bool, error) {
	listed := false
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT 1 FROM blacklist WHERE growid = ?", &sqlitex.ExecOptions{
			Args: []any{growID},
			ResultFunc: func(*sqlite.Stmt) error {
				listed = true
				return nil
			},
		})
	})
	if err != nil {
		return false, fmt.Errorf("settings: checking blacklist: %w", err)
	}
	return listed, nil
}
