// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ledger stores customer balances and their transaction
// history in SQLite.
//
// Customers are identified by GrowID and may be linked to a Matrix user
// for direct messages. Balances never go negative: an update that would
// take a balance below zero fails with [ErrInsufficientBalance] and
// changes nothing.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/shopkeep/lib/clock"
	"github.com/bureau-foundation/shopkeep/lib/ref"
	"github.com/bureau-foundation/shopkeep/lib/sqlitepool"
)

var (
	// ErrNotFound is returned for an unregistered GrowID.
	ErrNotFound = errors.New("ledger: user not found")

	// ErrInsufficientBalance is returned when an update would make a
	// balance negative.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")

	// ErrUnknownCurrency is returned for a currency outside DefaultRates.
	ErrUnknownCurrency = errors.New("ledger: unknown currency")
)

// Schema creates the ledger tables. Idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	growid      TEXT PRIMARY KEY COLLATE NOCASE,
	matrix_user TEXT NOT NULL DEFAULT '',
	balance_wl  INTEGER NOT NULL DEFAULT 0 CHECK (balance_wl >= 0),
	created_at  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS transactions (
	id            INTEGER PRIMARY KEY,
	growid        TEXT NOT NULL COLLATE NOCASE REFERENCES users(growid) ON DELETE CASCADE,
	type          TEXT NOT NULL,
	amount_wl     INTEGER NOT NULL,
	balance_after INTEGER NOT NULL,
	details       TEXT NOT NULL,
	at            INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS transactions_by_user ON transactions (growid, id);
`

// TransactionType labels a ledger entry.
type TransactionType string

const (
	TransactionAdminAdd    TransactionType = "ADMIN_ADD"
	TransactionAdminRemove TransactionType = "ADMIN_REMOVE"
	TransactionAdminReset  TransactionType = "ADMIN_RESET"
)

// Transaction is one recorded balance change.
type Transaction struct {
	GrowID       string
	Type         TransactionType
	Amount       int64
	BalanceAfter Balance
	Details      string
	At           time.Time
}

// Store is the SQLite-backed ledger. Safe for concurrent use.
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

// Register creates a zero-balance account for growID or relinks an
// existing one to user.
func (s *Store) Register(ctx context.Context, growID string, user ref.UserID) error {
	growID = strings.TrimSpace(growID)
	if growID == "" {
		return fmt.Errorf("ledger: GrowID is required")
	}
	now := s.clock.Now().UnixMilli()
	return s.pool.Write(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `INSERT INTO users (growid, matrix_user, created_at) VALUES (?, ?, ?)
			ON CONFLICT (growid) DO UPDATE SET matrix_user = excluded.matrix_user`,
			&sqlitex.ExecOptions{Args: []any{growID, user.String(), now}})
		if err != nil {
			return fmt.Errorf("ledger: registering %s: %w", growID, err)
		}
		return nil
	})
}

// Get returns the balance of growID.
func (s *Store) Get(ctx context.Context, growID string) (Balance, error) {
	var balance Balance
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		var err error
		balance, err = readBalance(conn, growID)
		return err
	})
	return balance, err
}

// Update adds delta WL (negative to remove) to growID's balance and
// records a transaction. Returns the new balance.
func (s *Store) Update(ctx context.Context, growID string, delta int64, kind TransactionType, details string) (Balance, error) {
	now := s.clock.Now().UnixMilli()
	var updated Balance
	err := s.pool.Write(ctx, func(conn *sqlite.Conn) error {
		current, err := readBalance(conn, growID)
		if err != nil {
			return err
		}
		next := current.WL + delta
		if next < 0 {
			return fmt.Errorf("%w: %s holds %s WL, change is %s WL",
				ErrInsufficientBalance, growID, FormatAmount(current.WL), FormatAmount(delta))
		}
		err = sqlitex.Execute(conn, "UPDATE users SET balance_wl = ? WHERE growid = ?",
			&sqlitex.ExecOptions{Args: []any{next, growID}})
		if err != nil {
			return fmt.Errorf("ledger: updating %s: %w", growID, err)
		}
		err = sqlitex.Execute(conn,
			`INSERT INTO transactions (growid, type, amount_wl, balance_after, details, at)
			 SELECT growid, ?, ?, ?, ?, ? FROM users WHERE growid = ?`,
			&sqlitex.ExecOptions{Args: []any{string(kind), delta, next, details, now, growID}})
		if err != nil {
			return fmt.Errorf("ledger: recording transaction: %w", err)
		}
		updated = Balance{WL: next}
		return nil
	})
	if err != nil {
		return Balance{}, err
	}
	return updated, nil
}

// History returns up to limit transactions for growID, newest first.
func (s *Store) History(ctx context.Context, growID string, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 10
	}
	var history []Transaction
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		if _, err := readBalance(conn, growID); err != nil {
			return err
		}
		return sqlitex.Execute(conn,
			`SELECT growid, type, amount_wl, balance_after, details, at FROM transactions
			 WHERE growid = ? ORDER BY id DESC LIMIT ?`,
			&sqlitex.ExecOptions{
				Args: []any{growID, limit},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					history = append(history, Transaction{
						GrowID:       stmt.ColumnText(0),
						Type:         TransactionType(stmt.ColumnText(1)),
						Amount:       stmt.ColumnInt64(2),
						BalanceAfter: Balance{WL: stmt.ColumnInt64(3)},
						Details:      stmt.ColumnText(4),
						At:           time.UnixMilli(stmt.ColumnInt64(5)).UTC(),
					})
					return nil
				},
			})
	})
	if err != nil {
		return nil, err
	}
	return history, nil
}

// Recipients returns every distinct Matrix user linked to an account,
// sorted. Unparseable stored IDs are skipped.
func (s *Store) Recipients(ctx context.Context) ([]ref.UserID, error) {
	var users []ref.UserID
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			"SELECT DISTINCT matrix_user FROM users WHERE matrix_user != '' ORDER BY matrix_user",
			&sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					user, err := ref.ParseUserID(stmt.ColumnText(0))
					if err == nil {
						users = append(users, user)
					}
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: listing recipients: %w", err)
	}
	return users, nil
}

func readBalance(conn *sqlite.Conn, growID string) (Balance, error) {
	var balance Balance
	found := false
	err := sqlitex.Execute(conn, "SELECT balance_wl FROM users WHERE growid = ?", &sqlitex.ExecOptions{
		Args: []any{growID},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			balance.WL = stmt.ColumnInt64(0)
			found = true
			return nil
		},
	})
	if err != nil {
		return Balance{}, fmt.Errorf("ledger: reading %s: %w", growID, err)
	}
	if !found {
		return Balance{}, fmt.Errorf("%w: %s", ErrNotFound, growID)
	}
	return balance, nil
}
