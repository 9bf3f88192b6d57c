// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool is the SQLite connection pool behind the shop's
// catalog, ledger, and settings stores.
//
// It wraps zombiezen.com/go/sqlite's sqlitex.Pool and applies the same
// pragmas to every connection:
//
//   - journal_mode=WAL: readers never block the writer.
//   - synchronous=NORMAL: commits survive a process crash.
//   - busy_timeout=5000: wait for the write lock instead of failing
//     with SQLITE_BUSY.
//   - foreign_keys=ON: stock items and history rows cascade with their
//     product.
//   - temp_store=MEMORY.
//
// Stores borrow a connection with [Pool.Read] for queries or
// [Pool.Write] for an IMMEDIATE transaction that commits when the
// callback returns nil and rolls back otherwise:
//
//	err := pool.Write(ctx, func(conn *sqlite.Conn) error {
//	    return sqlitex.Execute(conn, "UPDATE balances SET wl = wl + ? WHERE growid = ?",
//	        &sqlitex.ExecOptions{Args: []any{delta, growID}})
//	})
//
// Connections are not safe for concurrent use; the callback must not
// retain conn.
package sqlitepool
