// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/shopkeep/lib/sqlitepool"
)

const testSchema = `
CREATE TABLE IF NOT EXISTS products (code TEXT PRIMARY KEY);
CREATE TABLE IF NOT EXISTS items (
	code TEXT NOT NULL REFERENCES products(code) ON DELETE CASCADE,
	item TEXT NOT NULL
);
`

func openTestPool(t *testing.T, poolSize int) *sqlitepool.Pool {
	t.Helper()
	pool, err := sqlitepool.Open(context.Background(), sqlitepool.Config{
		Path:     filepath.Join(t.TempDir(), "shop.db"),
		PoolSize: poolSize,
		Schema:   testSchema,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := pool.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return pool
}

func countItems(t *testing.T, pool *sqlitepool.Pool) int {
	t.Helper()
	var count int
	err := pool.Read(context.Background(), func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT COUNT(*) FROM items", &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				count = stmt.ColumnInt(0)
				return nil
			},
		})
	})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	return count
}

func TestPragmas(t *testing.T) {
	pool := openTestPool(t, 1)
	err := pool.Read(context.Background(), func(conn *sqlite.Conn) error {
		for pragma, want := range map[string]string{"journal_mode": "wal", "foreign_keys": "1", "synchronous": "1"} {
			var got string
			err := sqlitex.Execute(conn, "PRAGMA "+pragma, &sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					got = stmt.ColumnText(0)
					return nil
				},
			})
			if err != nil {
				return err
			}
			if got != want {
				t.Errorf("%s = %q, want %q", pragma, got, want)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
}

func TestWriteCommitsAndRollsBack(t *testing.T) {
	pool := openTestPool(t, 2)
	ctx := context.Background()

	err := pool.Write(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.ExecuteScript(conn, `
			INSERT INTO products (code) VALUES ('DIRT');
			INSERT INTO items (code, item) VALUES ('DIRT', 'a'), ('DIRT', 'b');
		`, nil)
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := countItems(t, pool); got != 2 {
		t.Fatalf("items after commit = %d, want 2", got)
	}

	boom := errors.New("boom")
	err = pool.Write(ctx, func(conn *sqlite.Conn) error {
		if err := sqlitex.Execute(conn, "INSERT INTO items (code, item) VALUES ('DIRT', 'c')", nil); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Write error = %v, want boom", err)
	}
	if got := countItems(t, pool); got != 2 {
		t.Errorf("items after rollback = %d, want 2", got)
	}
}

func TestForeignKeyCascade(t *testing.T) {
	pool := openTestPool(t, 1)
	ctx := context.Background()
	err := pool.Write(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.ExecuteScript(conn, `
			INSERT INTO products (code) VALUES ('DIRT');
			INSERT INTO items (code, item) VALUES ('DIRT', 'a');
			DELETE FROM products WHERE code = 'DIRT';
		`, nil)
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := countItems(t, pool); got != 0 {
		t.Errorf("items after product delete = %d, want 0", got)
	}
}

func TestConcurrentReads(t *testing.T) {
	pool := openTestPool(t, 4)
	ctx := context.Background()
	err := pool.Write(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.ExecuteScript(conn, `
			INSERT INTO products (code) VALUES ('DIRT');
			INSERT INTO items (code, item) VALUES ('DIRT', '1'), ('DIRT', '2'), ('DIRT', '3');
		`, nil)
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	const readers = 8
	var waitGroup sync.WaitGroup
	failures := make(chan error, readers)
	for range readers {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			err := pool.Read(ctx, func(conn *sqlite.Conn) error {
				var count int
				err := sqlitex.Execute(conn, "SELECT COUNT(*) FROM items", &sqlitex.ExecOptions{
					ResultFunc: func(stmt *sqlite.Stmt) error {
						count = stmt.ColumnInt(0)
						return nil
					},
				})
				if err == nil && count != 3 {
					err = fmt.Errorf("count = %d, want 3", count)
				}
				return err
			})
			if err != nil {
				failures <- err
			}
		}()
	}
	waitGroup.Wait()
	close(failures)
	for err := range failures {
		t.Error(err)
	}
}

func TestOpenValidation(t *testing.T) {
	if _, err := sqlitepool.Open(context.Background(), sqlitepool.Config{}); err == nil {
		t.Error("Open with empty Path succeeded")
	}
	_, err := sqlitepool.Open(context.Background(), sqlitepool.Config{
		Path:   filepath.Join(t.TempDir(), "bad.db"),
		Schema: "CREATE TABLE broken (",
	})
	if err == nil {
		t.Error("Open with an invalid schema succeeded")
	}
}

func TestTakeHonorsContext(t *testing.T) {
	pool := openTestPool(t, 1)
	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	defer pool.Put(conn)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := pool.Take(ctx); err == nil {
		t.Error("Take with cancelled context succeeded on exhausted pool")
	}
}
