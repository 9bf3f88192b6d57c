// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package catalog stores the shop's products and their stock items in
// SQLite.
//
// A product is identified by its code. Stock items are opaque strings
// (account credentials, redeem codes) owned by exactly one product and
// unique within it. Deleting a product removes its items and history.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/shopkeep/lib/clock"
	"github.com/bureau-foundation/shopkeep/lib/sqlitepool"
)

var (
	// ErrNotFound is returned when no product has the given code.
	ErrNotFound = errors.New("catalog: product not found")

	// ErrProductExists is returned by CreateProduct for a taken code.
	ErrProductExists = errors.New("catalog: product already exists")

	// ErrDuplicateItem is returned by AddStockItem when the product
	// already holds an identical item.
	ErrDuplicateItem = errors.New("catalog: duplicate stock item")
)

// Schema creates the catalog tables. Idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS products (
	code        TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	price       INTEGER NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS stock_items (
	id           INTEGER PRIMARY KEY,
	product_code TEXT NOT NULL REFERENCES products(code) ON DELETE CASCADE,
	content      TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'available',
	added_by     TEXT NOT NULL,
	added_at     INTEGER NOT NULL,
	UNIQUE (product_code, content)
);
CREATE TABLE IF NOT EXISTS stock_history (
	id           INTEGER PRIMARY KEY,
	product_code TEXT NOT NULL REFERENCES products(code) ON DELETE CASCADE,
	action       TEXT NOT NULL,
	quantity     INTEGER NOT NULL,
	actor        TEXT NOT NULL,
	at           INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS stock_history_by_product ON stock_history (product_code, id);
`

// Product is one catalog entry with its current available stock.
type Product struct {
	Code        string
	Name        string
	Price       int64
	Description string
	Available   int
}

// StockEvent is one row of a product's stock history.
type StockEvent struct {
	Code     string
	Action   string
	Quantity int
	Actor    string
	At       time.Time
}

// Stock history actions.
const (
	ActionAdd    = "add"
	ActionCreate = "create"
	ActionEdit   = "edit"
)

// Editable product fields accepted by UpdateProduct.
const (
	FieldName        = "name"
	FieldPrice       = "price"
	FieldDescription = "description"
)

// Store is the SQLite-backed catalog. Safe for concurrent use.
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

// CreateProduct adds a product. The code is normalized to upper case.
func (s *Store) CreateProduct(ctx context.Context, product Product, actor string) (Product, error) {
	product.Code = NormalizeCode(product.Code)
	product.Name = strings.TrimSpace(product.Name)
	if product.Code == "" || product.Name == "" {
		return Product{}, fmt.Errorf("catalog: code and name are required")
	}
	if product.Price <= 0 {
		return Product{}, fmt.Errorf("catalog: price must be positive")
	}

	now := s.clock.Now().UnixMilli()
	err := s.pool.Write(ctx, func(conn *sqlite.Conn) error {
		exists, err := productExists(conn, product.Code)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s", ErrProductExists, product.Code)
		}
		err = sqlitex.Execute(conn,
			"INSERT INTO products (code, name, price, description, created_at) VALUES (?, ?, ?, ?, ?)",
			&sqlitex.ExecOptions{Args: []any{product.Code, product.Name, product.Price, product.Description, now}})
		if err != nil {
			return fmt.Errorf("catalog: inserting product: %w", err)
		}
		return recordHistory(conn, product.Code, ActionCreate, 0, actor, now)
	})
	if err != nil {
		return Product{}, err
	}
	product.Available = 0
	return product, nil
}

// GetProduct returns the product with the given code.
func (s *Store) GetProduct(ctx context.Context, code string) (Product, error) {
	code = NormalizeCode(code)
	var product Product
	found := false
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, listQuery+" WHERE p.code = ? GROUP BY p.code", &sqlitex.ExecOptions{
			Args: []any{code},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				product = scanProduct(stmt)
				found = true
				return nil
			},
		})
	})
	if err != nil {
		return Product{}, fmt.Errorf("catalog: reading %s: %w", code, err)
	}
	if !found {
		return Product{}, fmt.Errorf("%w: %s", ErrNotFound, code)
	}
	return product, nil
}

// ListProducts returns every product ordered by code.
func (s *Store) ListProducts(ctx context.Context) ([]Product, error) {
	var products []Product
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, listQuery+" GROUP BY p.code ORDER BY p.code", &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				products = append(products, scanProduct(stmt))
				return nil
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: listing products: %w", err)
	}
	return products, nil
}

// UpdateProduct sets one field of a product and returns the result.
// Field is one of FieldName, FieldPrice, FieldDescription.
func (s *Store) UpdateProduct(ctx context.Context, code, field, value, actor string) (Product, error) {
	code = NormalizeCode(code)
	var column string
	var arg any
	switch strings.ToLower(field) {
	case FieldName:
		value = strings.TrimSpace(value)
		if value == "" {
			return Product{}, fmt.Errorf("catalog: name must not be empty")
		}
		column, arg = "name", value
	case FieldPrice:
		price, err := strconv.ParseInt(value, 10, 64)
		if err != nil || price <= 0 {
			return Product{}, fmt.Errorf("catalog: price must be a positive integer, got %q", value)
		}
		column, arg = "price", price
	case FieldDescription:
		column, arg = "description", value
	default:
		return Product{}, fmt.Errorf("catalog: unknown field %q (use %s, %s, or %s)", field, FieldName, FieldPrice, FieldDescription)
	}

	now := s.clock.Now().UnixMilli()
	err := s.pool.Write(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, "UPDATE products SET "+column+" = ? WHERE code = ?",
			&sqlitex.ExecOptions{Args: []any{arg, code}})
		if err != nil {
			return fmt.Errorf("catalog: updating %s: %w", code, err)
		}
		if conn.Changes() == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, code)
		}
		return recordHistory(conn, code, ActionEdit, 0, actor, now)
	})
	if err != nil {
		return Product{}, err
	}
	return s.GetProduct(ctx, code)
}

// DeleteProduct removes a product with its stock and history.
func (s *Store) DeleteProduct(ctx context.Context, code string) error {
	code = NormalizeCode(code)
	return s.pool.Write(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, "DELETE FROM products WHERE code = ?",
			&sqlitex.ExecOptions{Args: []any{code}})
		if err != nil {
			return fmt.Errorf("catalog: deleting %s: %w", code, err)
		}
		if conn.Changes() == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, code)
		}
		return nil
	})
}

// AddStockItem adds one available item to a product.
func (s *Store) AddStockItem(ctx context.Context, code, item, actor string) error {
	code = NormalizeCode(code)
	now := s.clock.Now().UnixMilli()
	return s.pool.Write(ctx, func(conn *sqlite.Conn) error {
		exists, err := productExists(conn, code)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: %s", ErrNotFound, code)
		}

		duplicate := false
		err = sqlitex.Execute(conn, "SELECT 1 FROM stock_items WHERE product_code = ? AND content = ?",
			&sqlitex.ExecOptions{
				Args: []any{code, item},
				ResultFunc: func(*sqlite.Stmt) error {
					duplicate = true
					return nil
				},
			})
		if err != nil {
			return fmt.Errorf("catalog: checking item: %w", err)
		}
		if duplicate {
			return ErrDuplicateItem
		}

		err = sqlitex.Execute(conn,
			"INSERT INTO stock_items (product_code, content, added_by, added_at) VALUES (?, ?, ?, ?)",
			&sqlitex.ExecOptions{Args: []any{code, item, actor, now}})
		if err != nil {
			return fmt.Errorf("catalog: inserting item: %w", err)
		}
		return recordHistory(conn, code, ActionAdd, 1, actor, now)
	})
}

// StockHistory returns up to limit history rows for a product, newest
// first.
func (s *Store) StockHistory(ctx context.Context, code string, limit int) ([]StockEvent, error) {
	code = NormalizeCode(code)
	if limit <= 0 {
		limit = 10
	}
	var events []StockEvent
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		exists, err := productExists(conn, code)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: %s", ErrNotFound, code)
		}
		return sqlitex.Execute(conn,
			"SELECT product_code, action, quantity, actor, at FROM stock_history WHERE product_code = ? ORDER BY id DESC LIMIT ?",
			&sqlitex.ExecOptions{
				Args: []any{code, limit},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					events = append(events, StockEvent{
						Code:     stmt.ColumnText(0),
						Action:   stmt.ColumnText(1),
						Quantity: stmt.ColumnInt(2),
						Actor:    stmt.ColumnText(3),
						At:       time.UnixMilli(stmt.ColumnInt64(4)).UTC(),
					})
					return nil
				},
			})
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// NormalizeCode trims and upper-cases a product code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

const listQuery = `SELECT p.code, p.name, p.price, p.description, COUNT(s.id)
FROM products p
LEFT JOIN stock_items s ON s.product_code = p.code AND s.status = 'available'`

func scanProduct(stmt *sqlite.Stmt) Product {
	return Product{
		Code:        stmt.ColumnText(0),
		Name:        stmt.ColumnText(1),
		Price:       stmt.ColumnInt64(2),
		Description: stmt.ColumnText(3),
		Available:   stmt.ColumnInt(4),
	}
}

func productExists(conn *sqlite.Conn, code string) (bool, error) {
	exists := false
	err := sqlitex.Execute(conn, "SELECT 1 FROM products WHERE code = ?", &sqlitex.ExecOptions{
		Args: []any{code},
		ResultFunc: func(*sqlite.Stmt) error {
			exists = true
			return nil
		},
	})
	if err != nil {
		return false, fmt.Errorf("catalog: looking up %s: %w", code, err)
	}
	return exists, nil
}

func recordHistory(conn *sqlite.Conn, code, action string, quantity int, actor string, at int64) error {
	err := sqlitex.Execute(conn,
		"INSERT INTO stock_history (product_code, action, quantity, actor, at) VALUES (?, ?, ?, ?, ?)",
		&sqlitex.ExecOptions{Args: []any{code, action, quantity, actor, at}})
	if err != nil {
		return fmt.Errorf("catalog: recording history: %w", err)
	}
	return nil
}
