// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package shopdb opens the shop's SQLite database with every store's
// schema applied and produces compressed backups of it.
package shopdb

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/shopkeep/lib/catalog"
	"github.com/bureau-foundation/shopkeep/lib/ledger"
	"github.com/bureau-foundation/shopkeep/lib/settings"
	"github.com/bureau-foundation/shopkeep/lib/sqlitepool"
)

// Schema is the union of the catalog, ledger, and settings schemas.
const Schema = catalog.Schema + ledger.Schema + settings.Schema

// Config holds the parameters for Open.
type Config struct {
	Path     string
	PoolSize int
	Logger   *slog.Logger
}

// Open opens (creating if necessary) the shop database.
func Open(ctx context.Context, config Config) (*sqlitepool.Pool, error) {
	if config.Path != "" {
		if err := os.MkdirAll(filepath.Dir(config.Path), 0o700); err != nil {
			return nil, fmt.Errorf("shopdb: creating database directory: %w", err)
		}
	}
	return sqlitepool.Open(ctx, sqlitepool.Config{
		Path:     config.Path,
		PoolSize: config.PoolSize,
		Logger:   config.Logger,
		Schema:   Schema,
	})
}

// Snapshot describes a backup written by Backup.
type Snapshot struct {
	// DatabaseSize is the uncompressed size of the database copy.
	DatabaseSize int64

	// CompressedSize is the number of bytes written.
	CompressedSize int64

	// Digest is the hex BLAKE3-256 of the bytes written.
	Digest string
}

// Backup writes a zstd-compressed, transactionally consistent copy of
// the database to w. The copy is staged in a temporary directory under
// scratchDir (os.TempDir when empty) and removed afterwards.
func Backup(ctx context.Context, pool *sqlitepool.Pool, w io.Writer, scratchDir string) (Snapshot, error) {
	staging, err := os.MkdirTemp(scratchDir, "shopkeep-backup-")
	if err != nil {
		return Snapshot{}, fmt.Errorf("shopdb: creating staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	copyPath := filepath.Join(staging, "shop.db")
	err = pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "VACUUM INTO ?", &sqlitex.ExecOptions{Args: []any{copyPath}})
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("shopdb: snapshotting database: %w", err)
	}

	file, err := os.Open(copyPath)
	if err != nil {
		return Snapshot{}, fmt.Errorf("shopdb: opening snapshot: %w", err)
	}
	defer file.Close()

	hasher := blake3.New()
	counter := &countingWriter{}
	encoder, err := zstd.NewWriter(io.MultiWriter(w, hasher, counter),
		zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return Snapshot{}, fmt.Errorf("shopdb: creating encoder: %w", err)
	}
	databaseSize, err := io.Copy(encoder, file)
	if err != nil {
		encoder.Close()
		return Snapshot{}, fmt.Errorf("shopdb: compressing snapshot: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return Snapshot{}, fmt.Errorf("shopdb: finishing snapshot: %w", err)
	}

	return Snapshot{
		DatabaseSize:   databaseSize,
		CompressedSize: counter.n,
		Digest:         hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

type countingWriter struct {
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}
