// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/shopkeep/lib/clock"
	"github.com/bureau-foundation/shopkeep/messaging"
)

// SyncConfig configures the /sync long-poll loop.
type SyncConfig struct {
	// Filter is the inline JSON filter sent with every request.
	Filter string

	// Timeout is the long-poll timeout in milliseconds. Default 30000.
	Timeout int

	// MaxBackoff caps the retry delay after a failed /sync. The delay
	// starts at one second and doubles. Default 30s.
	MaxBackoff time.Duration
}

// SyncHandler is called with each /sync response, in order. The next
// poll starts after it returns, so long work belongs in a goroutine.
type SyncHandler func(ctx context.Context, response *messaging.SyncResponse)

// InitialSync performs a /sync without a since token and returns the
// position to continue from. The bot skips the initial response so
// that commands sent while it was down are not replayed.
func InitialSync(ctx context.Context, session messaging.Session, filter string) (string, error) {
	response, err := session.Sync(ctx, messaging.SyncOptions{Filter: filter})
	if err != nil {
		return "", fmt.Errorf("initial sync: %w", err)
	}
	return response.NextBatch, nil
}

// RunSyncLoop polls /sync from sinceToken until ctx is cancelled,
// calling handler for each response. Failures are logged and retried
// with exponential backoff on clk.
func RunSyncLoop(ctx context.Context, session messaging.Session, config SyncConfig, sinceToken string, handler SyncHandler, clk clock.Clock, logger *slog.Logger) {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30000
	}
	maxBackoff := config.MaxBackoff
	if maxBackoff == 0 {
		maxBackoff = 30 * time.Second
	}

	backoff := time.Second
	for ctx.Err() == nil {
		response, err := session.Sync(ctx, messaging.SyncOptions{
			Since:      sinceToken,
			Timeout:    timeout,
			SetTimeout: true,
			Filter:     config.Filter,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("sync failed, retrying", "error", err, "backoff", backoff)
			select {
			case <-ctx.Done():
				return
			case <-clk.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		backoff = time.Second
		sinceToken = response.NextBatch
		handler(ctx, response)
	}
}
