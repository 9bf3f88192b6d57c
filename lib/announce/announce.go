// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package announce delivers one message to many users by direct
// message.
//
// Delivery is best effort. Each recipient is tried once, in order; a
// failure is counted and logged and the broadcast moves on.
package announce

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bureau-foundation/shopkeep/lib/chat"
	"github.com/bureau-foundation/shopkeep/lib/progress"
	"github.com/bureau-foundation/shopkeep/lib/ref"
)

// MaintenanceNotice is sent to every recipient when maintenance mode
// is switched on.
const MaintenanceNotice = "⚠️ The bot is entering maintenance mode. " +
	"Some features may be unavailable. " +
	"We'll notify you when service is restored."

const maxRecordedFailures = 20

// Compose renders an announcement written in markdown, signed by
// author.
func Compose(message string, author ref.UserID) chat.Content {
	return chat.Markdown(fmt.Sprintf("## 📢 Announcement\n\n%s\n\n_Sent by %s_", message, author))
}

// Config configures a Fanout.
type Config struct {
	Sender   chat.DirectSender
	Progress progress.Config
	Logger   *slog.Logger
}

// Failure is one recipient that could not be reached.
type Failure struct {
	Recipient ref.UserID
	Err       error
}

// Result summarizes one broadcast. Sent+Failed == Total.
type Result struct {
	Total  int
	Sent   int
	Failed int
	// Failures holds the first few failed recipients in order.
	Failures []Failure
}

// Fanout broadcasts messages. Safe for concurrent use.
type Fanout struct {
	sender   chat.DirectSender
	progress progress.Config
	logger   *slog.Logger
}

// New creates a Fanout.
func New(config Config) (*Fanout, error) {
	if config.Sender == nil {
		return nil, fmt.Errorf("announce: Sender is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{sender: config.Sender, progress: config.Progress, logger: logger}, nil
}

// Broadcast sends content to each recipient in order. report, if
// non-nil, receives (processed, total) at the configured cadence.
// Once ctx is done the remaining recipients are counted as failed
// without being tried.
func (f *Fanout) Broadcast(ctx context.Context, content chat.Content, recipients []ref.UserID, report progress.Func) Result {
	result := Result{Total: len(recipients)}
	logger := f.logger.With("broadcast_id", uuid.NewString())
	logger.Info("broadcast started", "recipients", result.Total)

	reporter := progress.New(result.Total, f.progress, report)
	for _, recipient := range recipients {
		err := ctx.Err()
		if err == nil {
			err = f.sender.SendDirect(ctx, recipient, content)
		}
		if err != nil {
			result.Failed++
			if len(result.Failures) < maxRecordedFailures {
				result.Failures = append(result.Failures, Failure{Recipient: recipient, Err: err})
			}
			logger.Debug("direct message failed", "recipient", recipient.String(), "error", err)
		} else {
			result.Sent++
		}
		reporter.Step()
	}

	logger.Info("broadcast finished",
		"total", result.Total,
		"sent", result.Sent,
		"failed", result.Failed,
	)
	return result
}
