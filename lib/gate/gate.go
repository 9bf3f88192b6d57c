// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package gate asks a user to confirm an action before it runs.
//
// RequestConfirmation posts a warning prompt to a chat channel with
// accept and reject signals attached, then races three things: a
// matching signal from the requester, the timeout on the injected
// clock, and the caller's context. The first to resolve decides the
// one Outcome; the others are abandoned. Signals from anyone other
// than the requester are ignored.
//
// TimedOut must be handled exactly like Cancelled: nothing mutates.
// After resolution the gate retracts its own signals and, on timeout,
// posts a notice. Failures there are logged and never change the
// outcome.
package gate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/shopkeep/lib/chat"
	"github.com/bureau-foundation/shopkeep/lib/clock"
	"github.com/bureau-foundation/shopkeep/lib/ref"
)

// Outcome is the single terminal result of a confirmation request.
// The zero value is Cancelled.
type Outcome int

const (
	Cancelled Outcome = iota
	Confirmed
	TimedOut
)

func (o Outcome) String() string {
	switch o {
	case Confirmed:
		return "confirmed"
	case Cancelled:
		return "cancelled"
	case TimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// DefaultTimeout applies when neither the call nor Config sets one.
const DefaultTimeout = 30 * time.Second

// cleanupTimeout bounds the best-effort work done after resolution.
const cleanupTimeout = 10 * time.Second

// Config configures a Gate.
type Config struct {
	Channel chat.Channel
	Clock   clock.Clock
	// DefaultTimeout is used when RequestConfirmation gets a
	// non-positive timeout.
	DefaultTimeout time.Duration
	Logger         *slog.Logger
}

// Gate issues confirmation prompts on one channel. Safe for
// concurrent use; each request is independent.
type Gate struct {
	channel        chat.Channel
	clock          clock.Clock
	defaultTimeout time.Duration
	logger         *slog.Logger
}

// New creates a Gate.
func New(config Config) (*Gate, error) {
	if config.Channel == nil {
		return nil, fmt.Errorf("gate: Channel is required")
	}
	if config.Clock == nil {
		return nil, fmt.Errorf("gate: Clock is required")
	}
	defaultTimeout := config.DefaultTimeout
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		channel:        config.Channel,
		clock:          config.Clock,
		defaultTimeout: defaultTimeout,
		logger:         logger,
	}, nil
}

// PromptContent renders the confirmation prompt for prompt.
func PromptContent(prompt string) chat.Content {
	return chat.Markdown(fmt.Sprintf("⚠️ **WARNING**\n%s\nReact with %s to confirm or %s to cancel.",
		prompt, chat.SignalAccept, chat.SignalReject))
}

// TimedOutContent is posted when a prompt expires.
var TimedOutContent = chat.Text("❌ Operation timed out!")

type awaitResult struct {
	signal chat.Signal
	err    error
}

// RequestConfirmation blocks until requester accepts or rejects the
// prompt, the timeout elapses, or ctx ends. A non-nil error always
// comes with Cancelled: the prompt could not be posted, waiting for
// signals failed, or ctx ended.
func (g *Gate) RequestConfirmation(ctx context.Context, prompt string, requester ref.UserID, timeout time.Duration) (Outcome, error) {
	if timeout <= 0 {
		timeout = g.defaultTimeout
	}
	logger := g.logger.With(
		"request_id", uuid.NewString(),
		"requester", requester,
	)

	promptID, err := g.channel.Publish(ctx, PromptContent(prompt))
	if err != nil {
		return Cancelled, fmt.Errorf("gate: posting prompt: %w", err)
	}
	logger = logger.With("message_id", promptID)

	var attached []ref.EventID
	for _, kind := range []chat.SignalKind{chat.SignalAccept, chat.SignalReject} {
		signalID, err := g.channel.AttachSignal(ctx, promptID, kind)
		if err != nil {
			// The requester can still add the reaction by hand.
			logger.Warn("attaching signal failed", "kind", kind, "error", err)
			continue
		}
		attached = append(attached, signalID)
	}

	filter := chat.SignalFilter{
		MessageID: promptID,
		Kinds:     []chat.SignalKind{chat.SignalAccept, chat.SignalReject},
		From:      requester,
	}

	waitCtx, cancelWait := context.WithCancel(ctx)
	results := make(chan awaitResult, 1)
	go func() {
		signal, err := g.channel.AwaitSignal(waitCtx, filter, 0)
		results <- awaitResult{signal: signal, err: err}
	}()

	outcome, err := g.resolve(ctx, results, timeout)
	cancelWait()

	logger.Info("confirmation resolved", "outcome", outcome.String())
	g.cleanup(ctx, logger, attached, outcome)
	return outcome, err
}

// resolve returns whichever of signal, timeout, or cancellation
// happens first.
func (g *Gate) resolve(ctx context.Context, results <-chan awaitResult, timeout time.Duration) (Outcome, error) {
	select {
	case result := <-results:
		if result.err != nil {
			if ctx.Err() != nil {
				return Cancelled, ctx.Err()
			}
			return Cancelled, fmt.Errorf("gate: waiting for signal: %w", result.err)
		}
		if result.signal.Kind == chat.SignalAccept {
			return Confirmed, nil
		}
		return Cancelled, nil
	case <-g.clock.After(timeout):
		return TimedOut, nil
	case <-ctx.Done():
		return Cancelled, ctx.Err()
	}
}

func (g *Gate) cleanup(ctx context.Context, logger *slog.Logger, attached []ref.EventID, outcome Outcome) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	for _, signalID := range attached {
		if err := g.channel.RetractSignal(cleanupCtx, signalID); err != nil {
			logger.Debug("retracting signal failed", "signal_id", signalID, "error", err)
		}
	}
	if outcome == TimedOut {
		if _, err := g.channel.Publish(cleanupCtx, TimedOutContent); err != nil {
			logger.Debug("posting timeout notice failed", "error", err)
		}
	}
}
