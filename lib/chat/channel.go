// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/bureau-foundation/shopkeep/lib/ref"
)

var (
	// ErrNotFound means the addressed message no longer exists.
	ErrNotFound = errors.New("chat: message not found")
	// ErrTimedOut means AwaitSignal's timeout elapsed with no match.
	ErrTimedOut = errors.New("chat: timed out waiting for signal")
)

// SignalKind identifies a signal. On Matrix it is the reaction key.
type SignalKind string

// Signals used by confirmation prompts.
const (
	SignalAccept SignalKind = "✅"
	SignalReject SignalKind = "❌"
)

// Signal is one user-originated reaction to a message.
type Signal struct {
	// ID identifies the signal itself, for retraction.
	ID ref.EventID
	// MessageID is the message the signal was attached to.
	MessageID ref.EventID
	Kind      SignalKind
	From      ref.UserID
}

// SignalFilter selects the signals AwaitSignal resolves on. Zero
// fields match anything, except MessageID which is required.
type SignalFilter struct {
	MessageID ref.EventID
	Kinds     []SignalKind
	From      ref.UserID
}

// Matches reports whether signal satisfies the filter.
func (f SignalFilter) Matches(signal Signal) bool {
	if f.MessageID.IsZero() || signal.MessageID != f.MessageID {
		return false
	}
	if !f.From.IsZero() && signal.From != f.From {
		return false
	}
	if len(f.Kinds) > 0 && !slices.Contains(f.Kinds, signal.Kind) {
		return false
	}
	return true
}

// Message is a fetched message.
type Message struct {
	ID      ref.EventID
	Sender  ref.UserID
	Content Content
}

// Channel is a chat room the bot can write to and watch.
type Channel interface {
	// Publish posts content and returns the new message's ID.
	Publish(ctx context.Context, content Content) (ref.EventID, error)
	// Edit replaces the content of a message the bot published. It
	// returns ErrNotFound when the platform rejects the edit because
	// the message is gone; not every platform does, so use Fetch to
	// check existence.
	Edit(ctx context.Context, id ref.EventID, content Content) error
	// Fetch reads a message. Returns ErrNotFound if it is gone.
	Fetch(ctx context.Context, id ref.EventID) (Message, error)
	// AttachSignal adds the bot's own signal of kind to a message
	// and returns the signal's ID.
	AttachSignal(ctx context.Context, id ref.EventID, kind SignalKind) (ref.EventID, error)
	// AwaitSignal blocks until a signal matching filter exists, the
	// timeout elapses (ErrTimedOut), or ctx ends. A signal attached
	// before the call is found too. A non-positive timeout waits
	// until ctx ends.
	AwaitSignal(ctx context.Context, filter SignalFilter, timeout time.Duration) (Signal, error)
	// RetractSignal removes a signal previously returned by
	// AttachSignal.
	RetractSignal(ctx context.Context, signalID ref.EventID) error
}

// DirectSender delivers content privately to one user.
type DirectSender interface {
	SendDirect(ctx context.Context, user ref.UserID, content Content) error
}
