// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/shopkeep/lib/ref"
	"github.com/bureau-foundation/shopkeep/messaging"
)

// relationsPageLimit bounds one page of the relations lookup done
// before long-polling for a signal.
const relationsPageLimit = 100

// MatrixChannel implements Channel for one Matrix room.
type MatrixChannel struct {
	session messaging.Session
	roomID  ref.RoomID
	logger  *slog.Logger
}

// NewMatrixChannel binds a channel to roomID. The session must
// already be joined to the room.
func NewMatrixChannel(session messaging.Session, roomID ref.RoomID, logger *slog.Logger) *MatrixChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &MatrixChannel{session: session, roomID: roomID, logger: logger}
}

// RoomID returns the room this channel is bound to.
func (c *MatrixChannel) RoomID() ref.RoomID {
	return c.roomID
}

func toMessageContent(content Content) messaging.MessageContent {
	return messaging.NewNotice(content.Body, content.HTML)
}

// Publish sends content as an m.notice.
func (c *MatrixChannel) Publish(ctx context.Context, content Content) (ref.EventID, error) {
	eventID, err := c.session.SendMessage(ctx, c.roomID, toMessageContent(content))
	if err != nil {
		return ref.EventID{}, fmt.Errorf("chat: publish: %w", err)
	}
	return eventID, nil
}

// Fetch reads a message. M_NOT_FOUND and redacted events are both
// ErrNotFound.
func (c *MatrixChannel) Fetch(ctx context.Context, id ref.EventID) (Message, error) {
	event, err := c.session.GetEvent(ctx, c.roomID, id)
	if err != nil {
		if messaging.IsMatrixError(err, messaging.ErrCodeNotFound) {
			return Message{}, fmt.Errorf("chat: fetch %s: %w", id, ErrNotFound)
		}
		return Message{}, fmt.Errorf("chat: fetch %s: %w", id, err)
	}
	if event.IsRedacted() {
		return Message{}, fmt.Errorf("chat: fetch %s: redacted: %w", id, ErrNotFound)
	}

	var content messaging.MessageContent
	if err := event.DecodeContent(&content); err != nil {
		return Message{}, fmt.Errorf("chat: fetch %s: %w", id, err)
	}
	return Message{
		ID:      event.EventID,
		Sender:  event.Sender,
		Content: Content{Body: content.Body, HTML: content.FormattedBody},
	}, nil
}

// Edit sends an m.replace edit of id. Matrix accepts edits of a
// redacted event, so callers that must detect loss Fetch first.
func (c *MatrixChannel) Edit(ctx context.Context, id ref.EventID, content Content) error {
	replacement := messaging.NewReplacement(id, toMessageContent(content))
	if _, err := c.session.SendMessage(ctx, c.roomID, replacement); err != nil {
		if messaging.IsMatrixError(err, messaging.ErrCodeNotFound) {
			return fmt.Errorf("chat: edit %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("chat: edit %s: %w", id, err)
	}
	return nil
}

// AttachSignal reacts to a message with kind.
func (c *MatrixChannel) AttachSignal(ctx context.Context, id ref.EventID, kind SignalKind) (ref.EventID, error) {
	reaction := messaging.NewReaction(id, string(kind))
	eventID, err := c.session.SendEvent(ctx, c.roomID, ref.EventTypeReaction, reaction)
	if err != nil {
		return ref.EventID{}, fmt.Errorf("chat: attach %s to %s: %w", kind, id, err)
	}
	return eventID, nil
}

// RetractSignal redacts a reaction.
func (c *MatrixChannel) RetractSignal(ctx context.Context, signalID ref.EventID) error {
	if _, err := c.session.Redact(ctx, c.roomID, signalID, ""); err != nil {
		return fmt.Errorf("chat: retract %s: %w", signalID, err)
	}
	return nil
}

// AwaitSignal captures a /sync position first, then checks the
// message's existing reactions, then long-polls. A reaction landing
// between the two steps is seen by the long-poll.
func (c *MatrixChannel) AwaitSignal(ctx context.Context, filter SignalFilter, timeout time.Duration) (Signal, error) {
	if filter.MessageID.IsZero() {
		return Signal{}, fmt.Errorf("chat: await signal: message ID is required")
	}

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	signal, err := c.awaitSignal(waitCtx, filter)
	if err != nil {
		if ctx.Err() == nil && errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
			return Signal{}, ErrTimedOut
		}
		return Signal{}, err
	}
	return signal, nil
}

func (c *MatrixChannel) awaitSignal(ctx context.Context, filter SignalFilter) (Signal, error) {
	watcher, err := messaging.WatchRoom(ctx, c.session, c.roomID, &messaging.WatchFilter{
		TimelineTypes: []ref.EventType{ref.EventTypeReaction},
	}, c.logger)
	if err != nil {
		return Signal{}, fmt.Errorf("chat: await signal: %w", err)
	}

	existing, err := c.session.Relations(ctx, c.roomID, filter.MessageID,
		messaging.RelTypeAnnotation, ref.EventTypeReaction,
		messaging.RelationsOptions{Limit: relationsPageLimit})
	if err != nil {
		// The long-poll still catches new reactions.
		c.logger.Warn("listing existing reactions failed",
			"message_id", filter.MessageID,
			"error", err,
		)
	} else {
		for _, event := range existing.Chunk {
			if signal, ok := signalFromEvent(event); ok && filter.Matches(signal) {
				return signal, nil
			}
		}
	}

	event, err := watcher.WaitForEvent(ctx, func(event messaging.Event) bool {
		signal, ok := signalFromEvent(event)
		return ok && filter.Matches(signal)
	})
	if err != nil {
		return Signal{}, fmt.Errorf("chat: await signal: %w", err)
	}
	signal, _ := signalFromEvent(event)
	return signal, nil
}

func signalFromEvent(event messaging.Event) (Signal, bool) {
	annotation, ok := event.Annotation()
	if !ok {
		return Signal{}, false
	}
	return Signal{
		ID:        event.EventID,
		MessageID: annotation.EventID,
		Kind:      SignalKind(annotation.Key),
		From:      event.Sender,
	}, true
}

var _ Channel = (*MatrixChannel)(nil)
