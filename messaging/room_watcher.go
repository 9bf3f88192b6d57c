// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/shopkeep/lib/ref"
)

// WatchFilter narrows what a RoomWatcher receives. The watched room is
// always the only room included. A nil filter means every timeline
// event type.
type WatchFilter struct {
	// TimelineTypes restricts timeline events to these event types.
	TimelineTypes []ref.EventType
	// TimelineLimit caps timeline events per /sync response.
	TimelineLimit int
}

// buildInlineFilter scopes /sync to one room's timeline. State,
// presence, and account data are suppressed: the bot only ever waits
// on timeline events (messages and reactions).
func buildInlineFilter(roomID ref.RoomID, filter *WatchFilter) string {
	timeline := map[string]any{}
	if filter != nil {
		if len(filter.TimelineTypes) > 0 {
			types := make([]string, len(filter.TimelineTypes))
			for i, eventType := range filter.TimelineTypes {
				types[i] = eventType.String()
			}
			timeline["types"] = types
		}
		if filter.TimelineLimit > 0 {
			timeline["limit"] = filter.TimelineLimit
		}
	}

	top := map[string]any{
		"room": map[string]any{
			"rooms":    []string{roomID.String()},
			"timeline": timeline,
			"state":    map[string]any{"types": []string{}},
		},
		"presence":     map[string]any{"types": []string{}},
		"account_data": map[string]any{"types": []string{}},
	}
	data, _ := json.Marshal(top)
	return string(data)
}

// RoomWatcher holds a position in the /sync stream for one room.
// Create it with WatchRoom before triggering whatever produces the
// awaited event, then call WaitForEvent.
//
// Not safe for concurrent use. Independent watchers on the same
// Session are fine: the since token is a query parameter, not
// server-side state.
type RoomWatcher struct {
	session   Session
	roomID    ref.RoomID
	filter    string
	nextBatch string
	pending   []Event
	logger    *slog.Logger
}

// WatchRoom captures the current /sync position for roomID with an
// immediate (timeout=0) sync. Only events after this point are seen.
func WatchRoom(ctx context.Context, session Session, roomID ref.RoomID, filter *WatchFilter, logger *slog.Logger) (*RoomWatcher, error) {
	if roomID.IsZero() {
		return nil, fmt.Errorf("messaging: WatchRoom requires a non-zero room ID")
	}
	if logger == nil {
		logger = slog.Default()
	}
	inlineFilter := buildInlineFilter(roomID, filter)
	response, err := session.Sync(ctx, SyncOptions{
		SetTimeout: true,
		Timeout:    0,
		Filter:     inlineFilter,
	})
	if err != nil {
		return nil, fmt.Errorf("messaging: initial sync for room watch: %w", err)
	}
	return &RoomWatcher{
		session:   session,
		roomID:    roomID,
		filter:    inlineFilter,
		nextBatch: response.NextBatch,
		logger:    logger,
	}, nil
}

// maxSyncRetries bounds consecutive /sync failures in WaitForEvent.
const maxSyncRetries = 5

// longPollTimeout is the server-side hold for /sync, in milliseconds.
const longPollTimeout = 30000

// retryTimeout is the server-side hold after a failed /sync, in
// milliseconds. The round-trip itself is the backoff.
const retryTimeout = 1000

// maxPending bounds events buffered but never matched. Oldest are
// dropped first.
const maxPending = 1024

// WaitForEvent blocks until an event satisfying predicate arrives in
// the watched room, or ctx ends. Events from one /sync batch that are
// not consumed stay buffered for the next call.
func (w *RoomWatcher) WaitForEvent(ctx context.Context, predicate func(Event) bool) (Event, error) {
	if event, ok := w.takePending(predicate); ok {
		return event, nil
	}

	var syncRetries int
	for {
		syncTimeout := longPollTimeout
		if syncRetries > 0 {
			syncTimeout = retryTimeout
		}
		response, err := w.session.Sync(ctx, SyncOptions{
			Since:      w.nextBatch,
			SetTimeout: true,
			Timeout:    syncTimeout,
			Filter:     w.filter,
		})
		if err != nil {
			if ctx.Err() != nil {
				return Event{}, fmt.Errorf("messaging: waiting for event in room %s: %w", w.roomID, ctx.Err())
			}
			syncRetries++
			if closer, ok := w.session.(interface{ CloseIdleConnections() }); ok {
				closer.CloseIdleConnections()
			}
			if syncRetries > maxSyncRetries {
				return Event{}, fmt.Errorf("messaging: sync failed %d consecutive times waiting for event in room %s: %w",
					syncRetries, w.roomID, err)
			}
			w.logger.Debug("room watcher sync error, retrying",
				"room_id", w.roomID,
				"attempt", syncRetries,
				"error", err,
			)
			continue
		}
		syncRetries = 0
		w.nextBatch = response.NextBatch

		joined, ok := response.Rooms.Join[w.roomID]
		if !ok || len(joined.Timeline.Events) == 0 {
			continue
		}

		w.pending = append(w.pending, joined.Timeline.Events...)
		if overflow := len(w.pending) - maxPending; overflow > 0 {
			w.pending = w.pending[overflow:]
		}
		if event, ok := w.takePending(predicate); ok {
			return event, nil
		}
	}
}

func (w *RoomWatcher) takePending(predicate func(Event) bool) (Event, bool) {
	for i, event := range w.pending {
		if predicate(event) {
			w.pending = append(w.pending[:i], w.pending[i+1:]...)
			return event, true
		}
	}
	return Event{}, false
}

// RoomID returns the room being watched.
func (w *RoomWatcher) RoomID() ref.RoomID {
	return w.roomID
}
