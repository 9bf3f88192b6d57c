// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/bureau-foundation/shopkeep/lib/ref"
)

// scriptedSyncSession answers Sync calls from a fixed list of
// responses. Other Session methods are unused by RoomWatcher and
// panic through the nil embedded interface.
type scriptedSyncSession struct {
	Session
	responses []syncResult
	calls     []SyncOptions
	closed    int
}

type syncResult struct {
	response *SyncResponse
	err      error
}

func (s *scriptedSyncSession) Sync(ctx context.Context, options SyncOptions) (*SyncResponse, error) {
	s.calls = append(s.calls, options)
	if len(s.responses) == 0 {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	next := s.responses[0]
	s.responses = s.responses[1:]
	return next.response, next.err
}

func (s *scriptedSyncSession) CloseIdleConnections() { s.closed++ }

func timeline(batch string, roomID ref.RoomID, events ...Event) syncResult {
	return syncResult{response: &SyncResponse{
		NextBatch: batch,
		Rooms: RoomsSection{Join: map[ref.RoomID]JoinedRoom{
			roomID: {Timeline: TimelineSection{Events: events}},
		}},
	}}
}

func reactionEvent(id, sender, target, key string) Event {
	return Event{
		EventID: ref.MustParseEventID(id),
		Type:    ref.EventTypeReaction,
		Sender:  ref.MustParseUserID(sender),
		Content: map[string]any{"m.relates_to": map[string]any{
			"rel_type": RelTypeAnnotation,
			"event_id": target,
			"key":      key,
		}},
	}
}

func TestRoomWatcherWaitsFromCapturedPosition(t *testing.T) {
	session := &scriptedSyncSession{responses: []syncResult{
		{response: &SyncResponse{NextBatch: "s1"}},
		timeline("s2", testRoom, reactionEvent("$r1", "@other:example.org", "$prompt", "✅")),
		timeline("s3", testRoom, reactionEvent("$r2", "@admin:example.org", "$prompt", "✅")),
	}}

	watcher, err := WatchRoom(context.Background(), session, testRoom, &WatchFilter{
		TimelineTypes: []ref.EventType{ref.EventTypeReaction},
	}, nil)
	if err != nil {
		t.Fatalf("WatchRoom: %v", err)
	}

	event, err := watcher.WaitForEvent(context.Background(), func(event Event) bool {
		return event.Sender.String() == "@admin:example.org"
	})
	if err != nil {
		t.Fatalf("WaitForEvent: %v", err)
	}
	if event.EventID.String() != "$r2" {
		t.Errorf("event = %s, want $r2", event.EventID)
	}

	if session.calls[0].Since != "" || session.calls[0].Timeout != 0 {
		t.Errorf("initial sync = %+v, want immediate sync without since", session.calls[0])
	}
	if session.calls[1].Since != "s1" || session.calls[2].Since != "s2" {
		t.Errorf("since tokens = %q, %q", session.calls[1].Since, session.calls[2].Since)
	}
	if !strings.Contains(session.calls[1].Filter, `"m.reaction"`) {
		t.Errorf("filter %s does not restrict to reactions", session.calls[1].Filter)
	}

	// The unmatched reaction stays buffered for the next wait.
	event, err = watcher.WaitForEvent(context.Background(), func(Event) bool { return true })
	if err != nil {
		t.Fatalf("second WaitForEvent: %v", err)
	}
	if event.EventID.String() != "$r1" {
		t.Errorf("buffered event = %s, want $r1", event.EventID)
	}
}

func TestRoomWatcherRetriesThenFails(t *testing.T) {
	responses := []syncResult{{response: &SyncResponse{NextBatch: "s1"}}}
	for range maxSyncRetries + 1 {
		responses = append(responses, syncResult{err: errors.New("connection reset")})
	}
	session := &scriptedSyncSession{responses: responses}

	watcher, err := WatchRoom(context.Background(), session, testRoom, nil, nil)
	if err != nil {
		t.Fatalf("WatchRoom: %v", err)
	}
	_, err = watcher.WaitForEvent(context.Background(), func(Event) bool { return true })
	if err == nil {
		t.Fatal("expected error after repeated sync failures")
	}
	if session.closed != maxSyncRetries+1 {
		t.Errorf("CloseIdleConnections called %d times, want %d", session.closed, maxSyncRetries+1)
	}
	if session.calls[2].Timeout != retryTimeout {
		t.Errorf("retry timeout = %d, want %d", session.calls[2].Timeout, retryTimeout)
	}
}

func TestRoomWatcherHonorsContext(t *testing.T) {
	session := &scriptedSyncSession{responses: []syncResult{{response: &SyncResponse{NextBatch: "s1"}}}}
	watcher, err := WatchRoom(context.Background(), session, testRoom, nil, nil)
	if err != nil {
		t.Fatalf("WatchRoom: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := watcher.WaitForEvent(ctx, func(Event) bool { return true }); !errors.Is(err, context.Canceled) {
		t.Errorf("WaitForEvent = %v, want context.Canceled", err)
	}
}

func TestWatchRoomRequiresRoom(t *testing.T) {
	if _, err := WatchRoom(context.Background(), &scriptedSyncSession{}, ref.RoomID{}, nil, nil); err == nil {
		t.Error("expected error for zero room ID")
	}
}

func TestBuildInlineFilter(t *testing.T) {
	raw := buildInlineFilter(testRoom, &WatchFilter{TimelineLimit: 10})
	var decoded struct {
		Room struct {
			Rooms    []string       `json:"rooms"`
			Timeline map[string]any `json:"timeline"`
		} `json:"room"`
	}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		t.Fatalf("filter is not JSON: %v", err)
	}
	if len(decoded.Room.Rooms) != 1 || decoded.Room.Rooms[0] != testRoom.String() {
		t.Errorf("rooms = %v", decoded.Room.Rooms)
	}
	if decoded.Room.Timeline["limit"] != float64(10) {
		t.Errorf("timeline = %v", decoded.Room.Timeline)
	}
}
