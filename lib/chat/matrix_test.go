// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/shopkeep/lib/ref"
	"github.com/bureau-foundation/shopkeep/messaging"
)

var (
	testRoom  = ref.MustParseRoomID("!shop:example.org")
	testAdmin = ref.MustParseUserID("@admin:example.org")
	testOther = ref.MustParseUserID("@other:example.org")
)

// fakeSession is an in-memory messaging.Session covering the calls
// MatrixChannel and MatrixDirectSender make.
type fakeSession struct {
	messaging.Session

	mutex       sync.Mutex
	nextID      int
	events      map[ref.EventID]*messaging.Event
	sent        []sentEvent
	redacted    []ref.EventID
	getErr      error
	relations   []messaging.Event
	syncBatches [][]messaging.Event
	accountData map[string]json.RawMessage
	createdRoom int
}

type sentEvent struct {
	roomID    ref.RoomID
	eventType ref.EventType
	content   any
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		events:      make(map[ref.EventID]*messaging.Event),
		accountData: make(map[string]json.RawMessage),
	}
}

func (s *fakeSession) newID() ref.EventID {
	s.nextID++
	return ref.MustParseEventID(fmt.Sprintf("$event-%d", s.nextID))
}

func (s *fakeSession) SendMessage(ctx context.Context, roomID ref.RoomID, content messaging.MessageContent) (ref.EventID, error) {
	return s.SendEvent(ctx, roomID, ref.EventTypeMessage, content)
}

func (s *fakeSession) SendEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, content any) (ref.EventID, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	id := s.newID()
	s.sent = append(s.sent, sentEvent{roomID: roomID, eventType: eventType, content: content})
	if message, ok := content.(messaging.MessageContent); ok && message.RelatesTo == nil {
		s.events[id] = &messaging.Event{
			EventID: id,
			Type:    eventType,
			Content: map[string]any{"msgtype": message.MsgType, "body": message.Body, "formatted_body": message.FormattedBody},
		}
	}
	return id, nil
}

func (s *fakeSession) GetEvent(ctx context.Context, roomID ref.RoomID, eventID ref.EventID) (*messaging.Event, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	event, ok := s.events[eventID]
	if !ok {
		return nil, &messaging.MatrixError{Code: messaging.ErrCodeNotFound, StatusCode: 404}
	}
	return event, nil
}

func (s *fakeSession) Redact(ctx context.Context, roomID ref.RoomID, eventID ref.EventID, reason string) (ref.EventID, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.redacted = append(s.redacted, eventID)
	return s.newID(), nil
}

func (s *fakeSession) Relations(ctx context.Context, roomID ref.RoomID, eventID ref.EventID, relType string, eventType ref.EventType, options messaging.RelationsOptions) (*messaging.RelationsResponse, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return &messaging.RelationsResponse{Chunk: s.relations}, nil
}

func (s *fakeSession) Sync(ctx context.Context, options messaging.SyncOptions) (*messaging.SyncResponse, error) {
	s.mutex.Lock()
	if options.Timeout == 0 || len(s.syncBatches) == 0 {
		s.mutex.Unlock()
		if options.Timeout == 0 {
			return &messaging.SyncResponse{NextBatch: "s0"}, nil
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}
	batch := s.syncBatches[0]
	s.syncBatches = s.syncBatches[1:]
	s.mutex.Unlock()
	return &messaging.SyncResponse{
		NextBatch: "s1",
		Rooms: messaging.RoomsSection{Join: map[ref.RoomID]messaging.JoinedRoom{
			testRoom: {Timeline: messaging.TimelineSection{Events: batch}},
		}},
	}, nil
}

func (s *fakeSession) GetAccountData(ctx context.Context, dataType string) (json.RawMessage, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	raw, ok := s.accountData[dataType]
	if !ok {
		return nil, &messaging.MatrixError{Code: messaging.ErrCodeNotFound, StatusCode: 404}
	}
	return raw, nil
}

func (s *fakeSession) SetAccountData(ctx context.Context, dataType string, content any) error {
	data, err := json.Marshal(content)
	if err != nil {
		return err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.accountData[dataType] = data
	return nil
}

func (s *fakeSession) CreateRoom(ctx context.Context, request messaging.CreateRoomRequest) (*messaging.CreateRoomResponse, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.createdRoom++
	return &messaging.CreateRoomResponse{RoomID: ref.MustParseRoomID("!dm:example.org")}, nil
}

func reaction(id string, from ref.UserID, target ref.EventID, key SignalKind) messaging.Event {
	return messaging.Event{
		EventID: ref.MustParseEventID(id),
		Type:    ref.EventTypeReaction,
		Sender:  from,
		Content: map[string]any{"m.relates_to": map[string]any{
			"rel_type": messaging.RelTypeAnnotation,
			"event_id": target.String(),
			"key":      string(key),
		}},
	}
}

func TestMatrixChannelPublishAndEdit(t *testing.T) {
	session := newFakeSession()
	channel := NewMatrixChannel(session, testRoom, nil)
	ctx := context.Background()

	id, err := channel.Publish(ctx, Markdown("**stock**"))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	message, err := channel.Fetch(ctx, id)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if message.Content.Body != "**stock**" || message.Content.HTML == "" {
		t.Errorf("fetched content = %+v", message.Content)
	}

	if err := channel.Edit(ctx, id, Text("updated")); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	last := session.sent[len(session.sent)-1].content.(messaging.MessageContent)
	if last.RelatesTo == nil || last.RelatesTo.RelType != messaging.RelTypeReplace || last.RelatesTo.EventID != id {
		t.Errorf("edit relation = %+v", last.RelatesTo)
	}
	if last.NewContent == nil || last.NewContent.Body != "updated" {
		t.Errorf("edit new content = %+v", last.NewContent)
	}
}

func TestMatrixChannelLoss(t *testing.T) {
	session := newFakeSession()
	channel := NewMatrixChannel(session, testRoom, nil)
	ctx := context.Background()

	missing := ref.MustParseEventID("$missing")
	if _, err := channel.Fetch(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Errorf("Fetch missing = %v, want ErrNotFound", err)
	}
	redacted := ref.MustParseEventID("$redacted")
	session.events[redacted] = &messaging.Event{
		EventID:  redacted,
		Type:     ref.EventTypeMessage,
		Content:  map[string]any{},
		Unsigned: &messaging.EventUnsigned{RedactedBecause: json.RawMessage(`{"event_id":"$r"}`)},
	}
	if _, err := channel.Fetch(ctx, redacted); !errors.Is(err, ErrNotFound) {
		t.Errorf("Fetch redacted = %v, want ErrNotFound", err)
	}

	session.getErr = errors.New("connection refused")
	_, err := channel.Fetch(ctx, redacted)
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("Fetch with transport failure = %v, want non-NotFound error", err)
	}
}

func TestMatrixChannelAttachAndRetract(t *testing.T) {
	session := newFakeSession()
	channel := NewMatrixChannel(session, testRoom, nil)
	ctx := context.Background()

	prompt := ref.MustParseEventID("$prompt")
	signalID, err := channel.AttachSignal(ctx, prompt, SignalAccept)
	if err != nil {
		t.Fatalf("AttachSignal: %v", err)
	}
	sent := session.sent[len(session.sent)-1]
	if sent.eventType != ref.EventTypeReaction {
		t.Errorf("event type = %s", sent.eventType)
	}
	content := sent.content.(messaging.ReactionContent)
	if content.RelatesTo.Key != string(SignalAccept) || content.RelatesTo.EventID != prompt {
		t.Errorf("reaction = %+v", content.RelatesTo)
	}

	if err := channel.RetractSignal(ctx, signalID); err != nil {
		t.Fatalf("RetractSignal: %v", err)
	}
	if len(session.redacted) != 1 || session.redacted[0] != signalID {
		t.Errorf("redacted = %v, want [%s]", session.redacted, signalID)
	}
}

func TestMatrixChannelAwaitSignalFindsExistingReaction(t *testing.T) {
	session := newFakeSession()
	prompt := ref.MustParseEventID("$prompt")
	session.relations = []messaging.Event{
		reaction("$foreign", testOther, prompt, SignalAccept),
		reaction("$mine", testAdmin, prompt, SignalReject),
	}
	channel := NewMatrixChannel(session, testRoom, nil)

	signal, err := channel.AwaitSignal(context.Background(), SignalFilter{
		MessageID: prompt,
		Kinds:     []SignalKind{SignalAccept, SignalReject},
		From:      testAdmin,
	}, time.Minute)
	if err != nil {
		t.Fatalf("AwaitSignal: %v", err)
	}
	if signal.Kind != SignalReject || signal.From != testAdmin || signal.ID.String() != "$mine" {
		t.Errorf("signal = %+v", signal)
	}
}

func TestMatrixChannelAwaitSignalLongPolls(t *testing.T) {
	session := newFakeSession()
	prompt := ref.MustParseEventID("$prompt")
	session.syncBatches = [][]messaging.Event{
		{reaction("$foreign", testOther, prompt, SignalAccept)},
		{reaction("$mine", testAdmin, prompt, SignalAccept)},
	}
	channel := NewMatrixChannel(session, testRoom, nil)

	signal, err := channel.AwaitSignal(context.Background(), SignalFilter{
		MessageID: prompt,
		From:      testAdmin,
	}, time.Minute)
	if err != nil {
		t.Fatalf("AwaitSignal: %v", err)
	}
	if signal.ID.String() != "$mine" {
		t.Errorf("signal = %+v, want $mine", signal)
	}
}

func TestMatrixChannelAwaitSignalTimeout(t *testing.T) {
	session := newFakeSession()
	channel := NewMatrixChannel(session, testRoom, nil)

	_, err := channel.AwaitSignal(context.Background(), SignalFilter{
		MessageID: ref.MustParseEventID("$prompt"),
	}, 20*time.Millisecond)
	if !errors.Is(err, ErrTimedOut) {
		t.Errorf("AwaitSignal = %v, want ErrTimedOut", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = channel.AwaitSignal(ctx, SignalFilter{MessageID: ref.MustParseEventID("$prompt")}, time.Minute)
	if errors.Is(err, ErrTimedOut) || err == nil {
		t.Errorf("AwaitSignal with cancelled ctx = %v, want cancellation error", err)
	}
}

func TestMatrixDirectSender(t *testing.T) {
	session := newFakeSession()
	sender := NewMatrixDirectSender(session, nil)
	buyer := ref.MustParseUserID("@buyer:example.org")
	ctx := context.Background()

	for range 2 {
		if err := sender.SendDirect(ctx, buyer, Text("maintenance")); err != nil {
			t.Fatalf("SendDirect: %v", err)
		}
	}
	if session.createdRoom != 1 {
		t.Errorf("created %d rooms, want 1", session.createdRoom)
	}
	var direct map[string][]string
	if err := json.Unmarshal(session.accountData["m.direct"], &direct); err != nil {
		t.Fatalf("decoding m.direct: %v", err)
	}
	if got := direct[buyer.String()]; len(got) != 1 || got[0] != "!dm:example.org" {
		t.Errorf("m.direct = %v", direct)
	}

	// A fresh sender picks the room up from account data.
	fresh := NewMatrixDirectSender(session, nil)
	if err := fresh.SendDirect(ctx, buyer, Text("again")); err != nil {
		t.Fatalf("SendDirect: %v", err)
	}
	if session.createdRoom != 1 {
		t.Errorf("fresh sender created another room")
	}

	if err := sender.SendDirect(ctx, ref.UserID{}, Text("x")); err == nil {
		t.Error("SendDirect to empty user succeeded")
	}
}
