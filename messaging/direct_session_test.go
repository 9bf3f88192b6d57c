// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/bureau-foundation/shopkeep/lib/ref"
)

func TestSendMessageUsesUniqueTransactionIDs(t *testing.T) {
	var mutex sync.Mutex
	seen := map[string]bool{}
	session := newTestSession(t, func(writer http.ResponseWriter, request *http.Request) {
		if request.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", request.Method)
		}
		prefix := "/_matrix/client/v3/rooms/!shop:example.org/send/m.room.message/"
		if !strings.HasPrefix(request.URL.Path, prefix) {
			t.Errorf("path = %s", request.URL.Path)
		}
		mutex.Lock()
		seen[strings.TrimPrefix(request.URL.Path, prefix)] = true
		mutex.Unlock()

		var content MessageContent
		if err := json.NewDecoder(request.Body).Decode(&content); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		if content.MsgType != MsgTypeNotice || content.Body != "hello" {
			t.Errorf("content = %+v", content)
		}
		writeJSON(writer, http.StatusOK, map[string]string{"event_id": "$sent"})
	})

	for range 3 {
		eventID, err := session.SendMessage(context.Background(), testRoom, NewNotice("hello", ""))
		if err != nil {
			t.Fatalf("SendMessage: %v", err)
		}
		if eventID.String() != "$sent" {
			t.Errorf("event ID = %s", eventID)
		}
	}
	if len(seen) != 3 {
		t.Errorf("saw %d distinct transaction IDs, want 3", len(seen))
	}
}

func TestGetEvent(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		session := newTestSession(t, func(writer http.ResponseWriter, request *http.Request) {
			if request.URL.Path != "/_matrix/client/v3/rooms/!shop:example.org/event/$live" {
				t.Errorf("path = %s", request.URL.Path)
			}
			writeJSON(writer, http.StatusOK, map[string]any{
				"event_id": "$live",
				"type":     "m.room.message",
				"sender":   testUser.String(),
				"content":  map[string]any{"msgtype": "m.notice", "body": "stock"},
			})
		})
		event, err := session.GetEvent(context.Background(), testRoom, ref.MustParseEventID("$live"))
		if err != nil {
			t.Fatalf("GetEvent: %v", err)
		}
		if event.IsRedacted() {
			t.Error("unredacted event reported as redacted")
		}
		var content MessageContent
		if err := event.DecodeContent(&content); err != nil {
			t.Fatalf("DecodeContent: %v", err)
		}
		if content.Body != "stock" {
			t.Errorf("body = %q", content.Body)
		}
	})

	t.Run("redacted", func(t *testing.T) {
		session := newTestSession(t, func(writer http.ResponseWriter, request *http.Request) {
			writeJSON(writer, http.StatusOK, map[string]any{
				"event_id": "$live",
				"type":     "m.room.message",
				"sender":   testUser.String(),
				"content":  map[string]any{},
				"unsigned": map[string]any{"redacted_because": map[string]any{"event_id": "$redaction"}},
			})
		})
		event, err := session.GetEvent(context.Background(), testRoom, ref.MustParseEventID("$live"))
		if err != nil {
			t.Fatalf("GetEvent: %v", err)
		}
		if !event.IsRedacted() {
			t.Error("redacted event not reported as redacted")
		}
	})

	t.Run("not found", func(t *testing.T) {
		session := newTestSession(t, func(writer http.ResponseWriter, request *http.Request) {
			writeJSON(writer, http.StatusNotFound, map[string]string{"errcode": ErrCodeNotFound, "error": "Event not found"})
		})
		_, err := session.GetEvent(context.Background(), testRoom, ref.MustParseEventID("$gone"))
		if !IsMatrixError(err, ErrCodeNotFound) {
			t.Errorf("error = %v, want M_NOT_FOUND", err)
		}
	})
}

func TestRelations(t *testing.T) {
	session := newTestSession(t, func(writer http.ResponseWriter, request *http.Request) {
		want := "/_matrix/client/v1/rooms/!shop:example.org/relations/$prompt/m.annotation/m.reaction"
		if request.URL.Path != want {
			t.Errorf("path = %s, want %s", request.URL.Path, want)
		}
		if request.URL.Query().Get("limit") != "50" {
			t.Errorf("limit = %q", request.URL.Query().Get("limit"))
		}
		writeJSON(writer, http.StatusOK, map[string]any{
			"chunk": []map[string]any{{
				"event_id": "$reaction",
				"type":     "m.reaction",
				"sender":   "@admin:example.org",
				"content": map[string]any{"m.relates_to": map[string]any{
					"rel_type": "m.annotation",
					"event_id": "$prompt",
					"key":      "✅",
				}},
			}},
		})
	})

	response, err := session.Relations(context.Background(), testRoom, ref.MustParseEventID("$prompt"),
		RelTypeAnnotation, ref.EventTypeReaction, RelationsOptions{Limit: 50})
	if err != nil {
		t.Fatalf("Relations: %v", err)
	}
	if len(response.Chunk) != 1 {
		t.Fatalf("chunk has %d events", len(response.Chunk))
	}
	annotation, ok := response.Chunk[0].Annotation()
	if !ok {
		t.Fatal("Annotation() = false for reaction event")
	}
	if annotation.Key != "✅" || annotation.EventID.String() != "$prompt" {
		t.Errorf("annotation = %+v", annotation)
	}
}

func TestRedact(t *testing.T) {
	session := newTestSession(t, func(writer http.ResponseWriter, request *http.Request) {
		if !strings.HasPrefix(request.URL.Path, "/_matrix/client/v3/rooms/!shop:example.org/redact/$reaction/") {
			t.Errorf("path = %s", request.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(request.Body).Decode(&body)
		if body["reason"] != "resolved" {
			t.Errorf("reason = %q", body["reason"])
		}
		writeJSON(writer, http.StatusOK, map[string]string{"event_id": "$redaction"})
	})
	eventID, err := session.Redact(context.Background(), testRoom, ref.MustParseEventID("$reaction"), "resolved")
	if err != nil {
		t.Fatalf("Redact: %v", err)
	}
	if eventID.String() != "$redaction" {
		t.Errorf("event ID = %s", eventID)
	}
}

func TestAccountData(t *testing.T) {
	var stored []byte
	session := newTestSession(t, func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/_matrix/client/v3/user/@shopkeep:example.org/account_data/m.direct" {
			t.Errorf("path = %s", request.URL.Path)
		}
		switch request.Method {
		case http.MethodPut:
			stored, _ = io.ReadAll(request.Body)
			writeJSON(writer, http.StatusOK, map[string]any{})
		case http.MethodGet:
			if stored == nil {
				writeJSON(writer, http.StatusNotFound, map[string]string{"errcode": ErrCodeNotFound, "error": "no data"})
				return
			}
			writer.Write(stored)
		}
	})

	ctx := context.Background()
	if _, err := session.GetAccountData(ctx, "m.direct"); !IsMatrixError(err, ErrCodeNotFound) {
		t.Fatalf("GetAccountData before set = %v, want M_NOT_FOUND", err)
	}
	direct := map[string][]string{"@buyer:example.org": {"!dm:example.org"}}
	if err := session.SetAccountData(ctx, "m.direct", direct); err != nil {
		t.Fatalf("SetAccountData: %v", err)
	}
	raw, err := session.GetAccountData(ctx, "m.direct")
	if err != nil {
		t.Fatalf("GetAccountData: %v", err)
	}
	var decoded map[string][]string
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decoding account data: %v", err)
	}
	if decoded["@buyer:example.org"][0] != "!dm:example.org" {
		t.Errorf("account data = %v", decoded)
	}
}

func TestUploadMedia(t *testing.T) {
	session := newTestSession(t, func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/_matrix/media/v3/upload" {
			t.Errorf("path = %s", request.URL.Path)
		}
		if request.URL.Query().Get("filename") != "backup.db.zst" {
			t.Errorf("filename = %q", request.URL.Query().Get("filename"))
		}
		if request.Header.Get("Content-Type") != "application/zstd" {
			t.Errorf("Content-Type = %q", request.Header.Get("Content-Type"))
		}
		body, _ := io.ReadAll(request.Body)
		if string(body) != "payload" {
			t.Errorf("body = %q", body)
		}
		writeJSON(writer, http.StatusOK, map[string]string{"content_uri": "mxc://example.org/uploaded"})
	})

	uri, err := session.UploadMedia(context.Background(), "backup.db.zst", "application/zstd", strings.NewReader("payload"))
	if err != nil {
		t.Fatalf("UploadMedia: %v", err)
	}
	if uri != "mxc://example.org/uploaded" {
		t.Errorf("uri = %q", uri)
	}
}

func TestNewReplacement(t *testing.T) {
	target := ref.MustParseEventID("$live")
	edit := NewReplacement(target, NewNotice("stock: 5", "<b>stock: 5</b>"))

	if edit.Body != "* stock: 5" {
		t.Errorf("fallback body = %q", edit.Body)
	}
	if edit.RelatesTo == nil || edit.RelatesTo.RelType != RelTypeReplace || edit.RelatesTo.EventID != target {
		t.Fatalf("relates_to = %+v", edit.RelatesTo)
	}
	if edit.NewContent == nil || edit.NewContent.Body != "stock: 5" || edit.NewContent.FormattedBody != "<b>stock: 5</b>" {
		t.Fatalf("new content = %+v", edit.NewContent)
	}
	if edit.NewContent.RelatesTo != nil {
		t.Error("m.new_content must not carry a relation")
	}
}

func TestJoinedRooms(t *testing.T) {
	session := newTestSession(t, func(writer http.ResponseWriter, request *http.Request) {
		writeJSON(writer, http.StatusOK, map[string]any{"joined_rooms": []string{"!shop:example.org", "!dm:example.org"}})
	})
	rooms, err := session.JoinedRooms(context.Background())
	if err != nil {
		t.Fatalf("JoinedRooms: %v", err)
	}
	if len(rooms) != 2 || rooms[0] != testRoom {
		t.Errorf("rooms = %v", rooms)
	}
}
