// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"encoding/json"
	"fmt"

	"github.com/bureau-foundation/shopkeep/lib/ref"
)

// Message types used by shopkeep.
const (
	MsgTypeText   = "m.text"
	MsgTypeNotice = "m.notice"
	MsgTypeFile   = "m.file"

	// FormatHTML is the only formatted_body format Matrix defines.
	FormatHTML = "org.matrix.custom.html"
)

// Relation types.
const (
	RelTypeReplace    = "m.replace"
	RelTypeAnnotation = "m.annotation"
)

// MessageContent is the content of an m.room.message event. File
// uploads (m.file) carry URL, FileName, and Info; when FileName is set
// and differs from Body, Body is the caption.
type MessageContent struct {
	MsgType       string          `json:"msgtype"`
	Body          string          `json:"body"`
	Format        string          `json:"format,omitempty"`
	FormattedBody string          `json:"formatted_body,omitempty"`
	URL           string          `json:"url,omitempty"`
	FileName      string          `json:"filename,omitempty"`
	Info          *FileInfo       `json:"info,omitempty"`
	NewContent    *MessageContent `json:"m.new_content,omitempty"`
	RelatesTo     *RelatesTo      `json:"m.relates_to,omitempty"`
}

// FileInfo describes an uploaded file.
type FileInfo struct {
	MimeType string `json:"mimetype,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// RelatesTo links an event to another: edits (m.replace) and
// reactions (m.annotation, with Key holding the reaction text).
type RelatesTo struct {
	RelType string      `json:"rel_type"`
	EventID ref.EventID `json:"event_id"`
	Key     string      `json:"key,omitempty"`
}

// ReactionContent is the content of an m.reaction event.
type ReactionContent struct {
	RelatesTo RelatesTo `json:"m.relates_to"`
}

// NewNotice creates a bot-originated message. Notices are the Matrix
// convention for automated output; clients never treat them as
// commands.
func NewNotice(body, html string) MessageContent {
	content := MessageContent{MsgType: MsgTypeNotice, Body: body}
	if html != "" {
		content.Format = FormatHTML
		content.FormattedBody = html
	}
	return content
}

// NewReplacement wraps replacement as an edit of target. Clients that
// understand m.replace render replacement in place of the original;
// older clients show the "* "-prefixed fallback.
func NewReplacement(target ref.EventID, replacement MessageContent) MessageContent {
	inner := replacement
	inner.RelatesTo = nil
	inner.NewContent = nil

	fallback := replacement
	fallback.Body = "* " + replacement.Body
	if fallback.FormattedBody != "" {
		fallback.FormattedBody = "* " + replacement.FormattedBody
	}
	fallback.NewContent = &inner
	fallback.RelatesTo = &RelatesTo{RelType: RelTypeReplace, EventID: target}
	return fallback
}

// NewReaction annotates target with key (typically an emoji).
func NewReaction(target ref.EventID, key string) ReactionContent {
	return ReactionContent{RelatesTo: RelatesTo{
		RelType: RelTypeAnnotation,
		EventID: target,
		Key:     key,
	}}
}

// Event is a Matrix event as returned by the server.
type Event struct {
	EventID        ref.EventID    `json:"event_id"`
	Type           ref.EventType  `json:"type"`
	Sender         ref.UserID     `json:"sender"`
	OriginServerTS int64          `json:"origin_server_ts"`
	Content        map[string]any `json:"content"`
	RoomID         ref.RoomID     `json:"room_id,omitempty"`
	StateKey       *string        `json:"state_key,omitempty"`
	Redacts        string         `json:"redacts,omitempty"`
	Unsigned       *EventUnsigned `json:"unsigned,omitempty"`
}

// EventUnsigned holds unsigned data attached to events.
type EventUnsigned struct {
	Age             int64           `json:"age,omitempty"`
	TransactionID   string          `json:"transaction_id,omitempty"`
	RedactedBecause json.RawMessage `json:"redacted_because,omitempty"`
}

// IsRedacted reports whether the server has redacted the event. A
// redacted event stays fetchable with its content stripped.
func (e Event) IsRedacted() bool {
	return e.Unsigned != nil && len(e.Unsigned.RedactedBecause) > 0
}

// DecodeContent re-decodes the generic content map into target.
func (e Event) DecodeContent(target any) error {
	data, err := json.Marshal(e.Content)
	if err != nil {
		return fmt.Errorf("messaging: re-encoding %s content: %w", e.Type, err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("messaging: decoding %s content: %w", e.Type, err)
	}
	return nil
}

// Annotation returns the reaction relation of an m.reaction event.
func (e Event) Annotation() (RelatesTo, bool) {
	if e.Type != ref.EventTypeReaction {
		return RelatesTo{}, false
	}
	var content ReactionContent
	if err := e.DecodeContent(&content); err != nil {
		return RelatesTo{}, false
	}
	if content.RelatesTo.RelType != RelTypeAnnotation || content.RelatesTo.EventID.IsZero() {
		return RelatesTo{}, false
	}
	return content.RelatesTo, true
}

// RelationsOptions controls pagination of the relations endpoint.
type RelationsOptions struct {
	From  string
	Limit int
}

// RelationsResponse is returned by Relations.
type RelationsResponse struct {
	Chunk     []Event `json:"chunk"`
	NextBatch string  `json:"next_batch,omitempty"`
}

// SyncOptions controls /sync.
type SyncOptions struct {
	Since      string // next_batch from the previous sync; empty for initial
	Timeout    int    // long-poll hold in milliseconds
	SetTimeout bool   // send Timeout even when it is zero
	Filter     string // filter ID or inline JSON filter
}

// SyncResponse is the top-level /sync response.
type SyncResponse struct {
	NextBatch string       `json:"next_batch"`
	Rooms     RoomsSection `json:"rooms"`
}

// RoomsSection groups per-room sync data by membership. Map keys
// decode through ref.RoomID's TextUnmarshaler.
type RoomsSection struct {
	Join   map[ref.RoomID]JoinedRoom  `json:"join,omitempty"`
	Invite map[ref.RoomID]InvitedRoom `json:"invite,omitempty"`
}

// JoinedRoom is sync data for a joined room.
type JoinedRoom struct {
	Timeline TimelineSection `json:"timeline"`
	State    StateSection    `json:"state"`
}

// InvitedRoom is sync data for a pending invite.
type InvitedRoom struct {
	InviteState StateSection `json:"invite_state"`
}

// TimelineSection holds timeline events.
type TimelineSection struct {
	Events    []Event `json:"events"`
	PrevBatch string  `json:"prev_batch"`
	Limited   bool    `json:"limited"`
}

// StateSection holds state events.
type StateSection struct {
	Events []Event `json:"events"`
}

// CreateRoomRequest holds the parameters shopkeep uses when opening a
// direct-message room.
type CreateRoomRequest struct {
	Name     string   `json:"name,omitempty"`
	Preset   string   `json:"preset,omitempty"`
	Invite   []string `json:"invite,omitempty"`
	IsDirect bool     `json:"is_direct,omitempty"`
}

// CreateRoomResponse is returned by CreateRoom.
type CreateRoomResponse struct {
	RoomID ref.RoomID `json:"room_id"`
}

// SendEventResponse is returned by the send and redact endpoints.
type SendEventResponse struct {
	EventID ref.EventID `json:"event_id"`
}

// WhoAmIResponse is returned by WhoAmI.
type WhoAmIResponse struct {
	UserID   ref.UserID `json:"user_id"`
	DeviceID string     `json:"device_id,omitempty"`
}

// ResolveAliasResponse is returned by ResolveAlias.
type ResolveAliasResponse struct {
	RoomID  ref.RoomID `json:"room_id"`
	Servers []string   `json:"servers"`
}

// UploadResponse is returned by UploadMedia.
type UploadResponse struct {
	ContentURI string `json:"content_uri"`
}

// ServerVersionsResponse is returned by Client.ServerVersions.
type ServerVersionsResponse struct {
	Versions []string `json:"versions"`
}
