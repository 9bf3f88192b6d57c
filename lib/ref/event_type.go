// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

// EventType identifies a Matrix event type. A named string rather
// than a parsed struct: event types need no validation, only
// compile-time separation from state keys and message bodies.
type EventType string

// String returns the event type.
func (t EventType) String() string { return string(t) }

// Event types shopkeep sends or reads.
const (
	EventTypeMessage   EventType = "m.room.message"
	EventTypeReaction  EventType = "m.reaction"
	EventTypeRedaction EventType = "m.room.redaction"
	EventTypeMember    EventType = "m.room.member"
)
