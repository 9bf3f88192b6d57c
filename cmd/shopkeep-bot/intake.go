// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/bureau-foundation/shopkeep/lib/ref"
	"github.com/bureau-foundation/shopkeep/messaging"
)

// commandFilter restricts /sync to messages in the commands room.
// Reactions for confirmations are watched separately by the channel.
func commandFilter(roomID ref.RoomID) string {
	emptyTypes := []string{}
	filter := map[string]any{
		"room": map[string]any{
			"rooms": []string{roomID.String()},
			"timeline": map[string]any{
				"types": []ref.EventType{ref.EventTypeMessage},
				"limit": 50,
			},
			"state":        map[string]any{"types": emptyTypes},
			"ephemeral":    map[string]any{"types": emptyTypes},
			"account_data": map[string]any{"types": emptyTypes},
		},
		"presence":     map[string]any{"types": emptyTypes},
		"account_data": map[string]any{"types": emptyTypes},
	}
	data, err := json.Marshal(filter)
	if err != nil {
		panic("building sync filter: " + err.Error())
	}
	return string(data)
}

// commandIntake turns /sync timeline messages into dispatched commands.
type commandIntake struct {
	roomID ref.RoomID
	self   ref.UserID
	bot    *Bot
	logger *slog.Logger
}

func (i *commandIntake) handleSync(ctx context.Context, response *messaging.SyncResponse) {
	room, ok := response.Rooms.Join[i.roomID]
	if !ok {
		return
	}
	for _, event := range room.Timeline.Events {
		if event.Type != ref.EventTypeMessage || event.Sender == i.self || event.IsRedacted() {
			continue
		}
		body, file, ok := commandText(event)
		if !ok {
			continue
		}
		if i.bot.Dispatch(ctx, event.Sender, body, file) {
			i.logger.Debug("command received",
				"event_id", event.EventID.String(),
				"sender", event.Sender.String(),
			)
		}
	}
}

// commandText extracts the command text of a message and its file, if
// any. Files carry the command as their caption. Notices and edits are
// never commands.
func commandText(event messaging.Event) (string, *attachment, bool) {
	var content messaging.MessageContent
	if err := event.DecodeContent(&content); err != nil {
		return "", nil, false
	}
	if content.RelatesTo != nil && content.RelatesTo.RelType == messaging.RelTypeReplace {
		return "", nil, false
	}
	switch content.MsgType {
	case messaging.MsgTypeText:
		return content.Body, nil, true
	case messaging.MsgTypeFile:
		if content.FileName == "" || content.FileName == content.Body || content.URL == "" {
			return "", nil, false
		}
		file := &attachment{name: content.FileName, uri: content.URL}
		if content.Info != nil {
			file.size = content.Info.Size
		}
		return content.Body, file, true
	default:
		return "", nil, false
	}
}
