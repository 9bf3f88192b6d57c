// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"io"

	"github.com/bureau-foundation/shopkeep/lib/ref"
)

// Session is the authenticated Matrix surface the bot depends on.
// DirectSession is the production implementation; tests substitute
// their own.
type Session interface {
	UserID() ref.UserID
	WhoAmI(ctx context.Context) (ref.UserID, error)
	ResolveAlias(ctx context.Context, alias ref.RoomAlias) (ref.RoomID, error)
	JoinRoom(ctx context.Context, roomID ref.RoomID) (ref.RoomID, error)
	JoinedRooms(ctx context.Context) ([]ref.RoomID, error)
	CreateRoom(ctx context.Context, request CreateRoomRequest) (*CreateRoomResponse, error)

	SendMessage(ctx context.Context, roomID ref.RoomID, content MessageContent) (ref.EventID, error)
	SendEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, content any) (ref.EventID, error)
	GetEvent(ctx context.Context, roomID ref.RoomID, eventID ref.EventID) (*Event, error)
	Relations(ctx context.Context, roomID ref.RoomID, eventID ref.EventID, relType string, eventType ref.EventType, options RelationsOptions) (*RelationsResponse, error)
	Redact(ctx context.Context, roomID ref.RoomID, eventID ref.EventID, reason string) (ref.EventID, error)

	GetAccountData(ctx context.Context, dataType string) (json.RawMessage, error)
	SetAccountData(ctx context.Context, dataType string, content any) error

	UploadMedia(ctx context.Context, fileName, contentType string, body io.Reader) (string, error)
	DownloadMedia(ctx context.Context, contentURI string, limit int64) ([]byte, error)

	Sync(ctx context.Context, options SyncOptions) (*SyncResponse, error)
	Close() error
}

var _ Session = (*DirectSession)(nil)
