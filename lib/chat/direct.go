// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/shopkeep/lib/ref"
	"github.com/bureau-foundation/shopkeep/messaging"
)

// directAccountDataType is the account data listing a user's direct
// message rooms, keyed by the other user's ID.
const directAccountDataType = "m.direct"

// MatrixDirectSender sends direct messages, reusing the DM room listed
// in m.direct account data or creating one on first contact.
type MatrixDirectSender struct {
	session messaging.Session
	logger  *slog.Logger

	mutex sync.Mutex
	rooms map[ref.UserID]ref.RoomID
}

// NewMatrixDirectSender creates a DirectSender over session.
func NewMatrixDirectSender(session messaging.Session, logger *slog.Logger) *MatrixDirectSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &MatrixDirectSender{
		session: session,
		logger:  logger,
		rooms:   make(map[ref.UserID]ref.RoomID),
	}
}

// SendDirect delivers content to user's DM room.
func (s *MatrixDirectSender) SendDirect(ctx context.Context, user ref.UserID, content Content) error {
	if user.IsZero() {
		return fmt.Errorf("chat: send direct: empty user ID")
	}
	roomID, err := s.directRoom(ctx, user)
	if err != nil {
		return fmt.Errorf("chat: send direct to %s: %w", user, err)
	}
	if _, err := s.session.SendMessage(ctx, roomID, toMessageContent(content)); err != nil {
		return fmt.Errorf("chat: send direct to %s: %w", user, err)
	}
	return nil
}

// directRoom resolves the DM room for user. The mutex is held across
// the lookup so two concurrent sends to a new user create one room.
func (s *MatrixDirectSender) directRoom(ctx context.Context, user ref.UserID) (ref.RoomID, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if roomID, ok := s.rooms[user]; ok {
		return roomID, nil
	}

	direct, err := s.loadDirectRooms(ctx)
	if err != nil {
		return ref.RoomID{}, err
	}
	if rooms := direct[user.String()]; len(rooms) > 0 {
		roomID, err := ref.ParseRoomID(rooms[len(rooms)-1])
		if err == nil {
			s.rooms[user] = roomID
			return roomID, nil
		}
		s.logger.Warn("ignoring malformed m.direct room", "user_id", user, "room_id", rooms[len(rooms)-1])
	}

	response, err := s.session.CreateRoom(ctx, messaging.CreateRoomRequest{
		Preset:   "trusted_private_chat",
		Invite:   []string{user.String()},
		IsDirect: true,
	})
	if err != nil {
		return ref.RoomID{}, err
	}
	direct[user.String()] = append(direct[user.String()], response.RoomID.String())
	if err := s.session.SetAccountData(ctx, directAccountDataType, direct); err != nil {
		// The room exists and is cached; losing the m.direct entry
		// only costs a duplicate room after a restart.
		s.logger.Warn("recording direct room failed", "user_id", user, "room_id", response.RoomID, "error", err)
	}
	s.logger.Info("created direct message room", "user_id", user, "room_id", response.RoomID)
	s.rooms[user] = response.RoomID
	return response.RoomID, nil
}

func (s *MatrixDirectSender) loadDirectRooms(ctx context.Context) (map[string][]string, error) {
	raw, err := s.session.GetAccountData(ctx, directAccountDataType)
	if err != nil {
		if messaging.IsMatrixError(err, messaging.ErrCodeNotFound) {
			return map[string][]string{}, nil
		}
		return nil, err
	}
	direct := map[string][]string{}
	if err := json.Unmarshal(raw, &direct); err != nil {
		return nil, fmt.Errorf("decoding m.direct: %w", err)
	}
	return direct, nil
}

var _ DirectSender = (*MatrixDirectSender)(nil)
