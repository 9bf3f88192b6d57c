// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/bureau-foundation/shopkeep/lib/ref"
	"github.com/bureau-foundation/shopkeep/lib/secret"
)

// DirectSession is an authenticated Matrix session holding its access
// token in a secret.Buffer. Safe for concurrent use.
type DirectSession struct {
	client      *Client
	accessToken *secret.Buffer
	userID      ref.UserID
}

// UserID returns the Matrix user ID of this session.
func (s *DirectSession) UserID() ref.UserID {
	return s.userID
}

// CloseIdleConnections forwards to the underlying Client.
func (s *DirectSession) CloseIdleConnections() {
	s.client.CloseIdleConnections()
}

// Close releases the access token buffer. Idempotent.
func (s *DirectSession) Close() error {
	if s.accessToken == nil {
		return nil
	}
	return s.accessToken.Close()
}

// WhoAmI validates the access token and returns the user ID it
// belongs to.
func (s *DirectSession) WhoAmI(ctx context.Context) (ref.UserID, error) {
	body, err := s.client.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/account/whoami", s.accessToken, nil)
	if err != nil {
		return ref.UserID{}, fmt.Errorf("messaging: whoami failed: %w", err)
	}
	var response WhoAmIResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.UserID{}, fmt.Errorf("messaging: failed to parse whoami response: %w", err)
	}
	return response.UserID, nil
}

// ResolveAlias resolves a room alias to its room ID.
func (s *DirectSession) ResolveAlias(ctx context.Context, alias ref.RoomAlias) (ref.RoomID, error) {
	path := "/_matrix/client/v3/directory/room/" + url.PathEscape(alias.String())
	body, err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil)
	if err != nil {
		return ref.RoomID{}, fmt.Errorf("messaging: resolve alias %q failed: %w", alias, err)
	}
	var response ResolveAliasResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.RoomID{}, fmt.Errorf("messaging: failed to parse resolve alias response: %w", err)
	}
	return response.RoomID, nil
}

// JoinRoom joins a room by ID. Joining a room the user is already in
// succeeds.
func (s *DirectSession) JoinRoom(ctx context.Context, roomID ref.RoomID) (ref.RoomID, error) {
	path := "/_matrix/client/v3/join/" + url.PathEscape(roomID.String())
	body, err := s.client.doRequest(ctx, http.MethodPost, path, s.accessToken, struct{}{})
	if err != nil {
		return ref.RoomID{}, fmt.Errorf("messaging: join room %q failed: %w", roomID, err)
	}
	var response struct {
		RoomID ref.RoomID `json:"room_id"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.RoomID{}, fmt.Errorf("messaging: failed to parse join response: %w", err)
	}
	return response.RoomID, nil
}

// JoinedRooms lists the rooms the session's user has joined.
func (s *DirectSession) JoinedRooms(ctx context.Context) ([]ref.RoomID, error) {
	body, err := s.client.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/joined_rooms", s.accessToken, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: joined rooms failed: %w", err)
	}
	var response struct {
		JoinedRooms []ref.RoomID `json:"joined_rooms"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse joined rooms response: %w", err)
	}
	return response.JoinedRooms, nil
}

// CreateRoom creates a new room.
func (s *DirectSession) CreateRoom(ctx context.Context, request CreateRoomRequest) (*CreateRoomResponse, error) {
	body, err := s.client.doRequest(ctx, http.MethodPost, "/_matrix/client/v3/createRoom", s.accessToken, request)
	if err != nil {
		return nil, fmt.Errorf("messaging: create room failed: %w", err)
	}
	var response CreateRoomResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse create room response: %w", err)
	}
	return &response, nil
}

// SendMessage sends an m.room.message event.
func (s *DirectSession) SendMessage(ctx context.Context, roomID ref.RoomID, content MessageContent) (ref.EventID, error) {
	return s.SendEvent(ctx, roomID, ref.EventTypeMessage, content)
}

// SendEvent sends a timeline event. Each call uses a fresh transaction
// ID, so a retried HTTP request is deduplicated by the homeserver.
func (s *DirectSession) SendEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, content any) (ref.EventID, error) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/send/%s/%s",
		url.PathEscape(roomID.String()),
		url.PathEscape(eventType.String()),
		url.PathEscape(newTransactionID()),
	)
	body, err := s.client.doRequest(ctx, http.MethodPut, path, s.accessToken, content)
	if err != nil {
		return ref.EventID{}, fmt.Errorf("messaging: send %s to %q failed: %w", eventType, roomID, err)
	}
	var response SendEventResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.EventID{}, fmt.Errorf("messaging: failed to parse send response: %w", err)
	}
	return response.EventID, nil
}

// GetEvent fetches a single event. A missing event surfaces as a
// *MatrixError with ErrCodeNotFound; a redacted one is returned with
// IsRedacted set.
func (s *DirectSession) GetEvent(ctx context.Context, roomID ref.RoomID, eventID ref.EventID) (*Event, error) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/event/%s",
		url.PathEscape(roomID.String()),
		url.PathEscape(eventID.String()),
	)
	body, err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: get event %s failed: %w", eventID, err)
	}
	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse event %s: %w", eventID, err)
	}
	return &event, nil
}

// Relations lists events relating to eventID. relType and eventType
// narrow the result; eventType is ignored when relType is empty, as
// the endpoint requires.
func (s *DirectSession) Relations(ctx context.Context, roomID ref.RoomID, eventID ref.EventID, relType string, eventType ref.EventType, options RelationsOptions) (*RelationsResponse, error) {
	var builder strings.Builder
	fmt.Fprintf(&builder, "/_matrix/client/v1/rooms/%s/relations/%s",
		url.PathEscape(roomID.String()),
		url.PathEscape(eventID.String()),
	)
	if relType != "" {
		builder.WriteString("/" + url.PathEscape(relType))
		if eventType != "" {
			builder.WriteString("/" + url.PathEscape(eventType.String()))
		}
	}

	query := url.Values{}
	if options.From != "" {
		query.Set("from", options.From)
	}
	if options.Limit > 0 {
		query.Set("limit", strconv.Itoa(options.Limit))
	}

	body, err := s.client.doRequest(ctx, http.MethodGet, builder.String(), s.accessToken, nil, query)
	if err != nil {
		return nil, fmt.Errorf("messaging: relations of %s failed: %w", eventID, err)
	}
	var response RelationsResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse relations response: %w", err)
	}
	return &response, nil
}

// Redact redacts an event, returning the redaction's event ID.
func (s *DirectSession) Redact(ctx context.Context, roomID ref.RoomID, eventID ref.EventID, reason string) (ref.EventID, error) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/redact/%s/%s",
		url.PathEscape(roomID.String()),
		url.PathEscape(eventID.String()),
		url.PathEscape(newTransactionID()),
	)
	request := map[string]string{}
	if reason != "" {
		request["reason"] = reason
	}
	body, err := s.client.doRequest(ctx, http.MethodPut, path, s.accessToken, request)
	if err != nil {
		return ref.EventID{}, fmt.Errorf("messaging: redact %s failed: %w", eventID, err)
	}
	var response SendEventResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.EventID{}, fmt.Errorf("messaging: failed to parse redact response: %w", err)
	}
	return response.EventID, nil
}

// GetAccountData reads global account data of the given type. Absent
// data surfaces as ErrCodeNotFound.
func (s *DirectSession) GetAccountData(ctx context.Context, dataType string) (json.RawMessage, error) {
	body, err := s.client.doRequest(ctx, http.MethodGet, s.accountDataPath(dataType), s.accessToken, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: get account data %s failed: %w", dataType, err)
	}
	return json.RawMessage(body), nil
}

// SetAccountData replaces global account data of the given type.
func (s *DirectSession) SetAccountData(ctx context.Context, dataType string, content any) error {
	if _, err := s.client.doRequest(ctx, http.MethodPut, s.accountDataPath(dataType), s.accessToken, content); err != nil {
		return fmt.Errorf("messaging: set account data %s failed: %w", dataType, err)
	}
	return nil
}

func (s *DirectSession) accountDataPath(dataType string) string {
	return fmt.Sprintf("/_matrix/client/v3/user/%s/account_data/%s",
		url.PathEscape(s.userID.String()),
		url.PathEscape(dataType),
	)
}

// UploadMedia uploads content to the media repository and returns its
// mxc:// URI.
func (s *DirectSession) UploadMedia(ctx context.Context, fileName, contentType string, body io.Reader) (string, error) {
	query := url.Values{}
	if fileName != "" {
		query.Set("filename", fileName)
	}
	responseBody, err := s.client.doRequestRaw(ctx, http.MethodPost, "/_matrix/media/v3/upload", query, s.accessToken, contentType, body)
	if err != nil {
		return "", fmt.Errorf("messaging: media upload failed: %w", err)
	}
	var response UploadResponse
	if err := json.Unmarshal(responseBody, &response); err != nil {
		return "", fmt.Errorf("messaging: failed to parse upload response: %w", err)
	}
	return response.ContentURI, nil
}

// DownloadMedia fetches an mxc:// URI through the authenticated media
// endpoint. Content longer than limit bytes is an error.
func (s *DirectSession) DownloadMedia(ctx context.Context, contentURI string, limit int64) ([]byte, error) {
	server, mediaID, err := ParseContentURI(contentURI)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("/_matrix/client/v1/media/download/%s/%s",
		url.PathEscape(server),
		url.PathEscape(mediaID),
	)
	data, _, err := s.client.doDownload(ctx, path, s.accessToken, limit)
	if err != nil {
		return nil, fmt.Errorf("messaging: download %s failed: %w", contentURI, err)
	}
	return data, nil
}

// Sync performs one /sync request.
func (s *DirectSession) Sync(ctx context.Context, options SyncOptions) (*SyncResponse, error) {
	query := url.Values{}
	if options.Since != "" {
		query.Set("since", options.Since)
	}
	if options.SetTimeout || options.Timeout > 0 {
		query.Set("timeout", strconv.Itoa(options.Timeout))
	}
	if options.Filter != "" {
		query.Set("filter", options.Filter)
	}
	body, err := s.client.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/sync", s.accessToken, nil, query)
	if err != nil {
		return nil, fmt.Errorf("messaging: sync failed: %w", err)
	}
	var response SyncResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse sync response: %w", err)
	}
	return &response, nil
}

// ParseContentURI splits "mxc://server/mediaId".
func ParseContentURI(contentURI string) (server, mediaID string, err error) {
	rest, ok := strings.CutPrefix(contentURI, "mxc://")
	if !ok {
		return "", "", fmt.Errorf("messaging: %q is not an mxc:// URI", contentURI)
	}
	server, mediaID, ok = strings.Cut(rest, "/")
	if !ok || server == "" || mediaID == "" || strings.Contains(mediaID, "/") {
		return "", "", fmt.Errorf("messaging: malformed content URI %q", contentURI)
	}
	return server, mediaID, nil
}

func newTransactionID() string {
	return "shopkeep-" + uuid.NewString()
}
