// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging wraps the parts of the Matrix client-server API
// that shopkeep uses to live in a chat room.
//
// [Client] holds the homeserver URL and HTTP transport. [DirectSession]
// adds the bot's access token (held in a secret.Buffer) and performs
// authenticated calls: sending messages and arbitrary events (with
// idempotent transaction IDs), fetching single events, listing
// relations (reactions and edits) of an event, redacting, creating
// rooms, reading and writing account data (m.direct), uploading and
// downloading media, and /sync.
//
// Helpers build the relation-carrying contents the bot needs:
// [NewReplacement] for in-place edits (m.replace) and [NewReaction]
// for reaction annotations (m.annotation).
//
// [RoomWatcher] captures a position in the /sync stream for one room
// and long-polls from there until an event matches a predicate. It is
// how the bot waits for a confirmation reaction without missing one
// that lands between sending the prompt and starting to wait.
//
// API failures are returned as [*MatrixError] carrying the Matrix
// error code (M_NOT_FOUND, M_LIMIT_EXCEEDED, ...) and HTTP status;
// [IsMatrixError] tests for a code. Request URLs are built by string
// concatenation with url.PathEscape per segment rather than url.URL,
// which would re-encode already-escaped path segments.
package messaging
