// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds shared test helpers.
//
// [RequireReceive], [RequireSend], and [RequireClosed] wrap the
// select-with-timeout safety valve so individual tests never call
// time.After directly; they are the only place tests touch the wall
// clock. [SocketDir] returns a short /tmp directory for Unix sockets
// (sun_path is limited to 108 bytes, which t.TempDir can exceed).
// [UniqueID] produces monotonically numbered identifiers for tests
// that need distinguishable product codes, user IDs, or message bodies.
//
// Helpers fail the test with t.Fatalf instead of returning errors.
package testutil
