// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service holds the daemon's operator surfaces and its Matrix
// intake loop.
//
//   - [SocketServer] and [Client]: a CBOR request/response protocol on
//     a Unix socket, one request per connection. The shopkeep CLI uses
//     it for the "status" and "reconcile" actions.
//   - [HTTPServer] and [NewOpsRouter]: /healthz, /readyz, and
//     /v1/status over HTTP for probes and dashboards.
//   - [RunSyncLoop]: the incremental /sync long-poll with exponential
//     backoff that feeds command messages to the dispatcher.
//
// Socket callers are not authenticated. The socket is created with mode
// 0600, so file permissions decide who may connect.
package service
