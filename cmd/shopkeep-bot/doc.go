// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Shopkeep-bot is the shop's moderation daemon. It joins a commands
// room and a live stock room on a Matrix homeserver, answers
// administrator commands in the first, and keeps one live stock
// message in the second consistent with the catalog.
//
// # Startup
//
// The daemon loads the file named by --config or SHOPKEEP_CONFIG,
// reads the bot's access token from matrix.access_token_file, checks
// it with /whoami, and joins both rooms. The SQLite database at
// database.path holds the catalog, the ledger, and bot settings.
//
// # Commands
//
// Messages in the commands room that start with command_prefix are
// commands. Every command except register is restricted to admin_id.
// Destructive commands (deleteproduct, resetuser, announcement) post a
// confirmation prompt and act only when the requester reacts with ✅
// before confirmation.timeout. Stock files are sent as an m.file
// upload whose caption is the addstock command.
//
// Commands sent while the daemon is down are not replayed.
//
// # Operations
//
// ops.socket serves the CBOR status and reconcile actions used by the
// shopkeep CLI. ops.http_address, when set, serves /healthz, /readyz,
// and /v1/status.
package main
