// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is shopkeep's CBOR configuration.
//
// JSON is used wherever a human or another program reads the bytes:
// the Matrix API, the HTTP ops endpoints, and CLI --json output. CBOR
// is used on the ops Unix socket between the daemon and the shopkeep
// CLI. Both share struct definitions: fxamacker/cbor falls back to
// `json` tags, so a status type tagged for JSON encodes to CBOR with
// the same field names.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2), so
// equal values encode to equal bytes. Types with a MarshalText method
// (ref.EventID, ref.UserID) encode as text strings.
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
package codec
