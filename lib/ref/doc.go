// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides validated, immutable Matrix identifiers: user
// IDs, room IDs, room aliases, and event IDs.
//
// Identifiers arrive from configuration, from command arguments, and
// from homeserver responses; they are parsed into these types at that
// boundary so the rest of shopkeep never handles raw strings where an
// identity is meant. Every type implements encoding.TextMarshaler and
// encoding.TextUnmarshaler, so JSON, CBOR, and map keys round-trip
// through the canonical Matrix form.
package ref
