// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package authorization decides whether a principal may run an
// administrative command.
//
// The shop has exactly one administrator, configured by Matrix user
// ID. [Guard.IsAuthorized] compares the caller's identity against it
// in constant time: both identities are hashed with BLAKE3 to a fixed
// length first, so neither the content nor the length of the
// configured ID leaks through timing. Any mismatch, including an
// empty or malformed identity, returns false and is logged at WARN
// with the caller's identity for audit. A Guard configured with an
// empty administrator authorizes nobody.
package authorization
