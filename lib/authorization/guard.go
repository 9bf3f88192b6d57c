// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authorization

import (
	"crypto/subtle"
	"log/slog"

	"github.com/zeebo/blake3"
)

// digestKey domain-separates principal digests from any other BLAKE3
// use in the process.
const digestKey = "shopkeep authorization principal v1"

// Guard authorizes a single configured principal.
type Guard struct {
	admin    [32]byte
	hasAdmin bool
	logger   *slog.Logger
}

// NewGuard creates a Guard for admin. A nil logger uses slog.Default.
func NewGuard(admin string, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		admin:    digest(admin),
		hasAdmin: admin != "",
		logger:   logger,
	}
}

// IsAuthorized reports whether principal is the administrator.
// Rejections are logged; nothing here panics or returns an error.
func (g *Guard) IsAuthorized(principal string) bool {
	if g.IsAdmin(principal) {
		return true
	}
	g.logger.Warn("unauthorized command attempt", "principal", principal)
	return false
}

// IsAdmin is IsAuthorized without the audit log, for role checks
// inside commands every user may run.
func (g *Guard) IsAdmin(principal string) bool {
	candidate := digest(principal)
	match := subtle.ConstantTimeCompare(candidate[:], g.admin[:]) == 1
	return match && g.hasAdmin && principal != ""
}

func digest(identity string) [32]byte {
	hasher := blake3.NewDeriveKey(digestKey)
	hasher.Write([]byte(identity))
	var sum [32]byte
	copy(sum[:], hasher.Sum(nil))
	return sum
}
