// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package chat is the narrow chat-platform surface the shop's core
// logic is written against.
//
// A [Channel] is bound to one room and can publish a message, edit or
// fetch it later by ID, attach a signal (a reaction) to it, wait for a
// signal matching a [SignalFilter], and retract a signal it attached.
// A [DirectSender] delivers a message privately to one user.
//
// [MatrixChannel] and [MatrixDirectSender] implement these over the
// messaging package. The chattest subpackage provides an in-memory
// fake for tests of code built on Channel.
//
// A message that was deleted or redacted externally is reported as
// [ErrNotFound] by Fetch. Callers use that to recover; any other error
// is transient.
package chat
