// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package livestock maintains the shop's live stock message: a single
// message in a chat room that always shows the current catalog.
//
// [Render] turns a catalog snapshot into message content. The
// [Synchronizer] calls it on a fixed interval and reconciles the
// result with the room through a chat.Channel, tracking the message
// in a display.Store:
//
//	no_message --publish ok--> active
//	active --message present--> active (edited in place)
//	active --message gone--> lost --publish ok--> active (same tick)
//	any --other failure--> unchanged, retried next tick
package livestock
